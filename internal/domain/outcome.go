package domain

// RunState tracks the retry-with-resume protocol of a workflow execution.
type RunState string

const (
	RunStateAttempting RunState = "attempting"
	RunStateRetrying   RunState = "retrying"
	RunStateSucceeded  RunState = "succeeded"
	RunStateExhausted  RunState = "exhausted"
)

// RunOutcome is the terminal result of one workflow execution.
type RunOutcome struct {
	Success      bool     `json:"success"`
	ExitCode     int      `json:"exit_code"`
	AttemptsUsed int      `json:"attempts_used"`
	State        RunState `json:"state"`
}
