package domain

import "time"

// RunRecord summarizes one workflow execution for the run ledger.
type RunRecord struct {
	RunID         string
	Participant   string
	RemoteURI     string
	Revision      string
	Tainted       bool
	EngineVersion string
	Image         string
	Replayed      bool
	Outcome       RunOutcome
	StartedAt     time.Time
	FinishedAt    time.Time
}
