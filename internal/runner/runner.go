package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/animus-labs/wfrunner/internal/archive"
	"github.com/animus-labs/wfrunner/internal/domain"
	"github.com/animus-labs/wfrunner/internal/plan"
	"github.com/animus-labs/wfrunner/internal/platform/procexec"
)

// WorkdirArchiveRoot is the root entry of the archived engine workdir.
const WorkdirArchiveRoot = "nextflow-workdir"

// housekeepingExitCode marks a successful run whose housekeeping failed.
const housekeepingExitCode = 127

type Runner struct {
	docker     string
	cmd        procexec.Commander
	maxRetries int
	retryDelay time.Duration
	stdout     io.Writer
	stderr     io.Writer
	logger     *slog.Logger
}

type Option func(*Runner)

// WithOutput streams engine output to the given writers while it is captured.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithRetryDelay waits between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) { r.retryDelay = d }
}

func New(dockerCmd string, maxRetries int, cmd procexec.Commander, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if maxRetries < 1 {
		return nil, errors.New("max retries must be >= 1")
	}
	if strings.TrimSpace(dockerCmd) == "" {
		dockerCmd = "docker"
	}
	if cmd == nil {
		cmd = procexec.Exec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{docker: dockerCmd, cmd: cmd, maxRetries: maxRetries, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run invokes the engine until it succeeds or the retry budget is spent. An
// exhausted budget is a failed outcome, not an error; errors are reserved for
// invocations that could not be started at all or a cancelled context.
func (r *Runner) Run(ctx context.Context, p plan.ExecutionPlan, engine EngineSpec) (domain.RunOutcome, error) {
	base, resume := r.Commands(p, engine)

	outcome := domain.RunOutcome{State: domain.RunStateAttempting, ExitCode: -1}
	current := base
	op := func() error {
		outcome.AttemptsUsed++
		outcome.State = domain.RunStateAttempting
		r.logger.Debug("running workflow", "attempt", outcome.AttemptsUsed, "command", current.String())

		_, err := r.cmd.Run(ctx, current)
		if err == nil {
			outcome.ExitCode = 0
			return nil
		}
		if !procexec.Exited(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		outcome.ExitCode = procexec.ExitCode(err)
		outcome.State = domain.RunStateRetrying
		current = resume
		return err
	}
	notify := func(err error, _ time.Duration) {
		r.logger.Warn("workflow attempt failed",
			"exit_code", outcome.ExitCode,
			"attempt", outcome.AttemptsUsed,
			"tries_left", r.maxRetries-outcome.AttemptsUsed,
		)
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(r.retryDelay), uint64(r.maxRetries-1))
	err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify)
	switch {
	case err == nil:
		outcome.Success = true
		outcome.State = domain.RunStateSucceeded
		return outcome, nil
	case procexec.Exited(err) && ctx.Err() == nil:
		outcome.State = domain.RunStateExhausted
		r.logger.Error("workflow execution failed", "exit_code", outcome.ExitCode, "attempts", outcome.AttemptsUsed)
		return outcome, nil
	default:
		outcome.State = domain.RunStateExhausted
		return outcome, fmt.Errorf("run workflow: %w", err)
	}
}

// Housekeeping describes the post-run cleanup of one execution.
type Housekeeping struct {
	WorkDir string
	// ArchivePath receives the archived workdir.
	ArchivePath string
	// SnapshotPath is the package snapshot used by the run.
	SnapshotPath string
	// DropSnapshot is set when this run created the snapshot itself.
	DropSnapshot bool
}

// Finalize performs housekeeping and returns the final outcome. A successful run
// whose housekeeping fails becomes a failure.
func (r *Runner) Finalize(outcome domain.RunOutcome, hk Housekeeping) (domain.RunOutcome, error) {
	var errs []error
	if outcome.Success {
		if err := os.RemoveAll(filepath.Join(hk.WorkDir, "work")); err != nil {
			errs = append(errs, fmt.Errorf("remove engine state: %w", err))
		}
		if hk.DropSnapshot && hk.SnapshotPath != "" {
			if err := os.RemoveAll(hk.SnapshotPath); err != nil {
				errs = append(errs, fmt.Errorf("remove workflow snapshot: %w", err))
			}
		}
	}
	if err := archive.Pack(hk.WorkDir, hk.ArchivePath, WorkdirArchiveRoot); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil && outcome.Success {
		outcome.Success = false
		outcome.ExitCode = housekeepingExitCode
		outcome.State = domain.RunStateExhausted
	}
	return outcome, err
}

// Execute runs the plan and performs housekeeping.
func (r *Runner) Execute(ctx context.Context, p plan.ExecutionPlan, engine EngineSpec, hk Housekeeping) (domain.RunOutcome, error) {
	outcome, runErr := r.Run(ctx, p, engine)
	outcome, hkErr := r.Finalize(outcome, hk)
	if hkErr != nil {
		r.logger.Error("post-run housekeeping failed", "error", hkErr)
	}
	return outcome, errors.Join(runErr, hkErr)
}
