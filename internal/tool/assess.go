package tool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/animus-labs/wfrunner/internal/archive"
	"github.com/animus-labs/wfrunner/internal/config"
	"github.com/animus-labs/wfrunner/internal/domain"
	"github.com/animus-labs/wfrunner/internal/engine"
	"github.com/animus-labs/wfrunner/internal/plan"
	"github.com/animus-labs/wfrunner/internal/runner"
)

// Fixed output parameters handed to every workflow.
const (
	ParamStatsDir   = "statsdir"
	ParamResultsDir = "results_dir"
	ParamOutDir     = "outdir"
	ParamOtherDir   = "otherdir"
)

// assessment is what validateAndAssess learned about the execution.
type assessment struct {
	identity      domain.WorkflowIdentity
	engineVersion string
	image         string
	replayed      bool
	ran           bool
	outcome       domain.RunOutcome
	startedAt     time.Time
	finishedAt    time.Time
}

// validateAndAssess prepares the workflow and its engine, then runs it. An
// execution that exhausts its retry budget is reported as ErrExecutionExhausted.
func (t *Tool) validateAndAssess(ctx context.Context, l layout, inputs map[string]string) (assessment, error) {
	var res assessment

	uri := strings.TrimSpace(t.configuration[domain.KeyRepoURI])
	revision := strings.TrimSpace(t.configuration[domain.KeyRepoTag])
	if uri == "" || revision == "" {
		return res, fmt.Errorf("%w: both %s and %s must be defined", domain.ErrConfiguration, domain.KeyRepoURI, domain.KeyRepoTag)
	}
	resolvedInputs, err := plan.ResolveInputs(l.projectPath, inputs, t.logger)
	if err != nil {
		return res, err
	}

	workDir, err := os.MkdirTemp(t.tempDir, "vre-*-job")
	if err != nil {
		return res, fmt.Errorf("create engine working directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()
	staging, err := os.MkdirTemp(t.tempDir, "wfrunner-wf-*")
	if err != nil {
		return res, fmt.Errorf("create workflow staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	workflowDir, replayed, err := t.prepareWorkflow(ctx, uri, revision, l.snapshot, staging)
	if err != nil {
		return res, err
	}
	res.replayed = replayed
	if reldir := t.configuration[domain.KeyRepoRelDir]; reldir != "" {
		workflowDir = filepath.Join(workflowDir, reldir)
	}

	id := t.materializer.Identify(ctx, workflowDir)
	t.logger.Info("cached workflow", "uri", id.RemoteURI, "revision", id.Revision)
	if !id.Matches(uri, revision) {
		t.logger.Warn("cached workflow differs from requested one",
			"expected_uri", uri, "expected_revision", revision,
			"found_uri", id.RemoteURI, "found_revision", id.Revision,
		)
	}
	if id.RemoteURI == "" {
		id.RemoteURI = uri
	}
	if id.Revision == "" {
		id.Revision = revision
	}
	if id.Tainted {
		t.logger.Warn("local copy of the workflow is tainted", "report", id.TaintReport)
	}
	res.identity = id

	version := t.resolver.ResolveVersion(workflowDir)
	t.logger.Info("engine version selected", "version", version)
	res.engineVersion = version
	image, err := t.resolver.EnsureImage(ctx, version)
	if err != nil {
		return res, err
	}
	res.image = image

	for _, dir := range []string{l.resultsDir, l.statsDir, l.otherDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return res, fmt.Errorf("create output directory: %w", err)
		}
	}

	uid, gid := plan.CurrentUser()
	rt := plan.RuntimeOptions{
		UID:          uid,
		GID:          gid,
		Timezone:     plan.ReadTimezone(t.cfg.TimezoneFile, t.cfg.TimezoneFallback),
		HomeDir:      t.homeDir,
		EngineHome:   plan.EngineHome(t.homeDir, version),
		MaxCPUs:      t.cfg.MaxCPUs,
		WorkdirMount: engine.NeedsWorkdirMount(version),
		Unconfined:   plan.ParseFlag(t.configuration[domain.KeyDockerUnconfined]),
	}
	if err := os.MkdirAll(rt.EngineHome, 0o755); err != nil {
		return res, fmt.Errorf("create engine home: %w", err)
	}
	if _, err := plan.WriteSetup(workDir, workflowDir, rt); err != nil {
		return res, err
	}

	outputs := []plan.NamedPath{
		{Key: ParamStatsDir, Path: l.statsDir + "/"},
		{Key: ParamResultsDir, Path: l.resultsDir + "/"},
		{Key: ParamOutDir, Path: l.resultsDir + "/"},
		{Key: ParamOtherDir, Path: l.otherDir + "/"},
	}
	outputs = append(outputs, l.populable...)

	p, err := plan.Build(plan.Input{
		Config:        t.configuration,
		ProjectPath:   l.projectPath,
		ExecutionPath: l.executionPath,
		WorkflowDir:   workflowDir,
		WorkDir:       workDir,
		Inputs:        resolvedInputs,
		Outputs:       outputs,
		Runtime:       rt,
	})
	if err != nil {
		return res, err
	}

	res.startedAt = t.now()
	outcome, err := t.runner.Execute(ctx, p, runner.EngineSpec{Image: image, Profile: t.profile()}, runner.Housekeeping{
		WorkDir:      workDir,
		ArchivePath:  l.workdirArchive,
		SnapshotPath: l.snapshot,
		DropSnapshot: !replayed,
	})
	res.finishedAt = t.now()
	res.ran = true
	res.outcome = outcome
	if !outcome.Success {
		exhausted := fmt.Errorf("%w: exit code %d after %d attempt(s)", domain.ErrExecutionExhausted, outcome.ExitCode, outcome.AttemptsUsed)
		return res, errors.Join(exhausted, err)
	}
	return res, err
}

// prepareWorkflow returns a private, writable copy of the workflow package. An
// existing snapshot is replayed; otherwise the package is materialized and a new
// snapshot is written first.
func (t *Tool) prepareWorkflow(ctx context.Context, uri, revision, snapshot, staging string) (string, bool, error) {
	_, err := os.Stat(snapshot)
	replayed := err == nil
	if !replayed {
		dir, err := t.materializer.Materialize(ctx, uri, revision)
		if err != nil {
			return "", false, err
		}
		t.logger.Info("fetched workflow", "uri", uri, "revision", revision)
		if err := archive.Pack(dir, snapshot, SnapshotRoot(revision)); err != nil {
			_ = os.RemoveAll(snapshot)
			return "", false, fmt.Errorf("snapshot workflow: %w", err)
		}
	} else {
		t.logger.Info("replaying workflow snapshot", "path", snapshot)
	}

	info, err := os.Stat(snapshot)
	if err != nil {
		return "", replayed, fmt.Errorf("%w: stat snapshot: %w", domain.ErrArchive, err)
	}
	switch {
	case info.Mode().IsRegular():
		root, err := archive.Unpack(snapshot, staging)
		return root, replayed, err
	case info.IsDir():
		dest := filepath.Join(staging, filepath.Base(snapshot))
		if err := archive.CopyTree(snapshot, dest); err != nil {
			return "", replayed, fmt.Errorf("copy workflow snapshot: %w", err)
		}
		return dest, replayed, nil
	default:
		return "", replayed, fmt.Errorf("%w: workflow snapshot %s is of an unexpected kind", domain.ErrConfiguration, snapshot)
	}
}

// SnapshotRoot names the root entry of a workflow snapshot archive.
func SnapshotRoot(revision string) string {
	return "workflow-" + strings.ReplaceAll(revision, "/", "_")
}

// profile returns the engine profile; an explicitly empty value disables it.
func (t *Tool) profile() string {
	if p, ok := t.configuration[domain.KeyRepoProfile]; ok {
		return p
	}
	return config.DefaultProfile
}
