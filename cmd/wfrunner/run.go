package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/animus-labs/wfrunner/internal/ledger"
	"github.com/animus-labs/wfrunner/internal/platform/objectstore"
	"github.com/animus-labs/wfrunner/internal/platform/postgres"
	"github.com/animus-labs/wfrunner/internal/platform/procexec"
	"github.com/animus-labs/wfrunner/internal/publish"
	"github.com/animus-labs/wfrunner/internal/tool"
)

func newRunCmd(a *app) *cobra.Command {
	var jobPath, outPath string
	cmd := &cobra.Command{
		Use:   "run --job job.yaml",
		Short: "Run one workflow execution described by a job file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), jobPath, outPath)
		},
	}
	cmd.Flags().StringVar(&jobPath, "job", "", "job file with config, inputs, input_metadata and outputs")
	cmd.Flags().StringVar(&outPath, "out", "", "write the result JSON here instead of stdout")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func (a *app) run(ctx context.Context, jobPath, outPath string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	job, err := LoadJob(jobPath)
	if err != nil {
		return err
	}

	opts := tool.Options{
		Commander: procexec.Exec{},
		Logger:    a.logger,
		Stdout:    a.stderr,
		Stderr:    a.stderr,
	}
	if rec, closeFn := a.openLedger(ctx); rec != nil {
		defer closeFn()
		opts.Recorder = rec
	}
	if pub := a.openPublisher(ctx); pub != nil {
		opts.Publisher = pub
	}

	t, err := tool.New(cfg, job.Config, opts)
	if err != nil {
		return err
	}
	a.logger.Info("workflow runner started", "run_id", t.RunID(), "settings", cfg.Source)

	outputs, metadata, err := t.Run(ctx, job.Inputs, job.InputMetadata, job.Outputs)
	if err != nil {
		return err
	}
	return a.writeResult(outPath, Result{RunID: t.RunID(), Outputs: outputs, Metadata: metadata})
}

// openLedger connects the optional run ledger. Any failure disables it.
func (a *app) openLedger(ctx context.Context) (*ledger.Store, func()) {
	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		a.logger.Warn("invalid run ledger config, ledger disabled", "error", err)
		return nil, nil
	}
	if !dbCfg.Enabled() {
		return nil, nil
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		a.logger.Warn("run ledger unavailable", "error", err)
		return nil, nil
	}
	store := ledger.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		a.logger.Warn("run ledger schema unavailable", "error", err)
		_ = db.Close()
		return nil, nil
	}
	return store, func() { _ = db.Close() }
}

// openPublisher connects the optional archive bucket. Any failure disables it.
func (a *app) openPublisher(ctx context.Context) *publish.Publisher {
	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		a.logger.Warn("invalid object store config, publishing disabled", "error", err)
		return nil
	}
	if !storeCfg.Enabled() {
		return nil
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	store, err := objectstore.NewMinioStore(startupCtx, storeCfg)
	if err != nil {
		a.logger.Warn("object store unavailable, publishing disabled", "error", err)
		return nil
	}
	return publish.New(store, a.logger)
}

func (a *app) writeResult(outPath string, res Result) error {
	b, err := json.MarshalIndent(res, "", "    ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	b = append(b, '\n')
	if outPath == "" {
		_, err = a.stdout.Write(b)
		return err
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
