package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/animus-labs/wfrunner/internal/engine"
	"github.com/animus-labs/wfrunner/internal/materialize"
	"github.com/animus-labs/wfrunner/internal/platform/procexec"
)

func newIdentifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "identify <dir>",
		Short: "Print the identity of a workflow checkout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			m, err := materialize.New(cfg.GitCmd, cfg.WorkflowsBaseDir, procexec.Exec{}, a.logger)
			if err != nil {
				return err
			}
			return a.printJSON(m.Identify(cmd.Context(), args[0]))
		},
	}
}

type engineReport struct {
	Version string `json:"version"`
	Image   string `json:"image"`
}

func newEngineCmd(a *app) *cobra.Command {
	var checkOnly bool
	cmd := &cobra.Command{
		Use:   "engine <dir>",
		Short: "Resolve the engine version of a workflow package and provision its image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			r := engine.NewResolver(cfg.DockerCmd, cfg.EngineImage, cfg.EngineVersion, procexec.Exec{}, a.logger)
			report := engineReport{Version: r.ResolveVersion(args[0])}
			report.Image = r.ImageTag(report.Version)
			if !checkOnly {
				if report.Image, err = r.EnsureImage(cmd.Context(), report.Version); err != nil {
					return err
				}
			}
			return a.printJSON(report)
		},
	}
	cmd.Flags().BoolVar(&checkOnly, "resolve-only", false, "only resolve the version, do not provision the image")
	return cmd
}

func (a *app) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	_, err = fmt.Fprintln(a.stdout, string(b))
	return err
}
