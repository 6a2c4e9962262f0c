package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/animus-labs/wfrunner/internal/config"
)

// app carries the state shared by all subcommands.
type app struct {
	configPath string
	debug      bool
	stdout     io.Writer
	stderr     io.Writer
	logger     *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "wfrunner",
		Short:         "Run versioned workflow packages in the engine container",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			a.logger = newLogger(a.stderr, a.debug)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "local settings file (default <executable>.ini)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newRunCmd(a),
		newIdentifyCmd(a),
		newEngineCmd(a),
	)
	return root
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func (a *app) loadConfig() (config.Config, error) {
	return config.Load(a.configPath, a.logger)
}
