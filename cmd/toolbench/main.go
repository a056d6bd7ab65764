// Package main is the entry point for the toolbench CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/toolbench/internal/core"
	"github.com/flemzord/toolbench/internal/engine"
	"github.com/flemzord/toolbench/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	config   string
	root     string
	dataDir  string
	logLevel string
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "toolbench",
		Short:         "Replay-based sandbox for tool-calling agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&g.config, "config", "c", "", "Path to configuration file")
	flags.StringVar(&g.root, "root", "", "Environments root (overrides the configuration)")
	flags.StringVar(&g.dataDir, "data-dir", "", "Data directory (overrides the configuration)")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		versionCmd(),
		serveCmd(g),
		configCmd(g),
		envsCmd(g),
		catalogCmd(g),
		replayCmd(g),
		playCmd(g),
		mcpCmd(g),
		serviceCmd(g),
	)
	return root
}

func (g *globalFlags) params() app.RunParams {
	return app.RunParams{
		ConfigPath:       g.config,
		Version:          version,
		Commit:           commit,
		Date:             date,
		DataDir:          g.dataDir,
		EnvironmentsRoot: g.root,
		LogLevel:         g.logLevel,
	}
}

// withEngine loads the engine modules without starting them and runs fn.
// Offline commands log at warn level unless --log-level says otherwise.
func (g *globalFlags) withEngine(cmd *cobra.Command, fn func(context.Context, *engine.Engine) error) error {
	params := g.params()
	if params.LogLevel == "" {
		params.LogLevel = "warn"
	}
	params.LogOutput = cmd.ErrOrStderr()

	rt, err := app.Setup(params, app.EngineOnly)
	if err != nil {
		return err
	}
	defer rt.Close()

	eng, err := rt.Engine()
	if err != nil {
		return err
	}
	return fn(cmd.Context(), eng)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "toolbench %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start toolbench with all configured modules",
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Run(g.params())
		},
	}
}

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and load every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := g.params()
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}
			if params.LogLevel == "" {
				params.LogLevel = "warn"
			}
			params.LogOutput = cmd.ErrOrStderr()

			rt, err := app.Setup(params, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			ids := rt.App.Modules()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			fmt.Fprintf(out, "Environments: %s\n", rt.AppCtx.EnvironmentsRoot)
			return nil
		},
	})
	return cmd
}
