package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/toolbench/internal/mcpserver"
	"github.com/flemzord/toolbench/pkg/app"
)

func mcpCmd(g *globalFlags) *cobra.Command {
	var env, iface, sessionID string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tools of one session over MCP on stdin/stdout",
		Long: `Expose the tools of an environment interface to a Model Context Protocol
client. With --env and --interface the session is selected (a new one unless
--session is given); with --session alone an existing session is resumed.
Logs go to standard error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := g.params()
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
			if err := rt.App.Start(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := mcpserver.New(ctx, mcpserver.Config{
				Engine:      eng,
				SessionID:   sessionID,
				Environment: env,
				Interface:   iface,
				Version:     version,
				Logger:      rt.Logger,
			})
			if err != nil {
				return err
			}
			err = srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "Environment name")
	cmd.Flags().StringVar(&iface, "interface", "", "Interface name")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session to serve")
	cmd.MarkFlagsRequiredTogether("env", "interface")
	cmd.MarkFlagsOneRequired("env", "session")
	return cmd
}
