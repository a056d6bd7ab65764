package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/toolbench/pkg/app"
)

// program runs app.Serve under the system service manager.
type program struct {
	params app.RunParams
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		p.done <- app.Serve(ctx, p.params)
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// serviceConfig describes the installed service and returns params with
// absolute paths, since service managers start binaries from another
// directory.
func serviceConfig(params app.RunParams) (*service.Config, app.RunParams, error) {
	if params.ConfigPath == "" {
		resolved, err := app.ResolveConfigPath()
		if err != nil {
			return nil, params, err
		}
		params.ConfigPath = resolved
	}
	for _, p := range []*string{&params.ConfigPath, &params.EnvironmentsRoot, &params.DataDir} {
		if *p == "" || strings.Contains(*p, "://") {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, params, err
		}
		*p = abs
	}

	args := []string{"service", "run", "--config", params.ConfigPath}
	if params.EnvironmentsRoot != "" {
		args = append(args, "--root", params.EnvironmentsRoot)
	}
	if params.DataDir != "" {
		args = append(args, "--data-dir", params.DataDir)
	}
	if params.LogLevel != "" {
		args = append(args, "--log-level", params.LogLevel)
	}

	return &service.Config{
		Name:        "toolbench",
		DisplayName: "Toolbench",
		Description: "Replay-based sandbox for tool-calling agents.",
		Arguments:   args,
	}, params, nil
}

func serviceCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage toolbench as a system service",
	}
	newService := func() (service.Service, *program, error) {
		cfg, params, err := serviceConfig(g.params())
		if err != nil {
			return nil, nil, err
		}
		prg := &program{params: params}
		svc, err := service.New(prg, cfg)
		if err != nil {
			return nil, nil, err
		}
		return svc, prg, nil
	}

	for _, action := range service.ControlAction {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the system service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, _, err := newService()
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the system service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := newService()
			if err != nil {
				return err
			}
			status, err := svc.Status()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusName(status))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, _, err := newService()
			if err != nil {
				return err
			}
			return svc.Run()
		},
	})
	return cmd
}

func statusName(s service.Status) string {
	names := map[service.Status]string{
		service.StatusRunning: "running",
		service.StatusStopped: "stopped",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return "unknown"
}
