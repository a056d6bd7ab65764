package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/toolbench/internal/engine"
	"github.com/flemzord/toolbench/internal/jsonx"
	"github.com/flemzord/toolbench/internal/tool"
)

// Menu entries besides the tools of the session.
const (
	choiceState   = ":state"
	choiceHistory = ":history"
	choiceReset   = ":reset"
	choiceQuit    = ":quit"
)

func playCmd(g *globalFlags) *cobra.Command {
	var (
		env, iface, sessionID string
		accessible            bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Invoke tools interactively against a replayed environment",
		Long: `Select an environment and interface, then call its tools one at a time.
Committed calls are stored in the configured session store; pass --session
to resume a session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				p := &player{
					eng:        eng,
					in:         cmd.InOrStdin(),
					out:        cmd.OutOrStdout(),
					accessible: accessible,
				}
				err := p.run(ctx, sessionID, env, iface)
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "Environment name (prompted when empty)")
	cmd.Flags().StringVar(&iface, "interface", "", "Interface name (prompted when empty)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session to resume or create")
	cmd.Flags().BoolVar(&accessible, "accessible", false, "Plain line-based prompts")
	return cmd
}

type player struct {
	eng        *engine.Engine
	in         io.Reader
	out        io.Writer
	accessible bool
}

func (p *player) form(fields ...huh.Field) *huh.Form {
	return huh.NewForm(huh.NewGroup(fields...)).
		WithAccessible(p.accessible).
		WithInput(p.in).
		WithOutput(p.out)
}

func (p *player) run(ctx context.Context, sessionID, env, iface string) error {
	sum, err := p.open(ctx, sessionID, env, iface)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "session %s: %s/%s, %d tools\n", sum.SessionID, sum.Environment, sum.Interface, len(sum.Tools))

	for {
		choice, err := p.pick(ctx, sum)
		if err != nil {
			return err
		}
		switch choice {
		case choiceQuit:
			return nil
		case choiceState:
			state, err := p.eng.State(ctx, sum.SessionID)
			if err != nil {
				return err
			}
			if err := writeJSON(p.out, map[string]any(state)); err != nil {
				return err
			}
		case choiceHistory:
			history, err := p.eng.History(ctx, sum.SessionID)
			if err != nil {
				return err
			}
			for i, a := range history {
				args, _ := jsonx.Encode(a.Arguments)
				fmt.Fprintf(p.out, "%3d  %s %s\n", i, a.Tool, args)
			}
		case choiceReset:
			if err := p.eng.Reset(ctx, sum.SessionID); err != nil {
				return err
			}
			fmt.Fprintln(p.out, "history cleared")
		default:
			if err := p.call(ctx, sum, choice); err != nil {
				return err
			}
		}
	}
}

// open resumes sessionID when no environment is given, otherwise selects
// env/iface, prompting for whichever is missing.
func (p *player) open(ctx context.Context, sessionID, env, iface string) (*engine.CatalogSummary, error) {
	if sessionID != "" && env == "" {
		return p.eng.Tools(ctx, sessionID)
	}

	envs, err := p.eng.Loader().Environments(ctx)
	if err != nil {
		return nil, err
	}
	if env == "" {
		if len(envs) == 0 {
			return nil, errors.New("no environments under the root")
		}
		opts := make([]huh.Option[string], len(envs))
		for i, e := range envs {
			opts[i] = huh.NewOption(label(e.Name, e.Title), e.Name)
		}
		if err := p.form(huh.NewSelect[string]().Title("Environment").Options(opts...).Value(&env)).RunWithContext(ctx); err != nil {
			return nil, err
		}
	}
	if iface == "" {
		var opts []huh.Option[string]
		for _, e := range envs {
			if e.Name != env {
				continue
			}
			for _, i := range e.Interfaces {
				opts = append(opts, huh.NewOption(label(i.Name, i.Label), i.Name))
			}
		}
		if len(opts) == 0 {
			return nil, fmt.Errorf("environment %s has no interfaces", env)
		}
		if err := p.form(huh.NewSelect[string]().Title("Interface").Options(opts...).Value(&iface)).RunWithContext(ctx); err != nil {
			return nil, err
		}
	}
	return p.eng.Select(ctx, sessionID, env, iface)
}

func (p *player) pick(ctx context.Context, sum *engine.CatalogSummary) (string, error) {
	opts := make([]huh.Option[string], 0, len(sum.Tools)+4)
	for _, info := range sum.Tools {
		opts = append(opts, huh.NewOption(label(info.Name, info.Description), info.Name))
	}
	opts = append(opts,
		huh.NewOption("show state", choiceState),
		huh.NewOption("show history", choiceHistory),
		huh.NewOption("reset history", choiceReset),
		huh.NewOption("quit", choiceQuit),
	)
	var choice string
	err := p.form(huh.NewSelect[string]().Title("Tool").Options(opts...).Value(&choice)).RunWithContext(ctx)
	return choice, err
}

// call prompts for the parameters of name and invokes it. Rejected calls
// are printed; only engine failures end the session.
func (p *player) call(ctx context.Context, sum *engine.CatalogSummary, name string) error {
	var info tool.Info
	for _, t := range sum.Tools {
		if t.Name == name {
			info = t
		}
	}

	values := make([]string, len(info.Params))
	if len(info.Params) > 0 {
		fields := make([]huh.Field, len(info.Params))
		for i, param := range info.Params {
			fields[i] = huh.NewInput().
				Title(paramTitle(param)).
				Description(param.Description).
				Value(&values[i]).
				Validate(func(s string) error {
					_, _, err := parseValue(param, s)
					return err
				})
		}
		if err := p.form(fields...).RunWithContext(ctx); err != nil {
			return err
		}
	}

	args, err := buildArguments(info.Params, values)
	if err != nil {
		return err
	}
	res, err := p.eng.Invoke(ctx, sum.SessionID, engine.Call{Tool: name, Arguments: args})
	if err != nil {
		var ierr *engine.InvocationError
		if errors.As(err, &ierr) || errors.Is(err, tool.ErrToolNotFound) {
			fmt.Fprintf(p.out, "rejected: %v\n", err)
			return nil
		}
		return err
	}
	if err := writeJSON(p.out, res.Output); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "committed (history: %d)\n", res.HistoryLen)
	return nil
}

// parseValue turns a prompt answer into an argument. Declared strings are
// taken verbatim; other values are read as JSON, falling back to the raw
// text for untyped parameters. ok is false for an omitted optional value.
func parseValue(param tool.Param, s string) (v any, ok bool, err error) {
	if s == "" {
		if param.Required {
			return nil, false, fmt.Errorf("%s is required", param.Name)
		}
		return nil, false, nil
	}
	if param.Type == "string" {
		return s, true, nil
	}
	v, err = jsonx.Decode([]byte(s))
	if err != nil {
		if param.Type == "" {
			return s, true, nil
		}
		return nil, false, fmt.Errorf("%s: not a JSON %s", param.Name, param.Type)
	}
	return v, true, nil
}

func buildArguments(params []tool.Param, values []string) (map[string]any, error) {
	args := make(map[string]any, len(params))
	for i, param := range params {
		v, ok, err := parseValue(param, values[i])
		if err != nil {
			return nil, err
		}
		if ok {
			args[param.Name] = v
		}
	}
	return args, nil
}

func paramTitle(p tool.Param) string {
	title := p.Name
	if p.Type != "" {
		title += " (" + p.Type + ")"
	}
	if p.Required {
		title += " *"
	}
	return title
}

func label(name, detail string) string {
	if detail == "" {
		return name
	}
	return name + " - " + detail
}
