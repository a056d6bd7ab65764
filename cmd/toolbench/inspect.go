package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/toolbench/internal/dataset"
	"github.com/flemzord/toolbench/internal/engine"
	"github.com/flemzord/toolbench/internal/jsonx"
	"github.com/flemzord/toolbench/internal/session"
)

func envsCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "envs",
		Short: "List the environments under the environments root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				envs, err := eng.Loader().Environments(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), envs)
				}
				return printEnvironments(cmd.OutOrStdout(), envs)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func printEnvironments(w io.Writer, envs []dataset.Environment) error {
	if len(envs) == 0 {
		_, err := fmt.Fprintln(w, "No environments.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tINTERFACES\tTABLES\tTITLE")
	for _, env := range envs {
		ifaces := make([]string, len(env.Interfaces))
		for i, iface := range env.Interfaces {
			ifaces[i] = iface.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			env.Name, orDash(strings.Join(ifaces, ",")), orDash(strings.Join(env.Tables, ",")), env.Title)
	}
	return tw.Flush()
}

func catalogCmd(g *globalFlags) *cobra.Command {
	var (
		asJSON     bool
		showSource bool
	)
	cmd := &cobra.Command{
		Use:   "catalog <environment> <interface>",
		Short: "Discover and synthesize the tools of an interface",
		Long: `Discover the tools of an interface, synthesize them into a unit and print
the catalog with any discovery diagnostics. No session is created.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				out, err := eng.Inspect(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if asJSON {
					if !showSource {
						out.Source = ""
					}
					return writeJSON(w, out)
				}
				if showSource {
					if out.Static {
						return errors.New("compiled-in tool set has no source")
					}
					_, err := io.WriteString(w, out.Source)
					return err
				}
				return printCatalog(w, out)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&showSource, "source", false, "Print the assembled unit source")
	return cmd
}

func printCatalog(w io.Writer, out *engine.Inspection) error {
	kind := "discovered"
	if out.Static {
		kind = "compiled-in"
	}
	fmt.Fprintf(w, "%s/%s: %d %s tools\n", out.Environment, out.Interface, len(out.Tools), kind)
	for _, info := range out.Tools {
		fmt.Fprintf(w, "\n  %s", info.Name)
		if info.Description != "" {
			fmt.Fprintf(w, "  %s", info.Description)
		}
		fmt.Fprintln(w)
		for _, p := range info.Params {
			marker := ""
			if p.Required {
				marker = " (required)"
			}
			fmt.Fprintf(w, "    %s %s%s\n", p.Name, orDash(p.Type), marker)
		}
	}
	if len(out.Diagnostics) > 0 {
		fmt.Fprintf(w, "\n%d diagnostics:\n", len(out.Diagnostics))
		for _, d := range out.Diagnostics {
			fmt.Fprintf(w, "  %s: %s: %s\n", d.File, d.Kind, d.Message)
		}
	}
	return nil
}

func replayCmd(g *globalFlags) *cobra.Command {
	var (
		env, iface, historyPath, table string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Fold a recorded history over an environment baseline",
		Long: `Replay a recorded history with the tools of an interface and print the
resulting dataset. The history file holds a JSON array of {"tool", "arguments"}
objects or a session object with a "history" field; "-" reads standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readInput(cmd.InOrStdin(), historyPath)
			if err != nil {
				return err
			}
			history, err := decodeHistory(raw)
			if err != nil {
				return err
			}
			return g.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				data, err := eng.Fold(ctx, env, iface, history)
				if err != nil {
					return err
				}
				if table != "" {
					rows, ok := data[table]
					if !ok {
						return fmt.Errorf("table %q not in dataset (have %s)", table, strings.Join(data.Tables(), ", "))
					}
					return writeJSON(cmd.OutOrStdout(), rows)
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any(data))
			})
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "Environment name")
	cmd.Flags().StringVar(&iface, "interface", "", "Interface name")
	cmd.Flags().StringVar(&historyPath, "history", "", "History file (JSON)")
	cmd.Flags().StringVar(&table, "table", "", "Print only this table")
	_ = cmd.MarkFlagRequired("env")
	_ = cmd.MarkFlagRequired("interface")
	_ = cmd.MarkFlagRequired("history")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// decodeHistory accepts an array of actions or an object holding one
// under "history".
func decodeHistory(raw []byte) ([]session.Action, error) {
	doc, err := jsonx.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	if obj, ok := doc.(map[string]any); ok {
		doc = obj["history"]
	}
	entries, ok := doc.([]any)
	if !ok {
		return nil, errors.New("history must be a JSON array of actions")
	}

	history := make([]session.Action, 0, len(entries))
	for i, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("history[%d]: not an object", i)
		}
		name, _ := obj["tool"].(string)
		if name == "" {
			return nil, fmt.Errorf("history[%d]: missing tool name", i)
		}
		args := map[string]any{}
		if a, ok := obj["arguments"]; ok && a != nil {
			if args, ok = a.(map[string]any); !ok {
				return nil, fmt.Errorf("history[%d]: arguments must be an object", i)
			}
		}
		action := session.Action{Tool: name, Arguments: args}
		if at, ok := obj["at"].(string); ok {
			action.At, _ = time.Parse(time.RFC3339Nano, at)
		}
		history = append(history, action)
	}
	return history, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := jsonx.EncodeIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
