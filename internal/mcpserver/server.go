// Package mcpserver exposes the catalog of one engine session as Model
// Context Protocol tools. Each tools/call is an engine Invoke, so an MCP
// client drives the same replayed environment as the HTTP gateway.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/toolbench/internal/engine"
	"github.com/flemzord/toolbench/internal/jsonx"
	"github.com/flemzord/toolbench/internal/tool"
)

// StateURI is the resource holding the replayed dataset of the session.
const StateURI = "toolbench://state"

// Config configures a Server.
type Config struct {
	Engine *engine.Engine

	// SessionID names the session to serve. When Environment is set the
	// session is (re)selected first; an empty SessionID then creates one.
	SessionID   string
	Environment string
	Interface   string

	Name    string
	Version string
	Logger  *slog.Logger
}

// Server serves one session over MCP.
type Server struct {
	eng     *engine.Engine
	session string
	summary *engine.CatalogSummary
	mcp     *server.MCPServer
	logger  *slog.Logger
}

// New selects or resolves the session and registers its tools.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("mcpserver: engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "toolbench"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	var (
		sum *engine.CatalogSummary
		err error
	)
	if cfg.Environment != "" {
		sum, err = cfg.Engine.Select(ctx, cfg.SessionID, cfg.Environment, cfg.Interface)
	} else {
		sum, err = cfg.Engine.Tools(ctx, cfg.SessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("mcpserver: %w", err)
	}

	s := &Server{
		eng:     cfg.Engine,
		session: sum.SessionID,
		summary: sum,
		logger:  logger.With("component", "mcpserver", "session", sum.SessionID),
		mcp: server.NewMCPServer(cfg.Name, cfg.Version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
			server.WithRecovery(),
		),
	}

	for _, info := range sum.Tools {
		schema, err := inputSchema(info)
		if err != nil {
			return nil, fmt.Errorf("mcpserver: schema of %s: %w", info.Name, err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(info.Name, info.Description, schema), s.callTool(info.Name))
	}
	s.mcp.AddResource(mcp.NewResource(StateURI, "state",
		mcp.WithResourceDescription("Dataset after replaying the session history."),
		mcp.WithMIMEType("application/json"),
	), s.readState)

	return s, nil
}

// SessionID returns the served session.
func (s *Server) SessionID() string { return s.session }

// Summary returns the catalog the server was built from.
func (s *Server) Summary() *engine.CatalogSummary { return s.summary }

// Serve speaks MCP over in/out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server ready", "tools", len(s.summary.Tools))
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

// callTool runs name through the engine. Rejected calls are tool errors
// the model can read; other failures are protocol errors.
func (s *Server) callTool(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := arguments(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res, err := s.eng.Invoke(ctx, s.session, engine.Call{Tool: name, Arguments: args})
		if err != nil {
			var ierr *engine.InvocationError
			if errors.As(err, &ierr) || errors.Is(err, tool.ErrToolNotFound) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			s.logger.Error("mcp tool call failed", "tool", name, "error", err)
			return nil, err
		}

		text, err := jsonx.Encode(res.Output)
		if err != nil {
			return nil, fmt.Errorf("encoding output of %s: %w", name, err)
		}
		return mcp.NewToolResultText(string(text)), nil
	}
}

func (s *Server) readState(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	state, err := s.eng.State(ctx, s.session)
	if err != nil {
		return nil, err
	}
	data, err := jsonx.Encode(map[string]any(state))
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// arguments re-reads the client arguments through jsonx. encoding/json
// decodes every number as float64; the round trip restores int64 for
// integral literals, and the engine's normalizer turns schema-declared
// number parameters back into floats.
func arguments(raw map[string]any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return jsonx.DecodeObject(data)
}

// inputSchema renders the declared parameters as a JSON Schema object.
func inputSchema(info tool.Info) (json.RawMessage, error) {
	props := make(map[string]any, len(info.Params))
	required := []any{}
	for _, p := range info.Params {
		schema := map[string]any{}
		if p.Schema != nil {
			schema = p.Schema
		}
		props[p.Name] = schema
		if p.Required {
			required = append(required, p.Name)
		}
	}
	obj := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		obj["required"] = required
	}
	return jsonx.Encode(obj)
}
