package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolbench/internal/core"
	"github.com/flemzord/toolbench/internal/dataset"
	"github.com/flemzord/toolbench/internal/engine"
	"github.com/flemzord/toolbench/internal/jsonx"
	"github.com/flemzord/toolbench/internal/security"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Idle keep-alive connections of http.DefaultClient.
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	info := g.ModuleInfo()

	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want %q", info.ID, "gateway.http")
	}
	if info.New == nil {
		t.Fatal("New func is nil")
	}

	mod := info.New()
	if _, ok := mod.(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}

	node := mustYAMLNode(t, "{}")
	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "127.0.0.1:8080" {
		t.Errorf("Bind = %q, want default", g.config.Bind)
	}
	if g.config.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v, want 10s", g.config.ReadTimeout)
	}
	if g.config.WriteTimeout != 30*time.Second {
		t.Errorf("WriteTimeout = %v, want 30s", g.config.WriteTimeout)
	}
	if g.config.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", g.config.ShutdownTimeout)
	}
	if g.config.MaxBodySize <= 0 || g.config.MaxJSONDepth <= 0 {
		t.Errorf("limits not defaulted: %+v", g.config)
	}
}

func TestGateway_ConfigureCustom(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	node := mustYAMLNode(t, `
bind: "0.0.0.0:9090"
read_timeout: 5s
write_timeout: 15s
shutdown_timeout: 10s
max_body_size: 2048
auth:
  bearer_token: "my-token"
`)

	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "0.0.0.0:9090" {
		t.Errorf("Bind = %q, want custom", g.config.Bind)
	}
	if g.config.Auth.BearerToken != "my-token" {
		t.Errorf("BearerToken = %q", g.config.Auth.BearerToken)
	}
	if g.config.WriteTimeout != 15*time.Second {
		t.Errorf("WriteTimeout = %v, want 15s", g.config.WriteTimeout)
	}
	if g.config.MaxBodySize != 2048 {
		t.Errorf("MaxBodySize = %d, want 2048", g.config.MaxBodySize)
	}
}

func TestGateway_ProvisionRequiresEngine(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	appCtx := core.NewAppContext(discardLogger(), t.TempDir(), "testdata/envs")
	if err := g.Provision(appCtx); err == nil {
		t.Fatal("expected error without engine service")
	}
}

func TestGateway_Provision(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(discardLogger(), t.TempDir(), "testdata/envs")
	appCtx.RegisterService(engine.ServiceName, newTestEngine(t))
	redactor := security.NewRedactor()
	appCtx.RegisterService(security.RedactorService, redactor)

	g := &Gateway{config: Config{Auth: AuthConfig{BearerToken: "gateway-token-1"}}}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	t.Cleanup(g.cancel)

	if got := redactor.Redact("got gateway-token-1"); got != "got "+security.RedactPlaceholder {
		t.Errorf("bearer token not registered as a secret: %q", got)
	}

	if g.metrics == nil {
		t.Error("metrics should be initialized")
	}
	if g.registry == nil {
		t.Error("registry should be initialized")
	}
	if _, ok := appCtx.Service("gateway.metrics"); !ok {
		t.Error("gateway.metrics not registered")
	}
}

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		bind    string
		auth    AuthConfig
		wantErr bool
	}{
		{name: "loopback without auth", bind: "127.0.0.1:8080"},
		{name: "localhost without auth", bind: "localhost:8080"},
		{name: "ipv6 loopback", bind: "[::1]:8080"},
		{name: "public without auth", bind: "0.0.0.0:8080", wantErr: true},
		{name: "public with bearer", bind: "0.0.0.0:8080", auth: AuthConfig{BearerToken: "t"}},
		{name: "public with half basic", bind: "0.0.0.0:8080", auth: AuthConfig{BasicUser: "u"}, wantErr: true},
		{name: "bad address", bind: "not a valid address::", wantErr: true},
		{name: "missing port", bind: "127.0.0.1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := &Gateway{config: Config{Bind: tt.bind, Auth: tt.auth}}
			err := g.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	g := newTestGateway(t, AuthConfig{})
	g.config.Bind = addr

	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp := doGet(t, "http://"+addr+"/health")
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if health.Status != "ok" || health.Environments != 1 {
		t.Errorf("health = %+v, want ok with 1 environment", health)
	}

	http.DefaultClient.CloseIdleConnections()
	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGateway_StartListenError(t *testing.T) {
	t.Parallel()

	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()

	g := newTestGateway(t, AuthConfig{})
	g.config.Bind = ln.Addr().String()
	if err := g.Start(); err == nil {
		t.Fatal("expected listen error on a busy address")
	}
}

func TestGateway_APIRequiresAuthWhenConfigured(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, AuthConfig{BearerToken: "test-token"})
	srv := httptest.NewServer(g.buildRouter())
	defer srv.Close()

	for _, path := range []string{"/status", "/api/sessions", "/api/environments"} {
		resp := doGet(t, srv.URL+path)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s without token = %d, want %d", path, resp.StatusCode, http.StatusUnauthorized)
		}

		resp = doGetWithBearer(t, srv.URL+path, "test-token")
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s with token = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}

	// Health and metrics stay public.
	for _, path := range []string{"/health", "/metrics"} {
		resp := doGet(t, srv.URL+path)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestGateway_StopNilServer(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop on nil server should not error: %v", err)
	}
}

// newTestGateway returns a provisioned gateway over testdata/envs. The
// server is not started; use buildRouter with httptest or call Start.
func newTestGateway(t *testing.T, auth AuthConfig) *Gateway {
	t.Helper()

	appCtx := core.NewAppContext(discardLogger(), t.TempDir(), "testdata/envs")
	appCtx.RegisterService(engine.ServiceName, newTestEngine(t))

	g := &Gateway{}
	g.config = Config{
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
		Auth:            auth,
	}
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	g.startedAt = time.Now()
	t.Cleanup(func() {
		_ = g.Stop(context.Background())
	})
	return g
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.Config{
		Loader: dataset.NewLoader(dataset.LoaderConfig{Root: "testdata/envs"}),
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}

// freeAddr returns a free TCP address on localhost.
func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

// doGet makes a GET request with context.
func doGet(t *testing.T, url string) *http.Response {
	t.Helper()
	return doRequest(t, http.MethodGet, url, "", "")
}

// doGetWithBearer makes a GET request with a bearer token.
func doGetWithBearer(t *testing.T, url, token string) *http.Response {
	t.Helper()
	return doRequest(t, http.MethodGet, url, "", token)
}

func doRequest(t *testing.T, method, url, body, token string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// decodeBody reads resp as a jsonx tree and closes it.
func decodeBody(t *testing.T, resp *http.Response) any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	v, err := jsonx.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return v
}
