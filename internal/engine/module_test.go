package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolbench/internal/core"
	"github.com/flemzord/toolbench/internal/session"
	"github.com/flemzord/toolbench/internal/telemetry"
)

func yamlNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	return doc.Content[0]
}

func copyEnvironments(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "envs")
	if err := os.CopyFS(root, os.DirFS("testdata/envs")); err != nil {
		t.Fatalf("copy testdata: %v", err)
	}
	return root
}

func provisionModule(t *testing.T, cfg string, ctx *core.AppContext) *Module {
	t.Helper()
	m := &Module{}
	if err := m.Configure(yamlNode(t, cfg)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return m
}

func TestModule_ProvisionRegistersEngine(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := core.NewAppContext(logger, t.TempDir(), "testdata/envs")
	store := session.NewMemoryStore()
	ctx.RegisterService("session.store", session.Store(store))

	m := provisionModule(t, "watch: false\n", ctx)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	eng, ok := core.ServiceAs[*Engine](ctx, ServiceName)
	if !ok || eng != m.Engine() {
		t.Fatal("engine service not registered")
	}
	if eng.Store() != session.Store(store) {
		t.Error("engine does not use the registered session store")
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := eng.Select(context.Background(), "s1", "widgets", "x"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := store.Get(context.Background(), "s1"); err != nil {
		t.Errorf("session not persisted in the shared store: %v", err)
	}

	families, err := telemetry.Registry(ctx).Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "toolbench_engine_selects_total" {
			found = true
		}
	}
	if !found {
		t.Error("engine metrics not registered in the shared registry")
	}
}

func TestModule_ValidateRejectsMissingRoot(t *testing.T) {
	t.Parallel()

	ctx := core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), t.TempDir(), "")
	m := &Module{}
	if err := m.Configure(yamlNode(t, "root: "+filepath.Join(t.TempDir(), "missing")+"\n")); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Validate(); err == nil {
		t.Error("expected an error for a missing root")
	}
}

func TestModuleConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     ModuleConfig
		wantErr bool
	}{
		{name: "defaults", cfg: ModuleConfig{Root: "envs"}},
		{name: "no root", cfg: ModuleConfig{}, wantErr: true},
		{name: "negative cache", cfg: ModuleConfig{Root: "envs", UnitCacheSize: -1}, wantErr: true},
		{name: "negative poll", cfg: ModuleConfig{Root: "envs", PollInterval: -time.Second}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			cfg.defaults()
			if err := cfg.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestModule_WatchInvalidatesBaseline(t *testing.T) {
	t.Parallel()

	root := copyEnvironments(t)
	ctx := core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), t.TempDir(), root)
	m := provisionModule(t, "poll_interval: 10ms\n", ctx)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	eng := m.Engine()
	id := "watched"
	if _, err := eng.Select(context.Background(), id, "widgets", "x"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := eng.State(context.Background(), id); err != nil {
		t.Fatalf("State: %v", err)
	}

	// Let the watcher take its first snapshot.
	time.Sleep(50 * time.Millisecond)

	users := `{"1": {"name": "Ada", "status": "active"}, "2": {"name": "Grace", "status": "suspended"}, "3": {"name": "Linus", "status": "active"}}`
	if err := os.WriteFile(filepath.Join(root, "widgets", "data", "users.json"), []byte(users), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		state, err := eng.State(context.Background(), id)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		if _, ok := state.Record("users", "3"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("baseline change not picked up")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestModule_Reload(t *testing.T) {
	t.Parallel()

	ctx := core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), t.TempDir(), "testdata/envs")
	m := provisionModule(t, "watch: false\n", ctx)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	next := ctx.WithModuleConfigs(map[string]yaml.Node{
		"engine.replay": *yamlNode(t, "root: elsewhere\n"),
	})
	if err := m.Reload(next); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if m.config.Root == "elsewhere" {
		t.Error("root must not change on reload")
	}
}
