package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestLoader(t *testing.T, cfg LoaderConfig) *Loader {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = "testdata"
	}
	return NewLoader(cfg)
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	l := newTestLoader(t, LoaderConfig{})
	ds, err := l.Load(context.Background(), "widgets")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if diff := cmp.Diff([]string{"parts", "users", "widgets"}, ds.Tables()); diff != "" {
		t.Errorf("Tables mismatch (-want +got):\n%s", diff)
	}
	user, ok := ds.Record("users", "1")
	if !ok {
		t.Fatal("users/1 missing")
	}
	if user["status"] != "active" {
		t.Errorf("status = %v, want active", user["status"])
	}

	parts := ds.Table("parts")
	for _, id := range []string{"p-1", "7", "2"} {
		if _, ok := parts[id]; !ok {
			t.Errorf("parts[%q] missing; got keys %v", id, keys(parts))
		}
	}
	if w, _ := ds.Record("parts", "7"); w["weight"] != float64(1) {
		t.Errorf("weight = %#v, want float64(1)", w["weight"])
	}
}

func TestLoader_LoadReturnsPrivateCopies(t *testing.T) {
	t.Parallel()

	l := newTestLoader(t, LoaderConfig{})
	ctx := context.Background()

	first, err := l.Load(ctx, "widgets")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	first.Table("widgets")["1"] = map[string]any{"owner": "1"}
	user, _ := first.Record("users", "1")
	user["status"] = "suspended"

	second, err := l.Load(ctx, "widgets")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := len(second.Table("widgets")); n != 0 {
		t.Errorf("second load has %d widgets, want 0", n)
	}
	if u, _ := second.Record("users", "1"); u["status"] != "active" {
		t.Errorf("status leaked between loads: %v", u["status"])
	}
}

func TestLoader_CacheAndInvalidate(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "env", "data", "t.json"), `{"a": {"v": 1}}`)

	l := NewLoader(LoaderConfig{Root: root})
	ctx := context.Background()
	if _, err := l.Load(ctx, "env"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	writeFile(t, filepath.Join(root, "env", "data", "t.json"), `{"a": {"v": 2}}`)

	ds, _ := l.Load(ctx, "env")
	if r, _ := ds.Record("t", "a"); r["v"] != int64(1) {
		t.Errorf("cached load v = %v, want 1", r["v"])
	}

	l.Invalidate("env")
	ds, _ = l.Load(ctx, "env")
	if r, _ := ds.Record("t", "a"); r["v"] != int64(2) {
		t.Errorf("after invalidate v = %v, want 2", r["v"])
	}
}

func TestLoader_DisableCache(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "env", "data", "t.json"), `{"a": {"v": 1}}`)

	l := NewLoader(LoaderConfig{Root: root, DisableCache: true})
	ctx := context.Background()
	if _, err := l.Load(ctx, "env"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	writeFile(t, filepath.Join(root, "env", "data", "t.json"), `{"a": {"v": 3}}`)
	ds, _ := l.Load(ctx, "env")
	if r, _ := ds.Record("t", "a"); r["v"] != int64(3) {
		t.Errorf("v = %v, want 3", r["v"])
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bad", "data", "t.json"), `"just a string"`)

	l := NewLoader(LoaderConfig{Root: root})
	ctx := context.Background()

	if _, err := l.Load(ctx, "missing"); !errors.Is(err, ErrEnvironmentNotFound) {
		t.Errorf("missing env err = %v, want ErrEnvironmentNotFound", err)
	}
	if _, err := l.Load(ctx, "bad"); !errors.Is(err, ErrInvalidTable) {
		t.Errorf("bad table err = %v, want ErrInvalidTable", err)
	}
}

func TestLoader_EmptyEnvironment(t *testing.T) {
	t.Parallel()

	l := newTestLoader(t, LoaderConfig{})
	ds, err := l.Load(context.Background(), "catalog_only")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ds) != 0 {
		t.Errorf("dataset = %v, want empty", ds)
	}
}

func TestLoader_Environments(t *testing.T) {
	t.Parallel()

	l := newTestLoader(t, LoaderConfig{})
	envs, err := l.Environments(context.Background())
	if err != nil {
		t.Fatalf("Environments: %v", err)
	}
	want := []Environment{
		{
			Name:       "catalog_only",
			Interfaces: []Interface{{Name: "a"}},
			Tables:     []string{},
		},
		{
			Name:        "widgets",
			Title:       "Widget Factory",
			Description: "Users and the widgets they own.",
			Interfaces:  []Interface{{Name: "x", Label: "Widget operators"}},
			Tables:      []string{"parts", "users", "widgets"},
		},
	}
	if diff := cmp.Diff(want, envs); diff != "" {
		t.Errorf("Environments mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_URLs(t *testing.T) {
	t.Parallel()

	l := NewLoader(LoaderConfig{Root: "mem://localhost/envs/"})
	if got := l.ToolsURL("home", "2"); got != "mem://localhost/envs/home/tools/interface_2" {
		t.Errorf("ToolsURL = %q", got)
	}
}

func TestDataset_CloneAndCounts(t *testing.T) {
	t.Parallel()

	ds := Dataset{"users": map[string]any{"1": map[string]any{"n": "a"}, "2": map[string]any{}}}
	cp := ds.Clone()
	delete(cp.Table("users"), "1")

	if diff := cmp.Diff(map[string]int{"users": 2}, ds.Counts()); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
	if got := cp.Counts()["users"]; got != 1 {
		t.Errorf("clone users = %d, want 1", got)
	}
	if ds.Table("missing") != nil {
		t.Error("missing table should be nil")
	}
	if _, ok := ds.Record("users", "9"); ok {
		t.Error("missing record reported present")
	}
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
