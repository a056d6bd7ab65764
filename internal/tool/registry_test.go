package tool

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func named(name string) Tool {
	return Adapt(Info{Name: name}, func(_, _ map[string]any) (any, error) { return name, nil })
}

func TestRegistryRegister_EmptyName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(named("")); !errors.Is(err, ErrEmptyToolName) {
		t.Fatalf("expected ErrEmptyToolName, got %v", err)
	}
}

func TestRegistryRegister_WhitespaceName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(named("   ")); !errors.Is(err, ErrEmptyToolName) {
		t.Fatalf("expected ErrEmptyToolName, got %v", err)
	}
}

func TestRegistryRegister_Duplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(named("dup")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(named("dup")); !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.Get("missing"); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
	if r.Has("missing") {
		t.Error("Has(missing) = true")
	}
}

func TestRegistry_Ordering(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(named(name)); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	if diff := cmp.Diff([]string{"alpha", "mid", "zeta"}, r.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	var order []string
	for _, info := range r.Infos() {
		order = append(order, info.Name)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, order); diff != "" {
		t.Errorf("Infos order mismatch (-want +got):\n%s", diff)
	}

	got, err := r.Get("mid")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	out, _ := got.Invoke(nil, nil)
	if out != "mid" {
		t.Errorf("Invoke = %v, want mid", out)
	}
}
