// Package sessiontest provides a conformance suite for session.Store
// implementations.
package sessiontest

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/flemzord/toolbench/internal/catalog"
	"github.com/flemzord/toolbench/internal/session"
	"github.com/flemzord/toolbench/internal/tool"
)

// NewSession returns a populated session for store tests.
func NewSession(id string) *session.Session {
	return &session.Session{
		ID:          id,
		Environment: "widgets",
		Interface:   "x",
		Tools: []catalog.Descriptor{{
			Name:     "create_widget",
			TypeName: "CreateWidget",
			File:     "create_widget.go",
			Line:     12,
			Info:     tool.Info{Name: "create_widget", Params: []tool.Param{{Name: "owner", Type: "string", Required: true}}},
			Imports:  []catalog.Import{{Path: "fmt"}},
			Params:   "data map[string]any, args map[string]any",
			Results:  "(any, error)",
			Body:     "{ return nil, nil }",
		}},
		Diagnostics: []catalog.Diagnostic{{File: "bad.go", Kind: catalog.KindParse, Message: "boom", Skipped: true}},
		History:     []session.Action{},
	}
}

// Run exercises a Store implementation. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) session.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		st := newStore(t)
		if _, err := st.Get(context.Background(), "nope"); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		in := NewSession("s1")
		if err := st.Put(ctx, in); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := st.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Error("timestamps not set")
		}
		if diff := cmp.Diff(in.Tools[0].Info.Params, got.Tools[0].Info.Params); diff != "" {
			t.Errorf("params mismatch (-want +got):\n%s", diff)
		}
		if got.Tools[0].Body != in.Tools[0].Body || got.Tools[0].Imports[0].Path != "fmt" {
			t.Errorf("descriptor not preserved: %+v", got.Tools[0])
		}
		if diff := cmp.Diff(in.Diagnostics, got.Diagnostics); diff != "" {
			t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
		}
		if got.Environment != "widgets" || got.Interface != "x" || len(got.History) != 0 {
			t.Errorf("session = %+v", got)
		}
	})

	t.Run("AppendPreservesOrderAndTypes", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		if err := st.Put(ctx, NewSession("s1")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		actions := []session.Action{
			{Tool: "create_widget", Arguments: map[string]any{"owner": "1", "qty": int64(2)}},
			{Tool: "set_price", Arguments: map[string]any{"price": 3.0, "tags": []any{"a"}}},
		}
		for i, a := range actions {
			a.At = time.Now().UTC()
			if err := st.Append(ctx, "s1", i, a); err != nil {
				t.Fatalf("Append %d: %v", i, err)
			}
		}
		got, err := st.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(got.History) != 2 {
			t.Fatalf("history len = %d, want 2", len(got.History))
		}
		for i, a := range actions {
			if got.History[i].Tool != a.Tool {
				t.Errorf("history[%d].Tool = %q, want %q", i, got.History[i].Tool, a.Tool)
			}
			if diff := cmp.Diff(a.Arguments, got.History[i].Arguments); diff != "" {
				t.Errorf("history[%d] args mismatch (-want +got):\n%s", i, diff)
			}
		}
	})

	t.Run("AppendConflict", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		if err := st.Put(ctx, NewSession("s1")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		a := session.Action{Tool: "t", Arguments: map[string]any{}}
		if err := st.Append(ctx, "s1", 1, a); !errors.Is(err, session.ErrConflict) {
			t.Errorf("err = %v, want ErrConflict", err)
		}
		if err := st.Append(ctx, "s1", 0, a); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := st.Append(ctx, "s1", 0, a); !errors.Is(err, session.ErrConflict) {
			t.Errorf("stale seq err = %v, want ErrConflict", err)
		}
		if err := st.Append(ctx, "missing", 0, a); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("missing err = %v, want ErrNotFound", err)
		}
		got, _ := st.Get(ctx, "s1")
		if len(got.History) != 1 {
			t.Errorf("history len = %d, want 1", len(got.History))
		}
	})

	t.Run("PutReplacesHistory", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		if err := st.Put(ctx, NewSession("s1")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := st.Append(ctx, "s1", 0, session.Action{Tool: "t", Arguments: map[string]any{}}); err != nil {
			t.Fatalf("Append: %v", err)
		}
		fresh := NewSession("s1")
		fresh.Interface = "y"
		if err := st.Put(ctx, fresh); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, _ := st.Get(ctx, "s1")
		if len(got.History) != 0 || got.Interface != "y" {
			t.Errorf("session after replace = %+v", got)
		}
	})

	t.Run("ReturnedSessionIsACopy", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		if err := st.Put(ctx, NewSession("s1")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := st.Append(ctx, "s1", 0, session.Action{Tool: "t", Arguments: map[string]any{"k": "v"}}); err != nil {
			t.Fatalf("Append: %v", err)
		}
		got, _ := st.Get(ctx, "s1")
		got.History[0].Arguments["k"] = "changed"
		got.History = append(got.History, session.Action{Tool: "x"})

		again, _ := st.Get(ctx, "s1")
		if len(again.History) != 1 || again.History[0].Arguments["k"] != "v" {
			t.Errorf("stored session mutated through a returned copy: %+v", again.History)
		}
	})

	t.Run("DeleteListPrune", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		for _, id := range []string{"a", "b", "c"} {
			if err := st.Put(ctx, NewSession(id)); err != nil {
				t.Fatalf("Put: %v", err)
			}
		}
		if err := st.Delete(ctx, "b"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := st.Delete(ctx, "b"); err != nil {
			t.Fatalf("second Delete: %v", err)
		}

		list, err := st.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		var ids []string
		for _, s := range list {
			ids = append(ids, s.ID)
		}
		sort.Strings(ids)
		if diff := cmp.Diff([]string{"a", "c"}, ids); diff != "" {
			t.Errorf("List ids mismatch (-want +got):\n%s", diff)
		}

		n, err := st.Prune(ctx, time.Now().Add(-time.Hour))
		if err != nil || n != 0 {
			t.Errorf("Prune(past) = %d, %v", n, err)
		}
		n, err = st.Prune(ctx, time.Now().Add(time.Hour))
		if err != nil || n != 2 {
			t.Errorf("Prune(future) = %d, %v", n, err)
		}
		list, _ = st.List(ctx)
		if len(list) != 0 {
			t.Errorf("List after prune = %v", list)
		}
	})
}
