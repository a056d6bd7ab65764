package engine

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flemzord/toolbench/internal/dataset"
	"github.com/flemzord/toolbench/internal/session"
	"github.com/flemzord/toolbench/internal/tool"
	"github.com/flemzord/toolbench/internal/tool/tooltest"
)

func counterRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	add := tool.Adapt(tool.Info{Name: "add"}, func(data, args map[string]any) (any, error) {
		n, _ := data["total"].(int64)
		by, ok := args["by"].(int64)
		if !ok {
			return nil, errors.New("by must be an integer")
		}
		data["total"] = n + by
		args["by"] = int64(0)
		return n + by, nil
	})
	stamp := tool.Adapt(tool.Info{Name: "stamp"}, func(data, args map[string]any) (any, error) {
		log, _ := data["log"].([]any)
		data["log"] = append(log, args["label"])
		return nil, nil
	})
	for _, tl := range []tool.Tool{add, stamp} {
		if err := reg.Register(tl); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return reg
}

func TestReplay(t *testing.T) {
	t.Parallel()

	reg := counterRegistry(t)
	baseline := dataset.Dataset{"total": int64(10), "log": []any{"start"}}
	history := []session.Action{
		{Tool: "add", Arguments: map[string]any{"by": int64(2)}},
		{Tool: "stamp", Arguments: map[string]any{"label": "a"}},
		{Tool: "add", Arguments: map[string]any{"by": int64(3)}},
	}

	first, err := Replay(baseline, history, reg)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	second, err := Replay(baseline, history, reg)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	want := dataset.Dataset{"total": int64(15), "log": []any{"start", "a"}}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("replay is not deterministic (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(dataset.Dataset{"total": int64(10), "log": []any{"start"}}, baseline); diff != "" {
		t.Errorf("baseline modified (-want +got):\n%s", diff)
	}
	if history[0].Arguments["by"] != int64(2) {
		t.Error("replay leaked argument mutation into the stored history")
	}
}

func TestReplay_EmptyHistory(t *testing.T) {
	t.Parallel()

	baseline := dataset.Dataset{"total": int64(1)}
	got, err := Replay(baseline, nil, counterRegistry(t))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if diff := cmp.Diff(baseline, got); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestReplay_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		history  []session.Action
		seq      int
		tool     string
		notFound bool
	}{
		{
			name: "unknown tool",
			history: []session.Action{
				{Tool: "add", Arguments: map[string]any{"by": int64(1)}},
				{Tool: "remove", Arguments: map[string]any{}},
			},
			seq:      1,
			tool:     "remove",
			notFound: true,
		},
		{
			name: "tool error",
			history: []session.Action{
				{Tool: "add", Arguments: map[string]any{"by": "one"}},
			},
			seq:  0,
			tool: "add",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Replay(dataset.Dataset{}, tt.history, counterRegistry(t))
			var rerr *ReplayError
			if !errors.As(err, &rerr) {
				t.Fatalf("err = %v, want ReplayError", err)
			}
			if rerr.Seq != tt.seq || rerr.Tool != tt.tool {
				t.Errorf("replay error = %+v", rerr)
			}
			if got := errors.Is(err, tool.ErrToolNotFound); got != tt.notFound {
				t.Errorf("errors.Is(ErrToolNotFound) = %v, want %v", got, tt.notFound)
			}
		})
	}
}

func TestApply_CallsInCommitOrder(t *testing.T) {
	t.Parallel()

	create := &tooltest.MockTool{ToolName: "create_widget"}
	rename := &tooltest.MockTool{
		ToolName: "rename_widget",
		InvokeFunc: func(data, args map[string]any) (any, error) {
			data["name"] = args["name"]
			return nil, nil
		},
	}
	reg := tooltest.Registry(create, rename)

	history := []session.Action{
		{Tool: "create_widget", Arguments: map[string]any{"owner": "1"}},
		{Tool: "rename_widget", Arguments: map[string]any{"name": "w"}},
		{Tool: "create_widget"},
	}
	data := dataset.Dataset{}
	if err := Apply(data, history, reg); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	wantCreate := []map[string]any{{"owner": "1"}, {}}
	if diff := cmp.Diff(wantCreate, create.Calls()); diff != "" {
		t.Errorf("create_widget calls (-want +got):\n%s", diff)
	}
	if len(rename.Calls()) != 1 || data["name"] != "w" {
		t.Errorf("rename_widget calls = %v, data = %v", rename.Calls(), data)
	}
}

func TestCall_RecoversPanic(t *testing.T) {
	t.Parallel()

	bad := tool.Adapt(tool.Info{Name: "bad"}, func(_, _ map[string]any) (any, error) {
		var m map[string]any
		m["x"] = 1
		return nil, nil
	})
	out, err := call(bad, dataset.Dataset{}, nil)
	var perr *panicError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want panicError", err)
	}
	if out != nil {
		t.Errorf("out = %v, want nil", out)
	}
}
