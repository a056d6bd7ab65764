package telemetry

import (
	"context"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolbench/internal/core"
	"github.com/flemzord/toolbench/internal/security"
)

func TestRegistry_SharedThroughContext(t *testing.T) {
	t.Parallel()

	ctx := core.NewAppContext(slog.Default(), t.TempDir(), t.TempDir())
	a := Registry(ctx.ForModule("engine.replay"))
	b := Registry(ctx.ForModule("gateway.http"))
	if a != b {
		t.Error("modules received different registries")
	}

	families, err := a.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("runtime collectors not registered")
	}
}

func TestNewTracerProvider_RecordsSpans(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := NewTracerProvider(sr, "toolbench-test", 1)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 || ended[0].Name() != "op" {
		t.Fatalf("ended spans = %v", ended)
	}
	found := false
	for _, kv := range ended[0].Resource().Attributes() {
		if string(kv.Key) == "service.name" && kv.Value.AsString() == "toolbench-test" {
			found = true
		}
	}
	if !found {
		t.Error("service.name resource attribute missing")
	}
}

func TestNewTracerProvider_ZeroRatioDropsRootSpans(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := NewTracerProvider(sr, "toolbench-test", 0)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()

	if n := len(sr.Ended()); n != 0 {
		t.Errorf("recorded %d spans, want 0", n)
	}
}

func TestOTLPConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{name: "defaults", yaml: "{}"},
		{name: "full", yaml: "endpoint: collector:4318\ninsecure: true\nsample_ratio: 0.25\ntimeout: 3s\n"},
		{name: "ratio too high", yaml: "sample_ratio: 1.5\n", wantErr: true},
		{name: "negative timeout", yaml: "timeout: -1s\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var node yaml.Node
			if err := yaml.Unmarshal([]byte(tt.yaml), &node); err != nil {
				t.Fatal(err)
			}
			m := &OTLP{}
			if err := m.Configure(node.Content[0]); err != nil {
				t.Fatalf("Configure: %v", err)
			}
			m.config.defaults()
			err := m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if m.config.ServiceName != defaultServiceName {
				t.Errorf("service name = %q", m.config.ServiceName)
			}
			if len(m.config.options()) == 0 {
				t.Error("no exporter options")
			}
		})
	}
}

func TestOTLP_ProvisionAndStop(t *testing.T) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("endpoint: 127.0.0.1:1\ninsecure: true\nheaders:\n  x-api-key: collector-key\n"), &node); err != nil {
		t.Fatal(err)
	}
	m := &OTLP{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	ctx := core.NewAppContext(slog.Default(), t.TempDir(), t.TempDir())
	redactor := security.NewRedactor()
	ctx.RegisterService(security.RedactorService, redactor)
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if _, ok := ctx.Service("telemetry.tracer_provider"); !ok {
		t.Error("tracer provider service not registered")
	}
	if got := redactor.Redact("key collector-key"); got != "key "+security.RedactPlaceholder {
		t.Errorf("header value not registered as a secret: %q", got)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
