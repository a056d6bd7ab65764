package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolbench/internal/core"
	"github.com/flemzord/toolbench/internal/security"
)

func init() {
	core.RegisterModule(&OTLP{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*OTLP)(nil)
	_ core.Provisioner  = (*OTLP)(nil)
	_ core.Validator    = (*OTLP)(nil)
	_ core.Stopper      = (*OTLP)(nil)
)

const (
	defaultServiceName   = "toolbench"
	defaultExportTimeout = 10 * time.Second
)

// OTLPConfig configures trace export.
type OTLPConfig struct {
	// Endpoint is the collector host:port. Defaults to the exporter's
	// own default (localhost:4318, or OTEL_EXPORTER_OTLP_ENDPOINT).
	Endpoint string `yaml:"endpoint"`

	// URLPath overrides the traces path (default /v1/traces).
	URLPath string `yaml:"url_path"`

	Insecure bool              `yaml:"insecure"`
	Headers  map[string]string `yaml:"headers"`

	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of root traces sampled. Defaults to 1.
	SampleRatio *float64 `yaml:"sample_ratio"`

	Timeout time.Duration `yaml:"timeout"`
}

func (c *OTLPConfig) defaults() {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.SampleRatio == nil {
		r := 1.0
		c.SampleRatio = &r
	}
	if c.Timeout == 0 {
		c.Timeout = defaultExportTimeout
	}
}

func (c *OTLPConfig) validate() error {
	var errs []error
	if r := *c.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry: sample_ratio must be within [0, 1], got %g", r))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("telemetry: timeout must be positive, got %s", c.Timeout))
	}
	return errors.Join(errs...)
}

func (c *OTLPConfig) options() []otlptracehttp.Option {
	opts := []otlptracehttp.Option{otlptracehttp.WithTimeout(c.Timeout)}
	if c.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(c.Endpoint))
	}
	if c.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(c.URLPath))
	}
	if c.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(c.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(c.Headers))
	}
	return opts
}

// OTLP installs a global tracer provider exporting spans over OTLP/HTTP.
type OTLP struct {
	config   OTLPConfig
	logger   *slog.Logger
	provider *sdktrace.TracerProvider
}

// ModuleInfo implements core.Module.
func (m *OTLP) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "telemetry.otlp",
		New: func() core.Module { return &OTLP{} },
	}
}

// Configure implements core.Configurable.
func (m *OTLP) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("telemetry: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. The exporter connects lazily, so
// an unreachable collector does not block startup.
func (m *OTLP) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	exp, err := otlptracehttp.New(context.Background(), m.config.options()...)
	if err != nil {
		return fmt.Errorf("telemetry: create exporter: %w", err)
	}
	m.provider = NewTracerProvider(sdktrace.NewBatchSpanProcessor(exp), m.config.ServiceName, *m.config.SampleRatio)
	otel.SetTracerProvider(m.provider)
	ctx.RegisterService("telemetry.tracer_provider", m.provider)

	// Header values usually carry collector credentials.
	if r, ok := core.ServiceAs[*security.Redactor](ctx, security.RedactorService); ok {
		r.SetSecrets("telemetry.otlp", slices.Collect(maps.Values(m.config.Headers))...)
	}

	m.logger.Info("otlp tracing enabled",
		"endpoint", m.config.Endpoint,
		"service", m.config.ServiceName,
		"sample_ratio", *m.config.SampleRatio,
	)
	return nil
}

// Validate implements core.Validator.
func (m *OTLP) Validate() error {
	return m.config.validate()
}

// Stop implements core.Stopper. Pending spans are flushed.
func (m *OTLP) Stop(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	if err := m.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	return nil
}

// NewTracerProvider builds a tracer provider around processor, tagging
// spans with the service name and sampling ratio of root spans.
func NewTracerProvider(processor sdktrace.SpanProcessor, serviceName string, ratio float64) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
}
