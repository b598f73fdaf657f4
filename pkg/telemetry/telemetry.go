// pkg/telemetry/telemetry.go
package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	cerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/CodeMonkeyCybersecurity/wazuh-vms"

var (
	mu       sync.Mutex
	shutdown = func(context.Context) error { return nil }
	runID    = uuid.New().String()
)

// Init configures OpenTelemetry; call this early in main(). Spans are only
// exported when the marker file ~/.wazuh-vms/telemetry_on exists; otherwise
// the global no-op provider stays in place.
func Init(service string) error {
	if !IsEnabled() {
		return nil
	}

	dir := filepath.Join("/var/log", shared.AppID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		dir = filepath.Join(os.Getenv("HOME"), "."+shared.AppID, "telemetry")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return cerr.Wrap(err, "failed to create telemetry directory")
		}
	}

	file, err := os.OpenFile(filepath.Join(dir, "telemetry.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return cerr.Wrap(err, "failed to open telemetry file")
	}

	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(file),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		_ = file.Close()
		return cerr.Wrap(err, "failed to create file exporter")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(
			sdkresource.NewWithAttributes(
				semconv.SchemaURL,
				attribute.String("service.name", service),
				attribute.String("service.version", shared.Version),
				attribute.String("host.name", hostname()),
				attribute.String("run.id", runID),
			),
		),
	)
	otel.SetTracerProvider(tp)

	mu.Lock()
	shutdown = func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		_ = file.Close()
		return err
	}
	mu.Unlock()
	return nil
}

// Shutdown flushes pending spans. Safe to call when Init was a no-op.
func Shutdown() error {
	mu.Lock()
	fn := shutdown
	mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return fn(ctx)
}

// Start a telemetry span with optional attributes.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return otel.Tracer(instrumentation).Start(ctx, name, trace.WithAttributes(attrs...))
}

// RunID identifies this process invocation in logs and spans.
func RunID() string {
	return runID
}

// RecordStep records the duration and outcome of one pipeline step.
func RecordStep(ctx context.Context, pipeline, step string, d time.Duration, err error) {
	hist, herr := otel.Meter(instrumentation).Float64Histogram(
		"wazuh_vms.step.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of provisioning pipeline steps"),
	)
	if herr != nil {
		return
	}
	hist.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("step", step),
		attribute.Bool("success", err == nil),
	))
}

// IsEnabled reports whether span export was opted into.
func IsEnabled() bool {
	_, err := os.Stat(filepath.Join(os.Getenv("HOME"), "."+shared.AppID, "telemetry_on"))
	return err == nil
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
