// pkg/vm_io/context.go

package vm_io

import (
	"context"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/telemetry"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RuntimeContext carries the per-invocation state every operation receives:
// a cancellable context, a scoped logger and the root span.
type RuntimeContext struct {
	Ctx        context.Context
	Log        *zap.Logger
	Timestamp  time.Time
	Span       trace.Span
	Command    string
	Component  string
	Attributes map[string]string
}

// NewContext sets up tracing and a scoped logger for cmdName.
func NewContext(parent context.Context, cmdName string) *RuntimeContext {
	if parent == nil {
		parent = context.Background()
	}
	ctx, span := telemetry.Start(parent, cmdName)
	traceID := span.SpanContext().TraceID().String()

	comp, _ := resolveCallContext(2)
	log := zap.L().With(
		zap.String("component", comp),
		zap.String("action", cmdName),
		zap.String("trace_id", traceID),
		zap.String("run_id", telemetry.RunID()),
	).Named(comp)

	return &RuntimeContext{
		Ctx:        ctx,
		Span:       span,
		Log:        log,
		Timestamp:  time.Now(),
		Component:  comp,
		Command:    cmdName,
		Attributes: make(map[string]string),
	}
}

// NewTestContext returns a RuntimeContext with a caller supplied logger and no
// exporter side effects.
func NewTestContext(ctx context.Context, log *zap.Logger) *RuntimeContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, span := telemetry.Start(ctx, "test")
	return &RuntimeContext{
		Ctx:        ctx,
		Span:       span,
		Log:        log,
		Timestamp:  time.Now(),
		Command:    "test",
		Component:  "test",
		Attributes: make(map[string]string),
	}
}

// End logs outcome, emits a telemetry span with key attributes, and flushes.
func (rc *RuntimeContext) End(errPtr *error) {
	defer rc.Span.End()

	var err error
	if errPtr != nil {
		err = *errPtr
	}
	duration := time.Since(rc.Timestamp)

	if err == nil {
		rc.Log.Info("Command completed", zap.Duration("duration", duration))
	} else {
		category, _ := vm_err.CategoryOf(err)
		rc.Log.Error("Command failed",
			zap.Duration("duration", duration),
			zap.String("category", category.String()),
			zap.Error(err))
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", err == nil),
		attribute.Int64("duration_ms", duration.Milliseconds()),
		attribute.String("os", runtime.GOOS),
		attribute.String("args", strings.Join(os.Args[1:], " ")),
		attribute.String("version", shared.Version),
	}
	for k, v := range rc.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	if category, ok := vm_err.CategoryOf(err); ok {
		attrs = append(attrs, attribute.String("error_category", category.String()))
	}
	rc.Span.SetAttributes(attrs...)

	_ = zap.L().Sync()
}

// LogRuntimeExecutionContext records who is running the binary and from where.
func LogRuntimeExecutionContext(rc *RuntimeContext) {
	if u, err := user.Current(); err == nil {
		rc.Log.Debug("User context",
			zap.String("username", u.Username),
			zap.String("uid", u.Uid),
			zap.Int("effective_uid", os.Geteuid()),
			zap.String("home", u.HomeDir),
		)
	}
	if exe, err := os.Executable(); err == nil {
		rc.Log.Debug("Executing binary", zap.String("path", exe))
	}
}

func resolveCallContext(skip int) (component, action string) {
	pc, file, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown", "unknown"
	}
	parts := strings.Split(file, "/")
	if len(parts) >= 2 {
		component = parts[len(parts)-2]
	} else {
		component = strings.TrimSuffix(parts[0], ".go")
	}
	action = "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		fields := strings.Split(fn.Name(), ".")
		action = fields[len(fields)-1]
	}
	return component, action
}
