// pkg/pipeline/pipeline.go
//
// Ordered step runner. A pipeline is a fixed list of named steps; each step
// receives the state produced by the previous one and the runner stops at the
// first failure. Side effects of completed steps are never rolled back.

package pipeline

import (
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/telemetry"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Step is one named unit of a pipeline.
type Step[S any] struct {
	Name string
	Run  func(rc *vm_io.RuntimeContext, state S) (S, error)
}

// Do adapts a step that only has side effects.
func Do[S any](name string, fn func(rc *vm_io.RuntimeContext) error) Step[S] {
	return Step[S]{
		Name: name,
		Run: func(rc *vm_io.RuntimeContext, state S) (S, error) {
			return state, fn(rc)
		},
	}
}

// StepError reports which step of which pipeline failed.
type StepError struct {
	Pipeline string
	Step     string
	Index    int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %d %q failed: %v", e.Pipeline, e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Run executes steps in order starting from initial. Execution stops at the
// first failing step or when rc.Ctx is done.
func Run[S any](rc *vm_io.RuntimeContext, name string, steps []Step[S], initial S) (S, error) {
	log := otelzap.Ctx(rc.Ctx)
	state := initial

	log.Info("Starting pipeline", zap.String("pipeline", name), zap.Int("steps", len(steps)))
	for i, step := range steps {
		if err := rc.Ctx.Err(); err != nil {
			return state, &StepError{Pipeline: name, Step: step.Name, Index: i, Err: err}
		}

		next, err := runStep(rc, name, i, len(steps), step, state)
		if err != nil {
			return state, &StepError{
				Pipeline: name,
				Step:     step.Name,
				Index:    i,
				Err:      vm_err.WrapStep(err, name, step.Name),
			}
		}
		state = next
	}
	log.Info("Pipeline completed", zap.String("pipeline", name))
	return state, nil
}

func runStep[S any](rc *vm_io.RuntimeContext, pipeline string, i, total int, step Step[S], state S) (S, error) {
	ctx, span := telemetry.Start(rc.Ctx, pipeline+"."+step.Name,
		attribute.String("pipeline", pipeline),
		attribute.String("step", step.Name),
		attribute.Int("index", i))
	defer span.End()

	log := otelzap.Ctx(ctx)
	log.Info("Running step",
		zap.String("pipeline", pipeline),
		zap.String("step", step.Name),
		zap.Int("position", i+1),
		zap.Int("of", total))

	stepRC := *rc
	stepRC.Ctx = ctx

	start := time.Now()
	next, err := step.Run(&stepRC, state)
	elapsed := time.Since(start)
	telemetry.RecordStep(ctx, pipeline, step.Name, elapsed, err)

	if err != nil {
		span.RecordError(err)
		log.Error("Step failed",
			zap.String("pipeline", pipeline),
			zap.String("step", step.Name),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return state, err
	}
	log.Info("Step completed",
		zap.String("pipeline", pipeline),
		zap.String("step", step.Name),
		zap.Duration("duration", elapsed))
	return next, nil
}

// Names lists the step names in order.
func Names[S any](steps []Step[S]) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Name
	}
	return out
}
