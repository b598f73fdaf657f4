// pkg/orchestrator/dispatcher.go
//
// Mode dispatcher: validates the request for the selected mode, then runs the
// stages the mode maps to in the fixed global order. A failing stage ends the
// run; nothing is rolled back.

package orchestrator

import (
	"fmt"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/pipeline"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// StageFunc runs one stage for a validated request.
type StageFunc func(rc *vm_io.RuntimeContext, req Request) error

// Dispatcher maps stages to their implementations.
type Dispatcher struct {
	Stages map[Stage]StageFunc
}

// Plan returns the steps mode would run, without running them.
func (d *Dispatcher) Plan(mode ExecutionMode) ([]pipeline.Step[Request], error) {
	stages := mode.Stages()
	if stages == nil {
		return nil, vm_err.NewConfigurationError(fmt.Sprintf("invalid --execute value %q", mode), nil)
	}
	steps := make([]pipeline.Step[Request], 0, len(stages))
	for _, stage := range stages {
		fn, ok := d.Stages[stage]
		if !ok || fn == nil {
			return nil, vm_err.NewInternalError(fmt.Sprintf("no implementation registered for stage %q", stage), nil)
		}
		steps = append(steps, pipeline.Step[Request]{
			Name: string(stage),
			Run: func(rc *vm_io.RuntimeContext, req Request) (Request, error) {
				return req, fn(rc, req)
			},
		})
	}
	return steps, nil
}

// Run validates req for mode and executes the mode's stages in order.
// Precondition failures are returned before any stage is invoked.
func (d *Dispatcher) Run(rc *vm_io.RuntimeContext, mode ExecutionMode, req Request) error {
	log := otelzap.Ctx(rc.Ctx)

	if err := req.Validate(mode); err != nil {
		log.Error("Request rejected", zap.String("mode", string(mode)), zap.Error(err))
		return err
	}
	steps, err := d.Plan(mode)
	if err != nil {
		return err
	}

	rc.Attributes["mode"] = string(mode)
	log.Info("Dispatching",
		zap.String("mode", string(mode)),
		zap.Strings("stages", pipeline.Names(steps)),
		zap.String("component", string(req.Component)),
		zap.String("package_type", string(req.PackageType)),
		zap.String("arch", string(req.Arch)))

	if _, err = pipeline.Run(rc, "dispatch", steps, req); err != nil {
		return err
	}
	log.Info(logger.TerminalPrefix+" Provisioning finished",
		zap.String("mode", string(mode)),
		zap.Strings("stages", pipeline.Names(steps)))
	return nil
}
