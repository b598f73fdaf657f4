/* cmd/stages.go */

package cmd

import (
	"net/http"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/ami"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/config"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/core"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/orchestrator"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/ova"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/provisioner"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Environment is what the stages run against.
type Environment struct {
	Config *config.Config
	Client *http.Client
	// Dial opens the target of the provisioner and core configurer: the
	// inventory host when one is given, the local machine otherwise.
	Dial execute.Dialer
	// Local runs the OVA build on this machine.
	Local execute.Runner
}

// Dispatcher binds every stage to its implementation.
func (e *Environment) Dispatcher() *orchestrator.Dispatcher {
	return &orchestrator.Dispatcher{Stages: map[orchestrator.Stage]orchestrator.StageFunc{
		orchestrator.StageAMIConfigurer: func(rc *vm_io.RuntimeContext, req orchestrator.Request) error {
			return ami.NewConfigurer(e.Config, e.Dial).Configure(rc, req.Inventory)
		},
		orchestrator.StageInventoryUser: func(rc *vm_io.RuntimeContext, req orchestrator.Request) error {
			otelzap.Ctx(rc.Ctx).Info("Switching inventory user",
				zap.String("inventory", req.Inventory), zap.String("user", shared.ServiceUser))
			return inventory.ChangeUser(req.Inventory, shared.ServiceUser)
		},
		orchestrator.StageOVAPreConfigurer: func(rc *vm_io.RuntimeContext, req orchestrator.Request) error {
			return ova.NewPreConfigurer(e.Config, e.Local, e.Client).Run(rc)
		},
		orchestrator.StageProvisioner: func(rc *vm_io.RuntimeContext, req orchestrator.Request) error {
			return e.onTarget(rc, req, func(r execute.Runner) error {
				p, err := provisioner.New(e.Config, r, provisioner.Options{
					PackagesURLPath:  req.PackagesURLPath,
					DependenciesPath: req.Dependencies,
					PackageType:      req.PackageType,
					Arch:             req.Arch,
					Component:        req.Component,
				})
				if err != nil {
					return err
				}
				return p.Provision(rc)
			})
		},
		orchestrator.StageCoreConfigurer: func(rc *vm_io.RuntimeContext, req orchestrator.Request) error {
			return e.onTarget(rc, req, func(r execute.Runner) error {
				return core.NewConfigurer(e.Config, r).Configure(rc)
			})
		},
		orchestrator.StageOVAPostConfigurer: func(rc *vm_io.RuntimeContext, req orchestrator.Request) error {
			return ova.NewPostConfigurer(e.Config, e.Local).Run(rc)
		},
	}}
}

// onTarget runs fn on the inventory host of req, or locally without one. The
// inventory is read on every call since an earlier stage may have changed
// its user.
func (e *Environment) onTarget(rc *vm_io.RuntimeContext, req orchestrator.Request, fn func(execute.Runner) error) (err error) {
	var host *inventory.Host
	if req.Inventory != "" {
		if host, err = inventory.Load(req.Inventory); err != nil {
			return err
		}
	}
	session, err := e.Dial(rc.Ctx, host)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(session)
}
