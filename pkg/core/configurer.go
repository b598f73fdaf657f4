// pkg/core/configurer.go

package core

import (
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/config"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/pipeline"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const securityInit = "sudo /usr/share/wazuh-indexer/bin/indexer-security-init.sh"

// Configurer applies the configuration mappings, creates the certificates
// and starts the services of the installed components.
type Configurer struct {
	Runner       execute.Runner
	MappingsPath string
	Certs        *CertsManager
}

// NewConfigurer wires the configurer from cfg.
func NewConfigurer(cfg *config.Config, runner execute.Runner) *Configurer {
	return &Configurer{
		Runner:       runner,
		MappingsPath: cfg.Resolve(cfg.Core.ConfigMappings),
		Certs: &CertsManager{
			Runner:     runner,
			CertsDir:   cfg.Provisioner.CertsDir(),
			ToolPath:   cfg.Provisioner.CertsToolPath(),
			ConfigPath: cfg.Provisioner.CertsConfigPath(),
			Layouts:    Layouts,
		},
	}
}

// Configure runs mappings, certificates and services in that order.
func (c *Configurer) Configure(rc *vm_io.RuntimeContext) error {
	mappings, err := LoadMappings(c.MappingsPath)
	if err != nil {
		return err
	}
	steps := []pipeline.Step[struct{}]{
		pipeline.Do[struct{}]("config-mappings", func(rc *vm_io.RuntimeContext) error {
			return c.applyMappings(rc, mappings)
		}),
		pipeline.Do[struct{}]("certificates", c.Certs.Generate),
		pipeline.Do[struct{}]("services", c.StartServices),
	}
	_, err = pipeline.Run(rc, "core-configurer", steps, struct{}{})
	return err
}

func (c *Configurer) applyMappings(rc *vm_io.RuntimeContext, m Mappings) error {
	log := otelzap.Ctx(rc.Ctx)
	for _, comp := range shared.Components {
		cmds := m.Commands(comp)
		if len(cmds) == 0 {
			log.Debug("No entries to replace", zap.String("component", string(comp)))
			continue
		}
		log.Info("Replacing configuration entries", zap.String("component", string(comp)), zap.Int("entries", len(cmds)))
		if err := c.Runner.Run(rc.Ctx, cmds...); err != nil {
			return err
		}
	}
	return nil
}

// StartServices enables and starts every component, then initializes the
// indexer security plugin.
func (c *Configurer) StartServices(rc *vm_io.RuntimeContext) error {
	if err := c.Runner.Run(rc.Ctx, "sudo systemctl daemon-reload"); err != nil {
		return err
	}
	for _, comp := range shared.Components {
		svc := comp.ServiceName()
		cmds := []string{
			"sudo systemctl --quiet enable " + svc,
			"sudo systemctl start " + svc,
		}
		if comp == shared.ComponentIndexer {
			cmds = append(cmds, securityInit)
		}
		if err := c.Runner.Run(rc.Ctx, cmds...); err != nil {
			return err
		}
		otelzap.Ctx(rc.Ctx).Info("Service started", zap.String("service", svc))
	}
	return nil
}
