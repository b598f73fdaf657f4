// pkg/ova/preconfigure.go

package ova

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/config"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/pipeline"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Installer installs the build host dependencies.
type Installer interface {
	Install(rc *vm_io.RuntimeContext) error
}

// Builder produces the Vagrant base box.
type Builder interface {
	Build(rc *vm_io.RuntimeContext) error
}

// PreConfigurer prepares the build host and boots the base VM the rest of
// the OVA build provisions.
type PreConfigurer struct {
	Runner       execute.Runner
	Dependencies Installer
	BaseBox      Builder

	Vagrantfile string
	BoxName     string
	BoxFile     string
	MaxUpTries  int
}

// NewPreConfigurer wires the pre-configurer from cfg. runner must execute
// in cfg.BaseDir.
func NewPreConfigurer(cfg *config.Config, runner execute.Runner, client *http.Client) *PreConfigurer {
	return &PreConfigurer{
		Runner:       runner,
		Dependencies: NewDependencyInstaller(cfg, runner, client),
		BaseBox:      NewBaseBoxBuilder(cfg, runner, client),
		Vagrantfile:  cfg.Resolve(cfg.Vagrant.Vagrantfile),
		BoxName:      cfg.Vagrant.BoxName,
		BoxFile:      cfg.Vagrant.BoxFile,
		MaxUpTries:   cfg.Vagrant.MaxUpTries,
	}
}

// Run installs dependencies, builds the base box and deploys the VM.
func (p *PreConfigurer) Run(rc *vm_io.RuntimeContext) error {
	steps := []pipeline.Step[struct{}]{
		pipeline.Do[struct{}]("install-dependencies", p.Dependencies.Install),
		pipeline.Do[struct{}]("generate-base-box", p.BaseBox.Build),
		pipeline.Do[struct{}]("deploy-vm", p.deploy),
	}
	_, err := pipeline.Run(rc, "ova-pre-configurer", steps, struct{}{})
	return err
}

func (p *PreConfigurer) deploy(rc *vm_io.RuntimeContext) error {
	if err := p.Runner.Run(rc.Ctx,
		"cp "+execute.Quote(p.Vagrantfile)+" ./"+filepath.Base(p.Vagrantfile),
		"vagrant box add --name "+p.BoxName+" "+p.BoxFile,
	); err != nil {
		return err
	}
	return p.vagrantUp(rc)
}

// vagrantUp retries `vagrant up`, destroying the half-created machine between
// attempts.
func (p *PreConfigurer) vagrantUp(rc *vm_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)
	tries := p.MaxUpTries
	if tries < 1 {
		tries = 1
	}

	var last execute.Result
	for attempt := 1; attempt <= tries; attempt++ {
		res, err := p.Runner.Output(rc.Ctx, "vagrant up")
		if err != nil {
			return err
		}
		if res.ExitCode == 0 {
			log.Info("Vagrant VM started", zap.Int("attempt", attempt))
			return nil
		}
		last = res
		log.Warn("Vagrant VM failed to start",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", tries),
			zap.String("summary", execute.ExtractSummary(res.Stderr, 2)))
		if attempt == tries {
			break
		}
		if err := p.Runner.Run(rc.Ctx, "vagrant destroy -f"); err != nil {
			return err
		}
	}
	return vm_err.NewCommandExecutionError("vagrant up", last.ExitCode,
		"VM failed to start after "+strconv.Itoa(tries)+" attempts: "+execute.ExtractSummary(last.Stderr, 2))
}
