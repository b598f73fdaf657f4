// pkg/provisioner/provisioner.go

package provisioner

import (
	"fmt"
	"path"
	"strings"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/config"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/pipeline"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Options selects what to provision.
type Options struct {
	PackagesURLPath  string
	DependenciesPath string
	PackageType      shared.PackageType
	Arch             shared.Arch
	Component        shared.Component
}

// ComponentInfo is everything needed to install one component.
type ComponentInfo struct {
	Component    shared.Component
	PackageURL   string
	Dependencies []string
}

// Provisioner downloads the certificates tool and installs the component
// packages with their dependencies.
type Provisioner struct {
	Runner execute.Runner

	CertsToolURL    string
	CertsConfigURL  string
	CertsToolPath   string
	CertsConfigPath string
	PackagesDir     string
	PackageType     shared.PackageType
	Components      []ComponentInfo
}

// New resolves every URL and dependency list for opts. Nothing runs on the
// target until all of them are known to be valid.
func New(cfg *config.Config, runner execute.Runner, opts Options) (*Provisioner, error) {
	manifest, err := LoadManifest(opts.PackagesURLPath)
	if err != nil {
		return nil, err
	}
	deps, err := LoadDependencies(opts.DependenciesPath)
	if err != nil {
		return nil, err
	}
	allowed := cfg.Provisioner.AllowedHosts

	for _, u := range []string{manifest.Certs.Tool, manifest.Certs.Config} {
		if err := CheckURL(u, allowed); err != nil {
			return nil, err
		}
	}

	p := &Provisioner{
		Runner:          runner,
		CertsToolURL:    manifest.Certs.Tool,
		CertsConfigURL:  manifest.Certs.Config,
		CertsToolPath:   cfg.Provisioner.CertsToolPath(),
		CertsConfigPath: cfg.Provisioner.CertsConfigPath(),
		PackagesDir:     cfg.Provisioner.PackagesDir(),
		PackageType:     opts.PackageType,
	}
	for _, c := range opts.Component.Expand() {
		u, err := manifest.Packages.URL(c, opts.PackageType, opts.Arch)
		if err != nil {
			return nil, err
		}
		if err := CheckURL(u, allowed); err != nil {
			return nil, err
		}
		d, err := deps.For(c, opts.PackageType)
		if err != nil {
			return nil, err
		}
		p.Components = append(p.Components, ComponentInfo{Component: c, PackageURL: u, Dependencies: d})
	}
	return p, nil
}

// Provision runs the downloads and installs in order.
func (p *Provisioner) Provision(rc *vm_io.RuntimeContext) error {
	steps := []pipeline.Step[struct{}]{
		pipeline.Do[struct{}]("certs-tool", func(rc *vm_io.RuntimeContext) error {
			return p.download(rc, p.CertsToolURL, p.CertsToolPath)
		}),
		pipeline.Do[struct{}]("certs-config", func(rc *vm_io.RuntimeContext) error {
			return p.download(rc, p.CertsConfigURL, p.CertsConfigPath)
		}),
	}
	for _, info := range p.Components {
		steps = append(steps,
			pipeline.Do[struct{}]("dependencies:"+string(info.Component), func(rc *vm_io.RuntimeContext) error {
				return p.installDependencies(rc, info)
			}),
			pipeline.Do[struct{}]("package:"+string(info.Component), func(rc *vm_io.RuntimeContext) error {
				return p.installPackage(rc, info)
			}),
		)
	}
	_, err := pipeline.Run(rc, "provisioner", steps, struct{}{})
	return err
}

// PackagePath is where the package of c is downloaded on the target.
func (p *Provisioner) PackagePath(c shared.Component) string {
	return path.Join(p.PackagesDir, fmt.Sprintf("%s.%s", c, p.PackageType))
}

func (p *Provisioner) download(rc *vm_io.RuntimeContext, u, dest string) error {
	otelzap.Ctx(rc.Ctx).Info("Downloading", zap.String("url", u), zap.String("dest", dest))
	return p.Runner.Run(rc.Ctx,
		"sudo mkdir -p "+execute.Quote(path.Dir(dest)),
		fmt.Sprintf("sudo curl -sSfL -o %s %s", execute.Quote(dest), execute.Quote(u)),
	)
}

func (p *Provisioner) installDependencies(rc *vm_io.RuntimeContext, info ComponentInfo) error {
	log := otelzap.Ctx(rc.Ctx)
	if len(info.Dependencies) == 0 {
		log.Info("No dependencies to install", zap.String("component", string(info.Component)))
		return nil
	}
	log.Info("Installing dependencies",
		zap.String("component", string(info.Component)),
		zap.Strings("dependencies", info.Dependencies))

	install := "sudo dnf install -y "
	if p.PackageType == shared.PackageDEB {
		install = "sudo apt-get install -y "
	}
	for _, dep := range info.Dependencies {
		if err := p.Runner.Run(rc.Ctx, install+execute.Quote(dep)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provisioner) installPackage(rc *vm_io.RuntimeContext, info ComponentInfo) error {
	dest := p.PackagePath(info.Component)
	if err := p.download(rc, info.PackageURL, dest); err != nil {
		return err
	}
	otelzap.Ctx(rc.Ctx).Info("Installing package",
		zap.String("component", strings.ReplaceAll(string(info.Component), "_", " ")),
		zap.String("package", dest))
	if p.PackageType == shared.PackageDEB {
		return p.Runner.Run(rc.Ctx, "sudo dpkg -i "+execute.Quote(dest))
	}
	return p.Runner.Run(rc.Ctx, "sudo dnf install -y "+execute.Quote(dest))
}
