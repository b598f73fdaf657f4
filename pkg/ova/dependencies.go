// pkg/ova/dependencies.go
//
// Host dependencies of the OVA build: VirtualBox (latest stable, resolved
// from the mirror on every run) and Vagrant from the HashiCorp repository.

package ova

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/artifact"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/config"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/pipeline"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Step names of the dependency pipeline.
const (
	StepSystemUpdate        = "system-update"
	StepPackageInstall      = "package-install"
	StepVersionResolve      = "version-resolve"
	StepArtifactLocate      = "artifact-locate"
	StepArtifactDownload    = "artifact-download"
	StepInstallerRun        = "installer-run"
	StepKernelModuleRebuild = "kernel-module-rebuild"
	StepVagrantInstall      = "vagrant-install"
)

// VersionResolver discovers the latest installer version.
type VersionResolver interface {
	Resolve(rc *vm_io.RuntimeContext) (string, error)
}

// ArtifactLocator maps a version to a download reference.
type ArtifactLocator interface {
	Locate(rc *vm_io.RuntimeContext, version string) (artifact.Reference, error)
}

// ArtifactDownloader fetches a reference to local disk.
type ArtifactDownloader interface {
	Download(rc *vm_io.RuntimeContext, ref artifact.Reference) error
}

// DependencyInstaller installs VirtualBox and Vagrant on the build host.
type DependencyInstaller struct {
	Runner     execute.Runner
	Resolver   VersionResolver
	Locator    ArtifactLocator
	Downloader ArtifactDownloader

	Packages        []string
	DevToolsGroup   string
	KernelConfigCmd string
	VagrantRepoURL  string
}

// NewDependencyInstaller wires the installer from cfg.
func NewDependencyInstaller(cfg *config.Config, runner execute.Runner, client *http.Client) *DependencyInstaller {
	vb := cfg.VirtualBox
	return &DependencyInstaller{
		Runner:     runner,
		Resolver:   &artifact.Resolver{Client: client, BaseURL: vb.BaseURL, LatestFile: vb.LatestFile},
		Locator:    &artifact.Locator{Client: client, BaseURL: vb.BaseURL, Product: vb.Product, Platform: vb.Platform, DownloadDir: vb.DownloadDir},
		Downloader: &artifact.Downloader{Client: client},

		Packages:        vb.RequiredPackages,
		DevToolsGroup:   vb.DevToolsGroup,
		KernelConfigCmd: vb.KernelConfigCmd,
		VagrantRepoURL:  cfg.Vagrant.RepoURL,
	}
}

// installState carries discovery results between steps.
type installState struct {
	Version string
	Ref     artifact.Reference
}

func (d *DependencyInstaller) steps() []pipeline.Step[installState] {
	return []pipeline.Step[installState]{
		pipeline.Do[installState](StepSystemUpdate, d.updatePackages),
		pipeline.Do[installState](StepPackageInstall, d.installRequiredPackages),
		{Name: StepVersionResolve, Run: func(rc *vm_io.RuntimeContext, s installState) (installState, error) {
			v, err := d.Resolver.Resolve(rc)
			s.Version = v
			return s, err
		}},
		{Name: StepArtifactLocate, Run: func(rc *vm_io.RuntimeContext, s installState) (installState, error) {
			ref, err := d.Locator.Locate(rc, s.Version)
			s.Ref = ref
			return s, err
		}},
		{Name: StepArtifactDownload, Run: func(rc *vm_io.RuntimeContext, s installState) (installState, error) {
			return s, d.Downloader.Download(rc, s.Ref)
		}},
		{Name: StepInstallerRun, Run: func(rc *vm_io.RuntimeContext, s installState) (installState, error) {
			return s, d.Runner.Run(rc.Ctx, "sudo bash "+execute.Quote(s.Ref.Dest))
		}},
		pipeline.Do[installState](StepSystemUpdate, d.updatePackages),
		pipeline.Do[installState](StepKernelModuleRebuild, func(rc *vm_io.RuntimeContext) error {
			return d.Runner.Run(rc.Ctx, "sudo "+d.KernelConfigCmd)
		}),
		pipeline.Do[installState](StepVagrantInstall, d.installVagrant),
	}
}

// StepNames lists the pipeline in execution order.
func (d *DependencyInstaller) StepNames() []string {
	return pipeline.Names(d.steps())
}

// Install runs the pipeline. A failing step ends it; earlier steps stay applied.
func (d *DependencyInstaller) Install(rc *vm_io.RuntimeContext) error {
	state, err := pipeline.Run(rc, "ova-dependencies", d.steps(), installState{})
	if err != nil {
		return err
	}
	otelzap.Ctx(rc.Ctx).Info("OVA build dependencies installed",
		zap.String("virtualbox_version", state.Version),
		zap.String("installer", state.Ref.Dest))
	return nil
}

func (d *DependencyInstaller) updatePackages(rc *vm_io.RuntimeContext) error {
	return d.Runner.Run(rc.Ctx, "sudo yum update -y")
}

func (d *DependencyInstaller) installRequiredPackages(rc *vm_io.RuntimeContext) error {
	otelzap.Ctx(rc.Ctx).Info("Installing required packages", zap.Strings("packages", d.Packages))
	return d.Runner.Run(rc.Ctx,
		"sudo yum install -y "+strings.Join(d.Packages, " "),
		fmt.Sprintf("sudo yum groupinstall %s -y", execute.Quote(d.DevToolsGroup)),
	)
}

func (d *DependencyInstaller) installVagrant(rc *vm_io.RuntimeContext) error {
	return d.Runner.Run(rc.Ctx,
		"sudo yum install -y yum-utils shadow-utils",
		"sudo yum-config-manager --add-repo "+d.VagrantRepoURL,
		"sudo yum -y install vagrant",
	)
}
