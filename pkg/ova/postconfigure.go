// pkg/ova/postconfigure.go

package ova

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/config"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/pipeline"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	systemdDir      = "/etc/systemd/system"
	ramScript       = "/etc/automatic_set_ram.sh"
	heapService     = "updateIndexerHeap.service"
	starterScript   = "/etc/.wazuh-starter.sh"
	securityInitCmd = "/usr/share/wazuh-indexer/bin/indexer-security-init.sh"
)

// ProductVersion is the content of VERSION.json.
type ProductVersion struct {
	Version string `json:"version"`
	Stage   string `json:"stage"`
}

// String joins version and stage the way the welcome banner shows them.
func (v ProductVersion) String() string {
	return v.Version + v.Stage
}

// ReadProductVersion parses a VERSION.json file.
func ReadProductVersion(path string) (ProductVersion, error) {
	var v ProductVersion
	data, err := os.ReadFile(path)
	if err != nil {
		return v, vm_err.NewConfigurationError("cannot read version file "+path, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, vm_err.NewConfigurationError("invalid version file "+path, err)
	}
	if v.Version == "" {
		return v, vm_err.NewConfigurationError("version file "+path+" has no version", nil)
	}
	return v, nil
}

// PostConfigurer finalizes a provisioned VM before it is exported as an OVA.
// It runs on the VM itself.
type PostConfigurer struct {
	Runner execute.Runner

	StaticDir    string
	VersionFile  string
	RootPassword string
	IndexerURL   string
	Indices      []string
	User         string
	Hostname     string
}

// NewPostConfigurer wires the post-configurer from cfg.
func NewPostConfigurer(cfg *config.Config, runner execute.Runner) *PostConfigurer {
	op := cfg.OVAPost
	return &PostConfigurer{
		Runner:       runner,
		StaticDir:    cfg.Resolve(op.StaticDir),
		VersionFile:  cfg.Resolve(op.VersionFile),
		RootPassword: op.RootPassword,
		IndexerURL:   op.IndexerURL,
		Indices:      op.Indices,
		User:         shared.ServiceUser,
		Hostname:     shared.ServiceHostname,
	}
}

// Run applies the system configuration, resets the indexer and stops the
// services so the first boot of the exported image starts clean.
func (p *PostConfigurer) Run(rc *vm_io.RuntimeContext) error {
	steps := []pipeline.Step[struct{}]{
		pipeline.Do[struct{}]("system-upgrade", func(rc *vm_io.RuntimeContext) error {
			return p.Runner.Run(rc.Ctx, "yum upgrade -y")
		}),
		pipeline.Do[struct{}]("grub", p.configureGrub),
		pipeline.Do[struct{}]("fips", func(rc *vm_io.RuntimeContext) error {
			return p.Runner.Run(rc.Ctx,
				"yum update -y",
				"yum install -y dracut-fips",
				"dracut -f",
				"/sbin/grubby --update-kernel=ALL --args='fips=1'",
			)
		}),
		pipeline.Do[struct{}]("indexer-heap", p.installHeapService),
		pipeline.Do[struct{}]("starter-service", p.installStarter),
		pipeline.Do[struct{}]("accounts", p.configureAccounts),
		pipeline.Do[struct{}]("sshd", p.configureSSH),
		pipeline.Do[struct{}]("welcome-message", p.writeMessages),
		pipeline.Do[struct{}]("indexer-reset", p.resetIndexer),
		pipeline.Do[struct{}]("services", func(rc *vm_io.RuntimeContext) error {
			return p.Runner.Run(rc.Ctx,
				"systemctl stop wazuh-indexer wazuh-dashboard",
				"systemctl disable wazuh-manager",
				"systemctl disable wazuh-dashboard",
			)
		}),
		pipeline.Do[struct{}]("cleanup", p.cleanup),
	}
	_, err := pipeline.Run(rc, "ova-post-configurer", steps, struct{}{})
	return err
}

func (p *PostConfigurer) static(parts ...string) string {
	return filepath.Join(append([]string{p.StaticDir}, parts...)...)
}

func (p *PostConfigurer) configureGrub(rc *vm_io.RuntimeContext) error {
	if err := execute.InstallFile(rc.Ctx, p.Runner, p.static("grub", "wazuh.png"), "/boot/grub2/wazuh.png", 0644); err != nil {
		return err
	}
	if err := execute.InstallFile(rc.Ctx, p.Runner, p.static("grub", "grub"), "/etc/default/grub", 0644); err != nil {
		return err
	}
	return p.Runner.Run(rc.Ctx, "grub2-mkconfig -o /boot/grub2/grub.cfg")
}

func (p *PostConfigurer) installHeapService(rc *vm_io.RuntimeContext) error {
	if err := execute.InstallFile(rc.Ctx, p.Runner, p.static("automatic_set_ram.sh"), ramScript, 0755); err != nil {
		return err
	}
	if err := execute.InstallFile(rc.Ctx, p.Runner, p.static(heapService), systemdDir+"/"+heapService, 0644); err != nil {
		return err
	}
	return p.Runner.Run(rc.Ctx, "systemctl daemon-reload", "systemctl enable "+heapService)
}

func (p *PostConfigurer) installStarter(rc *vm_io.RuntimeContext) error {
	files := []struct {
		src, dest string
		mode      os.FileMode
	}{
		{p.static("wazuh-starter", "wazuh-starter.service"), systemdDir + "/wazuh-starter.service", 0644},
		{p.static("wazuh-starter", "wazuh-starter.timer"), systemdDir + "/wazuh-starter.timer", 0644},
		{p.static("wazuh-starter", "wazuh-starter.sh"), starterScript, 0755},
	}
	for _, f := range files {
		if err := execute.InstallFile(rc.Ctx, p.Runner, f.src, f.dest, f.mode); err != nil {
			return err
		}
	}
	return p.Runner.Run(rc.Ctx,
		"systemctl daemon-reload",
		"systemctl enable wazuh-starter.timer",
		"systemctl enable wazuh-starter.service",
	)
}

func (p *PostConfigurer) configureAccounts(rc *vm_io.RuntimeContext) error {
	return p.Runner.Run(rc.Ctx,
		fmt.Sprintf("echo %s | chpasswd", execute.Quote("root:"+p.RootPassword)),
		"sudo hostnamectl set-hostname "+p.Hostname,
	)
}

// configureSSH comments out root login with a password and re-enables
// password authentication, then denies root login explicitly.
func (p *PostConfigurer) configureSSH(rc *vm_io.RuntimeContext) error {
	err := execute.ModifyFile(rc.Ctx, p.Runner, sshdConfig, []execute.Replacement{
		{Pattern: `(?m)^PermitRootLogin yes`, With: "#PermitRootLogin yes"},
		{Pattern: `(?m)^PasswordAuthentication no`, With: "PasswordAuthentication yes"},
	})
	if err != nil {
		return err
	}
	return execute.AppendFile(rc.Ctx, p.Runner, sshdConfig, "\nPermitRootLogin no\n")
}

func (p *PostConfigurer) writeMessages(rc *vm_io.RuntimeContext) error {
	v, err := ReadProductVersion(p.VersionFile)
	if err != nil {
		return err
	}
	otelzap.Ctx(rc.Ctx).Info("Writing welcome messages", zap.String("version", v.String()))
	return p.Runner.Run(rc.Ctx, fmt.Sprintf("%s no %s %s", execute.Quote(p.static("messages.sh")), v, p.User))
}

// resetIndexer drops the data gathered while provisioning. Indices that do
// not exist are not an error.
func (p *PostConfigurer) resetIndexer(rc *vm_io.RuntimeContext) error {
	if err := p.Runner.Run(rc.Ctx, "systemctl stop wazuh-manager"); err != nil {
		return err
	}
	base := strings.TrimRight(p.IndexerURL, "/")
	for _, index := range p.Indices {
		if err := tolerate(rc, p.Runner, fmt.Sprintf("curl -u admin:admin -XDELETE %s -k", execute.Quote(base+"/"+index))); err != nil {
			return err
		}
	}
	return p.Runner.Run(rc.Ctx, "bash "+securityInitCmd+" -ho 127.0.0.1")
}

func (p *PostConfigurer) cleanup(rc *vm_io.RuntimeContext) error {
	return p.Runner.Run(rc.Ctx,
		"rm -f /securityadmin_demo.sh",
		"yum clean all",
		"systemctl daemon-reload",
		"cat /dev/null > ~/.bash_history",
	)
}
