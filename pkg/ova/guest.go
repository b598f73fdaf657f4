// pkg/ova/guest.go

package ova

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/artifact"
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
	guestAdditionsISO = "/root/VBoxGuestAdditions.iso"
	sshdConfig        = "/etc/ssh/sshd_config"
)

// GuestSetup prepares the mounted base image from inside its chroot.
type GuestSetup struct {
	Runner   execute.Runner
	Resolver VersionResolver

	Nameserver     string
	User           string
	Password       string
	VagrantKeyURL  string
	VBoxBaseURL    string
	ZeroFillPasses int
}

// NewGuestSetup wires the guest setup from cfg.
func NewGuestSetup(cfg *config.Config, runner execute.Runner, client *http.Client) *GuestSetup {
	gs := cfg.GuestSetup
	return &GuestSetup{
		Runner:         runner,
		Resolver:       &artifact.Resolver{Client: client, BaseURL: gs.GuestLatestURL},
		Nameserver:     gs.Nameserver,
		User:           shared.ServiceUser,
		Password:       gs.UserPassword,
		VagrantKeyURL:  gs.VagrantKeyURL,
		VBoxBaseURL:    cfg.VirtualBox.BaseURL,
		ZeroFillPasses: gs.ZeroFillPasses,
	}
}

// Run executes the guest setup steps in order.
func (g *GuestSetup) Run(rc *vm_io.RuntimeContext) error {
	steps := []pipeline.Step[struct{}]{
		pipeline.Do[struct{}]("dns", g.configureDNS),
		pipeline.Do[struct{}]("service-user", g.setupUser),
		pipeline.Do[struct{}]("packages", func(rc *vm_io.RuntimeContext) error {
			return g.Runner.Run(rc.Ctx, "yum install -y network-scripts git")
		}),
		pipeline.Do[struct{}]("guest-additions", g.installGuestAdditions),
		pipeline.Do[struct{}]("sshd", g.configureSSH),
		pipeline.Do[struct{}]("cleanup", g.cleanup),
	}
	_, err := pipeline.Run(rc, "guest-setup", steps, struct{}{})
	return err
}

func (g *GuestSetup) configureDNS(rc *vm_io.RuntimeContext) error {
	if err := g.Runner.Run(rc.Ctx, "rm -f /etc/resolv.conf"); err != nil {
		return err
	}
	return g.Runner.Put(rc.Ctx, strings.NewReader("nameserver "+g.Nameserver+"\n"), "/etc/resolv.conf", 0644)
}

func (g *GuestSetup) setupUser(rc *vm_io.RuntimeContext) error {
	home := "/home/" + g.User
	keys := home + "/.ssh/authorized_keys"
	err := g.Runner.Run(rc.Ctx,
		"useradd -m -s /bin/bash "+g.User,
		fmt.Sprintf("echo %s | chpasswd", execute.Quote(g.User+":"+g.Password)),
		"mkdir -p "+home+"/.ssh",
		fmt.Sprintf("wget -nv %s -O %s", g.VagrantKeyURL, keys),
		"chmod 600 "+keys,
		"chmod 700 "+home+"/.ssh",
		fmt.Sprintf("chown -R %s:%s %s", g.User, g.User, home),
	)
	if err != nil {
		return err
	}
	return g.Runner.Put(rc.Ctx, strings.NewReader(g.User+" ALL=(ALL) NOPASSWD: ALL\n"), "/etc/sudoers.d/"+g.User, 0440)
}

func (g *GuestSetup) installGuestAdditions(rc *vm_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)

	if err := g.Runner.Run(rc.Ctx, "yum install -y gcc elfutils-libelf-devel kernel-devel libX11 libXt libXext libXmu"); err != nil {
		return err
	}
	// Old kernels are removed when present; none is fine.
	if err := tolerate(rc, g.Runner, "dnf remove -y $(dnf repoquery --installonly --latest-limit=-1 -q)"); err != nil {
		return err
	}

	res, err := g.Runner.Output(rc.Ctx, "ls -1 /lib/modules")
	if err != nil {
		return err
	}
	kernel := strings.TrimSpace(strings.SplitN(strings.TrimSpace(res.Stdout), "\n", 2)[0])
	if res.ExitCode != 0 || kernel == "" {
		return vm_err.NewCommandExecutionError("ls -1 /lib/modules", res.ExitCode, "no kernel modules directory found")
	}

	version, err := g.Resolver.Resolve(rc)
	if err != nil {
		return err
	}
	log.Info("Installing guest additions", zap.String("version", version), zap.String("kernel", kernel))

	iso := fmt.Sprintf("%s/%s/VBoxGuestAdditions_%s.iso", strings.TrimRight(g.VBoxBaseURL, "/"), version, version)
	if err := g.Runner.Run(rc.Ctx,
		fmt.Sprintf("wget -nv %s -O %s", iso, guestAdditionsISO),
		"mount -o ro,loop "+guestAdditionsISO+" /mnt",
	); err != nil {
		return err
	}
	// The installer exits non-zero when it cannot load modules into the
	// build host kernel; the modules are rebuilt for the image kernel below.
	if err := tolerate(rc, g.Runner, "sh /mnt/VBoxLinuxAdditions.run"); err != nil {
		return err
	}
	return g.Runner.Run(rc.Ctx,
		"umount /mnt",
		"rm -f "+guestAdditionsISO,
		"/etc/kernel/postinst.d/vboxadd "+kernel,
		"/sbin/depmod "+kernel,
	)
}

func (g *GuestSetup) configureSSH(rc *vm_io.RuntimeContext) error {
	err := execute.ModifyFile(rc.Ctx, g.Runner, sshdConfig, []execute.Replacement{
		{Pattern: `(?m)^[ \t]*(#PasswordAuthentication yes|PasswordAuthentication no)[ \t]*$`, With: "PasswordAuthentication yes"},
	})
	if err != nil {
		return err
	}
	return tolerate(rc, g.Runner, "systemctl restart sshd")
}

func (g *GuestSetup) cleanup(rc *vm_io.RuntimeContext) error {
	if err := g.Runner.Run(rc.Ctx,
		"yum clean all",
		"rm -rf /var/cache/yum",
		"rm -f /etc/resolv.conf",
	); err != nil {
		return err
	}
	// Zero the free space so the exported disk compresses; dd stops at ENOSPC.
	for i := 1; i <= g.ZeroFillPasses; i++ {
		if err := tolerate(rc, g.Runner, fmt.Sprintf("dd if=/dev/zero of=/zero%d bs=1M", i)); err != nil {
			return err
		}
		if err := g.Runner.Run(rc.Ctx, fmt.Sprintf("rm -f /zero%d", i)); err != nil {
			return err
		}
	}
	return nil
}

// tolerate runs cmd and only logs a non-zero exit.
func tolerate(rc *vm_io.RuntimeContext, r execute.Runner, cmd string) error {
	res, err := r.Output(rc.Ctx, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		otelzap.Ctx(rc.Ctx).Warn("Ignoring command failure",
			zap.String("command", cmd),
			zap.Int("exit_code", res.ExitCode),
			zap.String("summary", execute.ExtractSummary(res.Stderr, 2)))
	}
	return nil
}
