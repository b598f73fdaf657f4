// pkg/ova/basebox.go

package ova

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/config"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/pipeline"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// GuestSetupCommand is the hidden subcommand run inside the image chroot.
const GuestSetupCommand = "guest-setup"

// guestBinary is where the running executable is copied inside the image.
const guestBinary = "/" + shared.AppID

// BaseBoxBuilder turns the upstream Amazon Linux VMware image into a
// VirtualBox VM and packages it as a Vagrant box.
type BaseBoxBuilder struct {
	Runner  execute.Runner
	Client  *http.Client
	WorkDir string
	// TempDir is the parent of the scratch directories; empty uses os.TempDir.
	TempDir string
	// Executable locates the binary copied into the image; defaults to os.Executable.
	Executable func() (string, error)

	OSName        string
	ImagesURL     string
	KernelSuffix  string
	RequiredTools []string
	MountOffset   int64
	MemoryMB      int
}

// NewBaseBoxBuilder wires the builder from cfg.
func NewBaseBoxBuilder(cfg *config.Config, runner execute.Runner, client *http.Client) *BaseBoxBuilder {
	bb := cfg.BaseBox
	return &BaseBoxBuilder{
		Runner:        runner,
		Client:        client,
		WorkDir:       cfg.BaseDir,
		OSName:        bb.OSName,
		ImagesURL:     bb.ImagesURL,
		KernelSuffix:  bb.KernelSuffix,
		RequiredTools: bb.RequiredTools,
		MountOffset:   bb.MountOffset,
		MemoryMB:      bb.MemoryMB,
	}
}

// ImageNames returns the OVA and disk file names of an image version.
func (b *BaseBoxBuilder) ImageNames(version string) (ova, vmdk string) {
	prefix := fmt.Sprintf("%s-vmware_esx-%s-%s", b.OSName, version, b.KernelSuffix)
	return prefix + ".ova", prefix + "-disk1.vmdk"
}

// BoxPath is the packaged Vagrant box.
func (b *BaseBoxBuilder) BoxPath() string {
	return filepath.Join(b.WorkDir, b.OSName+".box")
}

type boxState struct {
	Version string
	OVA     string
	VMDK    string
	Raw     string
	VDI     string
	Mount   string
}

// Build produces <WorkDir>/<os>.box and <WorkDir>/<os>.ova. Scratch
// directories and the registered VM are always removed afterwards.
func (b *BaseBoxBuilder) Build(rc *vm_io.RuntimeContext) (err error) {
	log := otelzap.Ctx(rc.Ctx)

	if err := b.checkTools(rc); err != nil {
		return err
	}
	version := b.osVersion(rc)
	ova, vmdk := b.ImageNames(version)
	log.Info("Building base box", zap.String("version", version), zap.String("image", ova))

	state := boxState{
		Version: version,
		OVA:     filepath.Join(b.WorkDir, ova),
		VMDK:    filepath.Join(b.WorkDir, vmdk),
	}
	var scratch []string
	defer func() {
		if cleanupErr := b.cleanup(rc, scratch, state.Mount); cleanupErr != nil {
			err = multierror.Append(err, cleanupErr).ErrorOrNil()
		}
	}()
	for _, target := range []*string{&state.Raw, &state.VDI, &state.Mount} {
		dir, mkErr := os.MkdirTemp(b.TempDir, "wazuh-vms-box-")
		if mkErr != nil {
			return vm_err.NewWriteError(b.TempDir, mkErr)
		}
		*target = dir
		if target != &state.Mount {
			scratch = append(scratch, dir)
		}
	}
	state.Raw = filepath.Join(state.Raw, b.OSName+".raw")
	state.VDI = filepath.Join(state.VDI, b.OSName+".vdi")

	_, err = pipeline.Run(rc, "base-box", b.steps(), state)
	return err
}

func (b *BaseBoxBuilder) steps() []pipeline.Step[boxState] {
	return []pipeline.Step[boxState]{
		{Name: "image-download", Run: b.downloadImage},
		{Name: "convert-raw", Run: func(rc *vm_io.RuntimeContext, s boxState) (boxState, error) {
			return s, b.Runner.Run(rc.Ctx,
				fmt.Sprintf("vboxmanage clonemedium %s %s --format RAW", s.VMDK, s.Raw),
				"vboxmanage closemedium "+s.VMDK,
				"vboxmanage closemedium "+s.Raw,
			)
		}},
		{Name: "guest-setup", Run: b.setupImage},
		{Name: "convert-vdi", Run: func(rc *vm_io.RuntimeContext, s boxState) (boxState, error) {
			return s, b.Runner.Run(rc.Ctx, fmt.Sprintf("vboxmanage convertfromraw %s %s --format VDI", s.Raw, s.VDI))
		}},
		{Name: "vm-create", Run: func(rc *vm_io.RuntimeContext, s boxState) (boxState, error) {
			return s, b.Runner.Run(rc.Ctx, b.createVMCommands(s.VDI)...)
		}},
		{Name: "box-package", Run: func(rc *vm_io.RuntimeContext, s boxState) (boxState, error) {
			return s, b.Runner.Run(rc.Ctx,
				fmt.Sprintf("vagrant package --base %s --output %s", b.OSName, b.BoxPath()),
				fmt.Sprintf("vboxmanage export %s -o %s", b.OSName, filepath.Join(b.WorkDir, b.OSName+".ova")),
			)
		}},
	}
}

func (b *BaseBoxBuilder) checkTools(rc *vm_io.RuntimeContext) error {
	for _, tool := range b.RequiredTools {
		res, err := b.Runner.Output(rc.Ctx, "command -v "+tool)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return vm_err.NewConfigurationError("command "+tool+" not found in PATH", nil,
				"Install "+tool+" on the build host")
		}
	}
	return nil
}

// osVersion reads the version the "latest" image alias redirects to. Any
// failure falls back to "latest".
func (b *BaseBoxBuilder) osVersion(rc *vm_io.RuntimeContext) string {
	log := otelzap.Ctx(rc.Ctx)
	latest := strings.TrimRight(b.ImagesURL, "/") + "/latest/"

	client := http.DefaultClient
	if b.Client != nil {
		client = b.Client
	}
	noRedirect := *client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	req, err := http.NewRequestWithContext(rc.Ctx, http.MethodHead, latest, nil)
	if err != nil {
		return "latest"
	}
	resp, err := noRedirect.Do(req)
	if err != nil {
		log.Warn("Cannot resolve image version, using latest", zap.String("url", latest), zap.Error(err))
		return "latest"
	}
	_ = resp.Body.Close()

	location := strings.TrimRight(resp.Header.Get("Location"), "/")
	if location == "" {
		return "latest"
	}
	return path.Base(location)
}

func (b *BaseBoxBuilder) downloadImage(rc *vm_io.RuntimeContext, s boxState) (boxState, error) {
	if _, err := os.Stat(s.VMDK); err == nil {
		otelzap.Ctx(rc.Ctx).Info("Image disk already present", zap.String("vmdk", s.VMDK))
		return s, nil
	}
	url := fmt.Sprintf("%s/%s/vmware/%s", strings.TrimRight(b.ImagesURL, "/"), s.Version, filepath.Base(s.OVA))
	return s, b.Runner.Run(rc.Ctx,
		fmt.Sprintf("wget -nv -O %s %s", s.OVA, url),
		fmt.Sprintf("tar -xvf %s -C %s %s", s.OVA, b.WorkDir, filepath.Base(s.VMDK)),
	)
}

// setupImage mounts the raw disk and runs the guest setup in a chroot. The
// mounts are released even when the setup fails.
func (b *BaseBoxBuilder) setupImage(rc *vm_io.RuntimeContext, s boxState) (_ boxState, err error) {
	exe := b.Executable
	if exe == nil {
		exe = os.Executable
	}
	self, err := exe()
	if err != nil {
		return s, vm_err.NewInternalError("cannot locate running executable", err)
	}

	mnt := s.Mount
	binds := []string{"dev", "proc", "sys"}

	if err := b.Runner.Run(rc.Ctx, fmt.Sprintf("mount -o loop,offset=%d %s %s", b.MountOffset, s.Raw, mnt)); err != nil {
		return s, err
	}
	defer func() {
		// Lazy recursive unmount releases whatever is still attached.
		if err != nil {
			_, _ = b.Runner.Output(context.WithoutCancel(rc.Ctx), "umount -R -l "+mnt)
		}
	}()

	cmds := []string{"cp " + execute.Quote(self) + " " + filepath.Join(mnt, guestBinary)}
	for _, d := range binds {
		cmds = append(cmds, fmt.Sprintf("mount -o bind /%s %s", d, filepath.Join(mnt, d)))
	}
	cmds = append(cmds, fmt.Sprintf("chroot %s %s %s", mnt, guestBinary, GuestSetupCommand))
	for i := len(binds) - 1; i >= 0; i-- {
		cmds = append(cmds, "umount "+filepath.Join(mnt, binds[i]))
	}
	cmds = append(cmds,
		"rm -f "+filepath.Join(mnt, guestBinary),
		"umount "+mnt,
	)
	return s, b.Runner.Run(rc.Ctx, cmds...)
}

func (b *BaseBoxBuilder) createVMCommands(vdi string) []string {
	vm := b.OSName
	return []string{
		fmt.Sprintf("vboxmanage createvm --name %s --ostype Linux26_64 --register", vm),
		fmt.Sprintf("vboxmanage modifyvm %s --memory %d --vram 16 --audio-enabled off", vm, b.MemoryMB),
		fmt.Sprintf("vboxmanage storagectl %s --name IDE --add ide", vm),
		fmt.Sprintf("vboxmanage storagectl %s --name SATA --add sata --portcount 1", vm),
		fmt.Sprintf("vboxmanage storageattach %s --storagectl IDE --port 1 --device 0 --type dvddrive --medium emptydrive", vm),
		fmt.Sprintf("vboxmanage storageattach %s --storagectl SATA --port 0 --device 0 --type hdd --medium %s", vm, vdi),
	}
}

// cleanup removes scratch directories and unregisters the VM. The mount
// point is removed with os.Remove so a still-mounted tree is never walked.
func (b *BaseBoxBuilder) cleanup(rc *vm_io.RuntimeContext, scratch []string, mountPoint string) error {
	log := otelzap.Ctx(rc.Ctx)
	var result *multierror.Error

	for _, dir := range scratch {
		if err := os.RemoveAll(dir); err != nil {
			result = multierror.Append(result, vm_err.NewWriteError(dir, err))
		}
	}
	if mountPoint != "" {
		if err := os.Remove(mountPoint); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, vm_err.NewWriteError(mountPoint, err))
		}
	}

	res, err := b.Runner.Output(context.WithoutCancel(rc.Ctx), fmt.Sprintf("vboxmanage unregistervm %s --delete", b.OSName))
	if err != nil {
		result = multierror.Append(result, err)
	} else if res.ExitCode != 0 {
		log.Warn("VM was not unregistered", zap.String("vm", b.OSName), zap.Int("exit_code", res.ExitCode))
	}
	return result.ErrorOrNil()
}
