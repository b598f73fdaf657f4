package ova

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/artifact"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/testutil"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal records every collaborator call in one ordered list.
type journal struct {
	events []string
	runner *testutil.FakeRunner
}

// classify maps a command to the step label it belongs to.
func classify(cmd string) string {
	switch {
	case cmd == "sudo yum update -y":
		return StepSystemUpdate
	case strings.HasPrefix(cmd, "sudo yum install -y kernel-devel"), strings.HasPrefix(cmd, "sudo yum groupinstall"):
		return StepPackageInstall
	case strings.HasPrefix(cmd, "sudo bash /tmp/VirtualBox-"):
		return StepInstallerRun
	case cmd == "sudo /sbin/vboxconfig":
		return StepKernelModuleRebuild
	case strings.Contains(cmd, "yum-utils"), strings.Contains(cmd, "yum-config-manager"), strings.Contains(cmd, "install vagrant"):
		return StepVagrantInstall
	}
	return "unexpected: " + cmd
}

func (j *journal) add(event string) {
	if n := len(j.events); n > 0 && j.events[n-1] == event {
		return
	}
	j.events = append(j.events, event)
}

func (j *journal) Run(ctx context.Context, cmds ...string) error {
	for _, cmd := range cmds {
		j.add(classify(cmd))
		if err := j.runner.Run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (j *journal) Output(ctx context.Context, cmd string) (execute.Result, error) {
	j.add(classify(cmd))
	return j.runner.Output(ctx, cmd)
}

func (j *journal) Put(ctx context.Context, r io.Reader, dest string, mode os.FileMode) error {
	return j.runner.Put(ctx, r, dest, mode)
}

func (j *journal) Resolve(*vm_io.RuntimeContext) (string, error) {
	j.add(StepVersionResolve)
	return "7.0.20", nil
}

func (j *journal) Locate(_ *vm_io.RuntimeContext, version string) (artifact.Reference, error) {
	j.add(StepArtifactLocate)
	return artifact.Reference{Version: version, URL: "https://mirror/" + version + "/VirtualBox-7.0.20-1-Linux_amd64.run", Dest: "/tmp/VirtualBox-" + version + ".run"}, nil
}

func (j *journal) Download(*vm_io.RuntimeContext, artifact.Reference) error {
	j.add(StepArtifactDownload)
	return nil
}

func newJournalInstaller(runner *testutil.FakeRunner) (*DependencyInstaller, *journal) {
	j := &journal{runner: runner}
	return &DependencyInstaller{
		Runner:          j,
		Resolver:        j,
		Locator:         j,
		Downloader:      j,
		Packages:        []string{"kernel-devel", "gcc"},
		DevToolsGroup:   "Development Tools",
		KernelConfigCmd: "/sbin/vboxconfig",
		VagrantRepoURL:  "https://rpm.releases.hashicorp.com/AmazonLinux/hashicorp.repo",
	}, j
}

var expectedOrder = []string{
	StepSystemUpdate,
	StepPackageInstall,
	StepVersionResolve,
	StepArtifactLocate,
	StepArtifactDownload,
	StepInstallerRun,
	StepSystemUpdate,
	StepKernelModuleRebuild,
	StepVagrantInstall,
}

func TestInstallRunsStepsInOrderOnce(t *testing.T) {
	runner := testutil.NewFakeRunner()
	d, j := newJournalInstaller(runner)

	require.NoError(t, d.Install(testutil.Context(t)))
	assert.Equal(t, expectedOrder, j.events)
	assert.Equal(t, expectedOrder, d.StepNames())

	assert.Equal(t, []string{
		"sudo yum update -y",
		"sudo yum install -y kernel-devel gcc",
		"sudo yum groupinstall 'Development Tools' -y",
		"sudo bash /tmp/VirtualBox-7.0.20.run",
		"sudo yum update -y",
		"sudo /sbin/vboxconfig",
		"sudo yum install -y yum-utils shadow-utils",
		"sudo yum-config-manager --add-repo https://rpm.releases.hashicorp.com/AmazonLinux/hashicorp.repo",
		"sudo yum -y install vagrant",
	}, runner.Commands())
}

func TestKernelModuleFailureSkipsVagrant(t *testing.T) {
	runner := testutil.NewFakeRunner().FailOn("vboxconfig", 2)
	d, j := newJournalInstaller(runner)

	err := d.Install(testutil.Context(t))
	require.Error(t, err)
	assert.True(t, vm_err.IsCommandExecution(err))
	ce, ok := vm_err.AsCommandError(err)
	require.True(t, ok)
	assert.Equal(t, "sudo /sbin/vboxconfig", ce.Command)
	assert.Equal(t, 2, ce.ExitCode)

	assert.Equal(t, expectedOrder[:len(expectedOrder)-1], j.events)
	assert.False(t, runner.Ran("vagrant"))
}

func TestSystemUpdateFailureIsFatal(t *testing.T) {
	runner := testutil.NewFakeRunner().FailOn("yum update", 1)
	d, j := newJournalInstaller(runner)

	require.Error(t, d.Install(testutil.Context(t)))
	assert.Equal(t, []string{StepSystemUpdate}, j.events)
}
