package ova

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/testutil"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const imageVersion = "2023.6.20250218.2"

func imagesServer(t *testing.T, location string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/latest/" && location != "" {
			w.Header().Set("Location", location)
			w.WriteHeader(http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestBuilder(t *testing.T, runner *testutil.FakeRunner, imagesURL string) *BaseBoxBuilder {
	t.Helper()
	return &BaseBoxBuilder{
		Runner:        runner,
		Client:        &http.Client{},
		WorkDir:       t.TempDir(),
		TempDir:       t.TempDir(),
		Executable:    func() (string, error) { return "/usr/local/bin/wazuh-vms", nil },
		OSName:        "al2023",
		ImagesURL:     imagesURL,
		KernelSuffix:  "kernel-6.1-x86_64.xfs.gpt",
		RequiredTools: []string{"vboxmanage", "chroot"},
		MountOffset:   12582912,
		MemoryMB:      1024,
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directories left in %s", dir)
}

func TestImageNames(t *testing.T) {
	b := &BaseBoxBuilder{OSName: "al2023", KernelSuffix: "kernel-6.1-x86_64.xfs.gpt"}
	ova, vmdk := b.ImageNames(imageVersion)
	assert.Equal(t, "al2023-vmware_esx-2023.6.20250218.2-kernel-6.1-x86_64.xfs.gpt.ova", ova)
	assert.Equal(t, "al2023-vmware_esx-2023.6.20250218.2-kernel-6.1-x86_64.xfs.gpt-disk1.vmdk", vmdk)
}

func TestBuildRunsStagesInOrder(t *testing.T) {
	srv := imagesServer(t, "/"+imageVersion+"/")
	runner := testutil.NewFakeRunner()
	b := newTestBuilder(t, runner, srv.URL)

	require.NoError(t, b.Build(testutil.Context(t)))

	ova, _ := b.ImageNames(imageVersion)
	assert.True(t, runner.Ran("wget -nv -O "+filepath.Join(b.WorkDir, ova)+" "+srv.URL+"/"+imageVersion+"/vmware/"+ova))

	order := []string{
		"command -v vboxmanage",
		"command -v chroot",
		"wget -nv",
		"tar -xvf",
		"vboxmanage clonemedium",
		"mount -o loop,offset=12582912",
		"cp /usr/local/bin/wazuh-vms",
		"mount -o bind /dev",
		"chroot ",
		"umount ",
		"vboxmanage convertfromraw",
		"vboxmanage createvm --name al2023",
		"vboxmanage storageattach al2023 --storagectl SATA",
		"vagrant package --base al2023 --output " + b.BoxPath(),
		"vboxmanage export al2023",
		"vboxmanage unregistervm al2023 --delete",
	}
	last := -1
	for _, substr := range order {
		i := runner.Index(substr)
		require.GreaterOrEqual(t, i, 0, "missing command %q", substr)
		assert.Greater(t, i, last, "command %q out of order", substr)
		last = i
	}
	assert.True(t, runner.Ran("/wazuh-vms guest-setup"))
	assertEmptyDir(t, b.TempDir)
}

func TestBuildFallsBackToLatest(t *testing.T) {
	srv := imagesServer(t, "")
	runner := testutil.NewFakeRunner()
	b := newTestBuilder(t, runner, srv.URL)

	require.NoError(t, b.Build(testutil.Context(t)))
	assert.True(t, runner.Ran("/latest/vmware/al2023-vmware_esx-latest-"))
}

func TestBuildSkipsPresentImage(t *testing.T) {
	srv := imagesServer(t, "/"+imageVersion+"/")
	runner := testutil.NewFakeRunner()
	b := newTestBuilder(t, runner, srv.URL)
	_, vmdk := b.ImageNames(imageVersion)
	testutil.WriteFile(t, b.WorkDir, vmdk, "disk")

	require.NoError(t, b.Build(testutil.Context(t)))
	assert.False(t, runner.Ran("wget"))
	assert.True(t, runner.Ran("vboxmanage clonemedium"))
}

func TestBuildMissingToolRunsNothing(t *testing.T) {
	srv := imagesServer(t, "/"+imageVersion+"/")
	runner := testutil.NewFakeRunner().FailOn("command -v chroot", 1)
	b := newTestBuilder(t, runner, srv.URL)

	err := b.Build(testutil.Context(t))
	require.Error(t, err)
	assert.True(t, vm_err.IsConfiguration(err))
	assert.Contains(t, err.Error(), "command chroot not found in PATH")
	assert.False(t, runner.Ran("wget"))
	assert.False(t, runner.Ran("unregistervm"))
}

func TestBuildGuestSetupFailureReleasesMounts(t *testing.T) {
	srv := imagesServer(t, "/"+imageVersion+"/")
	runner := testutil.NewFakeRunner().FailOn("chroot ", 1)
	b := newTestBuilder(t, runner, srv.URL)

	err := b.Build(testutil.Context(t))
	require.Error(t, err)
	assert.True(t, vm_err.IsCommandExecution(err))

	assert.True(t, runner.Ran("umount -R -l"))
	assert.Greater(t, runner.Index("vboxmanage unregistervm"), runner.Index("umount -R -l"))
	assert.False(t, runner.Ran("convertfromraw"))
	assert.False(t, runner.Ran("vagrant package"))
	assertEmptyDir(t, b.TempDir)
}
