package provisioner

import (
	"testing"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/config"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/testutil"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const packagesURLs = `wazuh_indexer_x86_64_rpm: https://packages.wazuh.com/5.x/yum/wazuh-indexer-5.0.0-1.x86_64.rpm
wazuh_indexer_aarch64_rpm: https://packages.wazuh.com/5.x/yum/wazuh-indexer-5.0.0-1.aarch64.rpm
wazuh_indexer_amd64_deb: https://packages.wazuh.com/5.x/apt/pool/main/w/wazuh-indexer/wazuh-indexer_5.0.0-1_amd64.deb
wazuh_server_x86_64_rpm: https://packages-dev.wazuh.com/pre-release/yum/wazuh-server-5.0.0-1.x86_64.rpm
wazuh_server_amd64_deb: https://packages-dev.wazuh.com/pre-release/apt/wazuh-server_5.0.0-1_amd64.deb
wazuh_dashboard_x86_64_rpm: https://packages.wazuh.com/5.x/yum/wazuh-dashboard-5.0.0-1.x86_64.rpm
wazuh_dashboard_amd64_deb: https://packages.wazuh.com/5.x/apt/wazuh-dashboard_5.0.0-1_amd64.deb
wazuh_certs_tool: https://packages.wazuh.com/5.0/wazuh-certs-tool-5.0.sh
wazuh_config: https://packages.wazuh.com/5.0/config.yml
`

const dependencies = `wazuh_indexer:
  yum: [coreutils]
  apt: [debconf, adduser]
wazuh_server:
  yum: []
wazuh_dashboard:
  yum: [libcap, "nss tools"]
  apt: [libcap2-bin]
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default(t.TempDir())
	require.NoError(t, err)
	return cfg
}

func writeInputs(t *testing.T, urls, deps string) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		PackagesURLPath:  testutil.WriteFile(t, dir, "packages_url.yaml", urls),
		DependenciesPath: testutil.WriteFile(t, dir, "wazuh_dependencies.yaml", deps),
		PackageType:      shared.PackageRPM,
		Arch:             shared.ArchX8664,
		Component:        shared.ComponentAll,
	}
}

func TestLoadManifest(t *testing.T) {
	opts := writeInputs(t, packagesURLs, dependencies)
	m, err := LoadManifest(opts.PackagesURLPath)
	require.NoError(t, err)

	assert.Equal(t, "https://packages.wazuh.com/5.0/wazuh-certs-tool-5.0.sh", m.Certs.Tool)
	assert.Equal(t, "https://packages.wazuh.com/5.0/config.yml", m.Certs.Config)

	u, err := m.Packages.URL(shared.ComponentIndexer, shared.PackageRPM, shared.ArchAArch64)
	require.NoError(t, err)
	assert.Equal(t, "https://packages.wazuh.com/5.x/yum/wazuh-indexer-5.0.0-1.aarch64.rpm", u)

	u, err = m.Packages.URL(shared.ComponentServer, shared.PackageDEB, shared.ArchAMD64)
	require.NoError(t, err)
	assert.Equal(t, "https://packages-dev.wazuh.com/pre-release/apt/wazuh-server_5.0.0-1_amd64.deb", u)

	_, err = m.Packages.URL(shared.ComponentServer, shared.PackageRPM, shared.ArchARM64)
	require.Error(t, err)
	assert.True(t, vm_err.IsConfiguration(err))
}

func TestLoadManifestRejectsEmptyFile(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "empty.yaml", "")
	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.True(t, vm_err.IsConfiguration(err))
}

func TestDependenciesFor(t *testing.T) {
	opts := writeInputs(t, packagesURLs, dependencies)
	deps, err := LoadDependencies(opts.DependenciesPath)
	require.NoError(t, err)

	got, err := deps.For(shared.ComponentIndexer, shared.PackageDEB)
	require.NoError(t, err)
	assert.Equal(t, []string{"debconf", "adduser"}, got)

	got, err = deps.For(shared.ComponentServer, shared.PackageDEB)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Dependencies{}.For(shared.ComponentServer, shared.PackageRPM)
	require.Error(t, err)
}

func TestCheckURL(t *testing.T) {
	allowed := []string{"packages.wazuh.com", "packages-dev.wazuh.com"}
	require.NoError(t, CheckURL("https://packages.wazuh.com/5.x/yum/x.rpm", allowed))

	testutil.RunTable(t, []testutil.TableTest[string]{
		{Name: "foreign host", Input: "https://evil.example/packages.wazuh.com/x.rpm"},
		{Name: "lookalike host", Input: "https://packages.wazuh.com.evil.example/x.rpm"},
		{Name: "no scheme", Input: "packages.wazuh.com/x.rpm"},
		{Name: "ftp", Input: "ftp://packages.wazuh.com/x.rpm"},
		{Name: "empty", Input: ""},
	}, func(t *testing.T, raw string) {
		err := CheckURL(raw, allowed)
		require.Error(t, err)
		assert.True(t, vm_err.IsConfiguration(err))
	})
}

func TestProvisionAllComponents(t *testing.T) {
	runner := testutil.NewFakeRunner()
	p, err := New(testConfig(t), runner, writeInputs(t, packagesURLs, dependencies))
	require.NoError(t, err)

	require.NoError(t, p.Provision(testutil.Context(t)))
	assert.Equal(t, []string{
		"sudo mkdir -p /etc/wazuh-configuration/certs",
		"sudo curl -sSfL -o /etc/wazuh-configuration/certs/wazuh-certs-tool.sh https://packages.wazuh.com/5.0/wazuh-certs-tool-5.0.sh",
		"sudo mkdir -p /etc/wazuh-configuration/certs",
		"sudo curl -sSfL -o /etc/wazuh-configuration/certs/config.yml https://packages.wazuh.com/5.0/config.yml",
		"sudo dnf install -y coreutils",
		"sudo mkdir -p /etc/wazuh-configuration/packages",
		"sudo curl -sSfL -o /etc/wazuh-configuration/packages/wazuh_indexer.rpm https://packages.wazuh.com/5.x/yum/wazuh-indexer-5.0.0-1.x86_64.rpm",
		"sudo dnf install -y /etc/wazuh-configuration/packages/wazuh_indexer.rpm",
		"sudo mkdir -p /etc/wazuh-configuration/packages",
		"sudo curl -sSfL -o /etc/wazuh-configuration/packages/wazuh_server.rpm https://packages-dev.wazuh.com/pre-release/yum/wazuh-server-5.0.0-1.x86_64.rpm",
		"sudo dnf install -y /etc/wazuh-configuration/packages/wazuh_server.rpm",
		"sudo dnf install -y libcap",
		"sudo dnf install -y 'nss tools'",
		"sudo mkdir -p /etc/wazuh-configuration/packages",
		"sudo curl -sSfL -o /etc/wazuh-configuration/packages/wazuh_dashboard.rpm https://packages.wazuh.com/5.x/yum/wazuh-dashboard-5.0.0-1.x86_64.rpm",
		"sudo dnf install -y /etc/wazuh-configuration/packages/wazuh_dashboard.rpm",
	}, runner.Commands())
}

func TestProvisionDebComponent(t *testing.T) {
	opts := writeInputs(t, packagesURLs, dependencies)
	opts.PackageType = shared.PackageDEB
	opts.Arch = shared.ArchAMD64
	opts.Component = shared.ComponentDashboard
	runner := testutil.NewFakeRunner()
	p, err := New(testConfig(t), runner, opts)
	require.NoError(t, err)

	require.NoError(t, p.Provision(testutil.Context(t)))
	assert.True(t, runner.Ran("sudo apt-get install -y libcap2-bin"))
	assert.True(t, runner.Ran("sudo dpkg -i /etc/wazuh-configuration/packages/wazuh_dashboard.deb"))
	assert.False(t, runner.Ran("wazuh_indexer"))
}

func TestNewRejectsForeignPackageBeforeRunning(t *testing.T) {
	urls := packagesURLs + "wazuh_indexer_x86_64_rpm_mirror: https://mirror.example/wazuh-indexer-5.0.0-1.x86_64.rpm\n"
	runner := testutil.NewFakeRunner()

	_, err := New(testConfig(t), runner, writeInputs(t, urls, dependencies))
	require.Error(t, err)
	assert.True(t, vm_err.IsConfiguration(err))
	assert.Contains(t, err.Error(), "not for Wazuh packages")
	assert.Empty(t, runner.Commands())
}

func TestNewRequiresComponentDependencies(t *testing.T) {
	deps := "wazuh_indexer:\n  yum: []\n"
	_, err := New(testConfig(t), testutil.NewFakeRunner(), writeInputs(t, packagesURLs, deps))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependencies for wazuh_server not found")
}

func TestProvisionStopsOnInstallFailure(t *testing.T) {
	runner := testutil.NewFakeRunner().FailOn("wazuh_indexer.rpm https", 6)
	p, err := New(testConfig(t), runner, writeInputs(t, packagesURLs, dependencies))
	require.NoError(t, err)

	err = p.Provision(testutil.Context(t))
	require.Error(t, err)
	assert.True(t, vm_err.IsCommandExecution(err))
	assert.False(t, runner.Ran("dnf install -y /etc/wazuh-configuration/packages/wazuh_indexer.rpm"))
	assert.False(t, runner.Ran("wazuh_server"))
}

func TestBundledDependenciesCoverEveryComponent(t *testing.T) {
	deps, err := LoadDependencies("../../" + config.DefaultDependenciesFile)
	require.NoError(t, err)
	for _, c := range shared.Components {
		for _, pt := range []shared.PackageType{shared.PackageRPM, shared.PackageDEB} {
			_, err := deps.For(c, pt)
			assert.NoError(t, err, "%s %s", c, pt)
		}
	}
}
