package core

import (
	"testing"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/testutil"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mappingsYAML = `wazuh_indexer:
  - path: /etc/wazuh-indexer/opensearch.yml
    replace:
      keys: [.network.host, .node.name]
      values: ['"0.0.0.0"', node-1]
wazuh_dashboard:
  - path: /etc/wazuh-dashboard/opensearch_dashboards.yml
    replace:
      keys: ['.["server.host"]']
      values: ['0.0.0.0']
`

type yqCase struct {
	key, value, want string
}

func TestYQSet(t *testing.T) {
	testutil.RunTable(t, []testutil.TableTest[yqCase]{
		{Name: "plain", Input: yqCase{".node.name", "node-1", `sudo yq -i '.node.name = "node-1"' /etc/x.yml`}},
		{Name: "quoted", Input: yqCase{".network.host", `"0.0.0.0"`, `sudo yq -i '.network.host = "0.0.0.0" | .network.host style="double"' /etc/x.yml`}},
		{Name: "escaped quotes", Input: yqCase{".a", `\"b\"`, `sudo yq -i '.a = "b" | .a style="double"' /etc/x.yml`}},
		{Name: "single quote", Input: yqCase{".a", "it's", `sudo yq -i '.a = "it'\''s"' /etc/x.yml`}},
	}, func(t *testing.T, c yqCase) {
		assert.Equal(t, c.want, YQSet(c.key, c.value, "/etc/x.yml"))
	})
}

func TestLoadMappings(t *testing.T) {
	m, err := LoadMappings(testutil.WriteFile(t, t.TempDir(), "mappings.yaml", mappingsYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{
		`sudo yq -i '.network.host = "0.0.0.0" | .network.host style="double"' /etc/wazuh-indexer/opensearch.yml`,
		`sudo yq -i '.node.name = "node-1"' /etc/wazuh-indexer/opensearch.yml`,
	}, m.Commands("wazuh_indexer"))
	assert.Empty(t, m.Commands("wazuh_server"))
}

func TestLoadMappingsRejectsIncompleteEntries(t *testing.T) {
	dir := t.TempDir()
	testutil.RunTable(t, []testutil.TableTest[string]{
		{Name: "no replace", Input: "wazuh_server:\n  - path: /etc/wazuh-server/wazuh-server.yml\n"},
		{Name: "no path", Input: "wazuh_server:\n  - replace: {keys: [.a], values: [b]}\n"},
		{Name: "uneven", Input: "wazuh_server:\n  - path: /x.yml\n    replace: {keys: [.a, .b], values: [c]}\n"},
		{Name: "not yaml", Input: "wazuh_server: [\n"},
	}, func(t *testing.T, content string) {
		_, err := LoadMappings(testutil.WriteFile(t, dir, "m.yaml", content))
		require.Error(t, err)
		assert.True(t, vm_err.IsConfiguration(err))
	})
}

func newCertsRunner() *testutil.FakeRunner {
	return testutil.NewFakeRunner().
		Respond("pemkey_filepath", "/etc/wazuh-indexer/certs/indexer-key.pem\n").
		Respond("pemcert_filepath", "/etc/wazuh-indexer/certs/indexer.pem\n").
		Respond("pemtrustedcas_filepath", "/etc/wazuh-indexer/certs/root-ca.pem\n").
		Respond("indexer.ssl.certificate_authorities", `["/etc/wazuh-server/certs/root-ca.pem"]`+"\n").
		Respond("indexer.ssl.certificate", "/etc/wazuh-server/certs/server.pem\n").
		Respond("indexer.ssl.key", "/etc/wazuh-server/certs/server-key.pem\n").
		Respond("server.ssl.key", "/etc/wazuh-dashboard/certs/dashboard-key.pem\n").
		Respond("server.ssl.certificate", "/etc/wazuh-dashboard/certs/dashboard.pem\n").
		Respond("opensearch.ssl.certificateAuthorities", `["/etc/wazuh-dashboard/certs/root-ca.pem"]`+"\n")
}

func newTestManager(runner *testutil.FakeRunner) *CertsManager {
	return &CertsManager{
		Runner:     runner,
		CertsDir:   "/etc/wazuh-configuration/certs",
		ToolPath:   "/etc/wazuh-configuration/certs/wazuh-certs-tool.sh",
		ConfigPath: "/etc/wazuh-configuration/certs/config.yml",
		Layouts:    Layouts,
	}
}

func TestGenerateCertificates(t *testing.T) {
	runner := newCertsRunner()
	m := newTestManager(runner)

	require.NoError(t, m.Generate(testutil.Context(t)))

	cmds := runner.Commands()
	require.NotEmpty(t, cmds)
	assert.Contains(t, cmds[0], `.nodes.indexer[0].name = "wazuh_indexer"`)
	assert.Contains(t, cmds[0], `.nodes.dashboard[0].ip style="double"`)
	assert.Equal(t, "sudo bash /etc/wazuh-configuration/certs/wazuh-certs-tool.sh -A", cmds[1])

	assert.True(t, runner.Ran("sudo tar -xf /etc/wazuh-configuration/certs/wazuh-certificates.tar -C /etc/wazuh-indexer/certs ./wazuh_indexer.pem ./wazuh_indexer-key.pem ./admin.pem ./admin-key.pem ./root-ca.pem"))
	assert.True(t, runner.Ran("sudo tar -xf /etc/wazuh-configuration/certs/wazuh-certificates.tar -C /etc/wazuh-dashboard/certs ./wazuh_dashboard.pem ./wazuh_dashboard-key.pem ./root-ca.pem"))
	assert.True(t, runner.Ran("sudo mv -n /etc/wazuh-indexer/certs/wazuh_indexer.pem /etc/wazuh-indexer/certs/indexer.pem"))
	assert.True(t, runner.Ran("sudo mv -n /etc/wazuh-server/certs/wazuh_server-key.pem /etc/wazuh-server/certs/server-key.pem"))
	assert.True(t, runner.Ran("sudo chown -R wazuh-dashboard:wazuh-dashboard /etc/wazuh-dashboard/certs/"))
	// root-ca.pem already has the configured name.
	assert.False(t, runner.Ran("root-ca.pem /etc/"))
	assert.Greater(t, runner.Index("wazuh-server/certs/server.pem"), runner.Index("sudo chown -R wazuh-indexer"))
}

func TestGenerateRequiresConfiguredNames(t *testing.T) {
	runner := testutil.NewFakeRunner().Respond("pemkey_filepath", "null\n")
	m := newTestManager(runner)

	err := m.Generate(testutil.Context(t))
	require.Error(t, err)
	assert.True(t, vm_err.IsConfiguration(err))
	assert.False(t, runner.Ran("mkdir -p /etc/wazuh-indexer/certs"))
}

func TestConfigure(t *testing.T) {
	runner := newCertsRunner()
	c := &Configurer{
		Runner:       runner,
		MappingsPath: testutil.WriteFile(t, t.TempDir(), "mappings.yaml", mappingsYAML),
		Certs:        newTestManager(runner),
	}

	require.NoError(t, c.Configure(testutil.Context(t)))

	order := []string{
		".network.host",
		`.["server.host"]`,
		"wazuh-certs-tool.sh -A",
		"sudo systemctl daemon-reload",
		"sudo systemctl --quiet enable wazuh-indexer",
		"sudo systemctl start wazuh-indexer",
		"indexer-security-init.sh",
		"sudo systemctl start wazuh-server",
		"sudo systemctl start wazuh-dashboard",
	}
	last := -1
	for _, substr := range order {
		i := runner.Index(substr)
		require.GreaterOrEqual(t, i, 0, "missing command %q", substr)
		assert.Greater(t, i, last, "command %q out of order", substr)
		last = i
	}
}

func TestStartServicesStopsOnFailure(t *testing.T) {
	runner := testutil.NewFakeRunner().FailOn("start wazuh-server", 1)
	c := &Configurer{Runner: runner}

	err := c.StartServices(testutil.Context(t))
	require.Error(t, err)
	assert.True(t, vm_err.IsCommandExecution(err))
	assert.False(t, runner.Ran("wazuh-dashboard"))
}

func TestBundledMappingsLoad(t *testing.T) {
	m, err := LoadMappings("../../configurer/core/static/configuration_mappings.yaml")
	require.NoError(t, err)
	for _, c := range shared.Components {
		assert.NotEmpty(t, m.Commands(c), c)
	}
}
