// pkg/core/certs.go

package core

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const certsArchive = "wazuh-certificates.tar"

// CertsLayout says where a component expects its certificates and which
// configuration keys name them.
type CertsLayout struct {
	Component  shared.Component
	ConfigFile string
	CertsDir   string
	// Flattened keys are single dotted YAML keys (opensearch style) rather
	// than nested paths.
	Flattened bool
	KeyKey    string
	CertKey   string
	CAKey     string
	Admin     bool
}

// Layouts are the certificate layouts of the packaged components.
var Layouts = []CertsLayout{
	{
		Component:  shared.ComponentIndexer,
		ConfigFile: "/etc/wazuh-indexer/opensearch.yml",
		CertsDir:   "/etc/wazuh-indexer/certs",
		Flattened:  true,
		KeyKey:     "plugins.security.ssl.http.pemkey_filepath",
		CertKey:    "plugins.security.ssl.http.pemcert_filepath",
		CAKey:      "plugins.security.ssl.http.pemtrustedcas_filepath",
		Admin:      true,
	},
	{
		Component:  shared.ComponentServer,
		ConfigFile: "/etc/wazuh-server/wazuh-server.yml",
		CertsDir:   "/etc/wazuh-server/certs",
		KeyKey:     "indexer.ssl.key",
		CertKey:    "indexer.ssl.certificate",
		CAKey:      "indexer.ssl.certificate_authorities[0]",
		Admin:      true,
	},
	{
		Component:  shared.ComponentDashboard,
		ConfigFile: "/etc/wazuh-dashboard/opensearch_dashboards.yml",
		CertsDir:   "/etc/wazuh-dashboard/certs",
		Flattened:  true,
		KeyKey:     "server.ssl.key",
		CertKey:    "server.ssl.certificate",
		CAKey:      "opensearch.ssl.certificateAuthorities",
	},
}

// CertNames are the file names a component's configuration expects.
type CertNames struct {
	Key  string
	Cert string
	CA   string
}

// CertsManager generates the certificates with the certificates tool and
// distributes them to each component.
type CertsManager struct {
	Runner     execute.Runner
	CertsDir   string
	ToolPath   string
	ConfigPath string
	Layouts    []CertsLayout
}

// Generate fills in the tool configuration, runs the tool and installs the
// certificates under the names each component is configured with.
func (m *CertsManager) Generate(rc *vm_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)
	archive := path.Join(m.CertsDir, certsArchive)
	generated := path.Join(m.CertsDir, "wazuh-certificates")

	if err := m.Runner.Run(rc.Ctx, m.nodesCommand()); err != nil {
		return err
	}
	if err := m.Runner.Run(rc.Ctx,
		"sudo bash "+execute.Quote(m.ToolPath)+" -A",
		fmt.Sprintf("sudo tar -cf %s -C %s/ .", execute.Quote(archive), execute.Quote(generated)),
		"sudo rm -rf "+execute.Quote(generated),
	); err != nil {
		return err
	}

	for _, layout := range m.Layouts {
		names, err := m.configuredNames(rc, layout)
		if err != nil {
			return err
		}
		log.Info("Installing certificates",
			zap.String("component", string(layout.Component)),
			zap.String("dir", layout.CertsDir),
			zap.String("cert", names.Cert))
		if err := m.Runner.Run(rc.Ctx, installCommands(layout, names, archive)...); err != nil {
			return err
		}
	}
	return nil
}

// nodesCommand points every node of the tool configuration at localhost.
func (m *CertsManager) nodesCommand() string {
	var parts []string
	for _, node := range []struct {
		kind string
		c    shared.Component
	}{
		{"indexer", shared.ComponentIndexer},
		{"server", shared.ComponentServer},
		{"dashboard", shared.ComponentDashboard},
	} {
		parts = append(parts,
			fmt.Sprintf(`.nodes.%s[0].name = "%s"`, node.kind, node.c),
			fmt.Sprintf(`.nodes.%s[0].ip = "127.0.0.1"`, node.kind),
			fmt.Sprintf(`.nodes.%s[0].ip style="double"`, node.kind),
		)
	}
	return "sudo yq -i " + execute.Quote(strings.Join(parts, " | ")) + " " + execute.Quote(m.ConfigPath)
}

var yqListWrapper = regexp.MustCompile(`^\["(.*)"\]$`)

func (m *CertsManager) configuredNames(rc *vm_io.RuntimeContext, l CertsLayout) (CertNames, error) {
	read := func(key string) (string, error) {
		query := "." + key
		if l.Flattened {
			query = fmt.Sprintf(`.["%s"]`, key)
		}
		cmd := "sudo yq " + execute.Quote(query) + " " + execute.Quote(l.ConfigFile)
		res, err := m.Runner.Output(rc.Ctx, cmd)
		if err != nil {
			return "", err
		}
		if res.ExitCode != 0 {
			return "", vm_err.NewCommandExecutionError(cmd, res.ExitCode, execute.ExtractSummary(res.Stderr, 2))
		}
		value := yqListWrapper.ReplaceAllString(strings.TrimSpace(res.Stdout), "$1")
		value = strings.TrimSpace(value)
		if value == "" || value == "null" {
			return "", vm_err.NewConfigurationError(
				fmt.Sprintf("%s does not set %s", l.ConfigFile, key), nil)
		}
		return path.Base(value), nil
	}

	var names CertNames
	var err error
	if names.Key, err = read(l.KeyKey); err != nil {
		return names, err
	}
	if names.Cert, err = read(l.CertKey); err != nil {
		return names, err
	}
	if names.CA, err = read(l.CAKey); err != nil {
		return names, err
	}
	return names, nil
}

// installCommands extracts the generated files of l.Component into its
// certificates directory and renames them to the configured names.
func installCommands(l CertsLayout, names CertNames, archive string) []string {
	c := string(l.Component)
	defaults := CertNames{Key: c + "-key.pem", Cert: c + ".pem", CA: "root-ca.pem"}
	members := []string{defaults.Cert, defaults.Key}
	if l.Admin {
		members = append(members, "admin.pem", "admin-key.pem")
	}
	members = append(members, defaults.CA)

	dir := l.CertsDir
	cmds := []string{
		"sudo mkdir -p " + dir,
		fmt.Sprintf("sudo tar -xf %s -C %s ./%s", archive, dir, strings.Join(members, " ./")),
	}
	for _, rename := range [][2]string{
		{defaults.Cert, names.Cert},
		{defaults.Key, names.Key},
		{defaults.CA, names.CA},
	} {
		if rename[0] == rename[1] {
			continue
		}
		cmds = append(cmds, fmt.Sprintf("sudo mv -n %s/%s %s/%s", dir, rename[0], dir, execute.Quote(rename[1])))
	}
	owner := l.Component.ServiceName()
	return append(cmds, fmt.Sprintf("sudo chown -R %s:%s %s/", owner, owner, dir))
}
