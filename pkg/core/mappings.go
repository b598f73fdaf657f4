// pkg/core/mappings.go

package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"gopkg.in/yaml.v3"
)

// Replace pairs yq paths with the values they are set to.
type Replace struct {
	Keys   []string `yaml:"keys"`
	Values []string `yaml:"values"`
}

// FileMapping is the set of edits applied to one configuration file.
type FileMapping struct {
	Path    string   `yaml:"path"`
	Replace *Replace `yaml:"replace"`
}

// Mappings lists the configuration file edits of every component.
type Mappings map[shared.Component][]FileMapping

// LoadMappings reads and checks the configuration mappings file.
func LoadMappings(path string) (Mappings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vm_err.NewConfigurationError("cannot read configuration mappings "+path, err)
	}
	var m Mappings
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, vm_err.NewConfigurationError("configuration mappings "+path+" is not valid YAML", err)
	}
	for c, files := range m {
		for i, f := range files {
			if f.Path == "" || f.Replace == nil {
				return nil, vm_err.NewConfigurationError(
					fmt.Sprintf("%s mapping %d in %s needs both 'path' and 'replace'", c, i, path), nil)
			}
			if len(f.Replace.Keys) != len(f.Replace.Values) {
				return nil, vm_err.NewConfigurationError(
					fmt.Sprintf("%s mapping for %s has %d keys but %d values", c, f.Path, len(f.Replace.Keys), len(f.Replace.Values)), nil)
			}
		}
	}
	return m, nil
}

// Commands returns the yq edits for component c, in file order.
func (m Mappings) Commands(c shared.Component) []string {
	var cmds []string
	for _, f := range m[c] {
		for i, key := range f.Replace.Keys {
			cmds = append(cmds, YQSet(key, f.Replace.Values[i], f.Path))
		}
	}
	return cmds
}

// YQSet builds an in-place yq assignment of value to key in file. Values
// carrying double quotes are written as double-quoted YAML strings.
func YQSet(key, value, file string) string {
	bare := strings.ReplaceAll(strings.ReplaceAll(value, `\"`, ""), `"`, "")
	expr := fmt.Sprintf(`%s = "%s"`, key, bare)
	if strings.Contains(value, `"`) {
		expr += fmt.Sprintf(` | %s style="double"`, key)
	}
	return "sudo yq -i " + execute.Quote(expr) + " " + execute.Quote(file)
}
