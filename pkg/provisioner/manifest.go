// pkg/provisioner/manifest.go
//
// The packages URL file is a flat YAML map produced by the release pipeline,
// for example:
//
//	wazuh_indexer_x86_64_rpm: https://packages.wazuh.com/.../wazuh-indexer-5.0.0-1.x86_64.rpm
//	wazuh_certs_tool: https://packages.wazuh.com/.../wazuh-certs-tool-5.0.sh
//	wazuh_config: https://packages.wazuh.com/.../config.yml
//
// Keys only need to contain the component name; architecture and package
// type are read from the URL itself.

package provisioner

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"gopkg.in/yaml.v3"
)

// Arches lists the architectures recognised in package URLs, in match order.
var Arches = []shared.Arch{shared.ArchX8664, shared.ArchAMD64, shared.ArchARM64, shared.ArchAArch64}

// PackageURLs indexes package URLs by component, package type and arch.
type PackageURLs map[shared.Component]map[shared.PackageType]map[shared.Arch]string

// CertsURLs are the certificates tool and its configuration template.
type CertsURLs struct {
	Tool   string
	Config string
}

// Manifest is the parsed packages URL file.
type Manifest struct {
	Packages PackageURLs
	Certs    CertsURLs
}

// LoadManifest reads the packages URL file at path.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := readFlatMap(path)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := &Manifest{Packages: PackageURLs{}}
	for _, key := range keys {
		u := raw[key]
		switch {
		case strings.Contains(key, "certs_tool"):
			m.Certs.Tool = u
			continue
		case strings.Contains(key, "config"):
			m.Certs.Config = u
			continue
		}
		for _, c := range shared.Components {
			if strings.Contains(key, string(c)) {
				m.Packages.add(c, u)
			}
		}
	}
	return m, nil
}

func (p PackageURLs) add(c shared.Component, u string) {
	var arch shared.Arch
	for _, a := range Arches {
		if strings.Contains(u, string(a)) {
			arch = a
		}
	}
	if arch == "" {
		return
	}
	for _, t := range []shared.PackageType{shared.PackageRPM, shared.PackageDEB} {
		if !strings.Contains(u, "."+string(t)) {
			continue
		}
		if p[c] == nil {
			p[c] = map[shared.PackageType]map[shared.Arch]string{}
		}
		if p[c][t] == nil {
			p[c][t] = map[shared.Arch]string{}
		}
		p[c][t][arch] = u
	}
}

// URL returns the package of c for the package type and arch.
func (p PackageURLs) URL(c shared.Component, t shared.PackageType, arch shared.Arch) (string, error) {
	byType, ok := p[c]
	if !ok {
		return "", vm_err.NewConfigurationError(fmt.Sprintf("packages for %s not found", c), nil)
	}
	byArch, ok := byType[t]
	if !ok {
		return "", vm_err.NewConfigurationError(fmt.Sprintf("packages for %s with %s type not found", c, t), nil)
	}
	u, ok := byArch[arch]
	if !ok {
		return "", vm_err.NewConfigurationError(fmt.Sprintf("arch %s not found in %s %s packages", arch, c, t), nil)
	}
	return u, nil
}

// Dependencies lists the system packages each component needs, per package
// manager (yum or apt).
type Dependencies map[shared.Component]map[string][]string

// LoadDependencies reads the dependencies file at path.
func LoadDependencies(path string) (Dependencies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vm_err.NewConfigurationError("cannot read dependencies file "+path, err,
			"Pass an existing file with --dependencies")
	}
	deps := Dependencies{}
	if err := yaml.Unmarshal(data, &deps); err != nil {
		return nil, vm_err.NewConfigurationError("dependencies file "+path+" is not valid YAML", err)
	}
	return deps, nil
}

// For returns the dependencies of c. A component missing from the file is an
// error; a component without entries for the package manager has none.
func (d Dependencies) For(c shared.Component, t shared.PackageType) ([]string, error) {
	byManager, ok := d[c]
	if !ok {
		return nil, vm_err.NewConfigurationError(fmt.Sprintf("dependencies for %s not found", c), nil)
	}
	return byManager[t.PackageManager()], nil
}

// CheckURL accepts absolute http(s) URLs served by one of the allowed hosts.
func CheckURL(raw string, allowed []string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return vm_err.NewConfigurationError(fmt.Sprintf("URL %q has an invalid format", raw), err)
	}
	for _, host := range allowed {
		if u.Hostname() == host {
			return nil
		}
	}
	return vm_err.NewConfigurationError(fmt.Sprintf("URL %q is not for Wazuh packages", raw), nil,
		"Allowed hosts: "+strings.Join(allowed, ", "))
}

func readFlatMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vm_err.NewConfigurationError("cannot read packages URL file "+path, err,
			"Pass an existing file with --packages-url-path")
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, vm_err.NewConfigurationError("packages URL file "+path+" is not a map of URLs", err)
	}
	if len(raw) == 0 {
		return nil, vm_err.NewConfigurationError("no content found in packages URL file "+path, nil)
	}
	return raw, nil
}
