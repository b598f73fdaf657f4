// pkg/inventory/inventory.go
//
// Minimal reader and single-field writer for Ansible-style YAML inventories:
//
//	all:
//	  hosts:
//	    wazuh-ami:
//	      ansible_host: 10.0.0.5
//	      ansible_user: ec2-user
//	      ansible_port: 22
//	      ansible_ssh_private_key_file: ~/.ssh/key.pem

package inventory

import (
	"bytes"
	"os"
	"strconv"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	cerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPort is used when a host omits ansible_port.
const DefaultPort = 22

// Host is the connection data of one inventory host.
type Host struct {
	Name           string `yaml:"-"`
	Address        string `yaml:"ansible_host" validate:"required"`
	User           string `yaml:"ansible_user" validate:"required"`
	Password       string `yaml:"ansible_password,omitempty"`
	Port           int    `yaml:"ansible_port,omitempty" validate:"gte=0,lte=65535"`
	Connection     string `yaml:"ansible_connection,omitempty"`
	PrivateKeyFile string `yaml:"ansible_ssh_private_key_file,omitempty"`
	CommonArgs     string `yaml:"ansible_ssh_common_args,omitempty"`
}

// Addr is host:port for dialing.
func (h *Host) Addr() string {
	port := h.Port
	if port == 0 {
		port = DefaultPort
	}
	return h.Address + ":" + strconv.Itoa(port)
}

// WithUser returns a copy of h connecting as user.
func (h Host) WithUser(user string) *Host {
	h.User = user
	return &h
}

// Load returns the first host under all.hosts, in document order.
func Load(path string) (*Host, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	hosts, err := hostsNode(doc, path)
	if err != nil {
		return nil, err
	}
	if len(hosts.Content) < 2 {
		return nil, vm_err.NewConfigurationError("inventory "+path+" lists no hosts", nil)
	}

	var h Host
	if err := hosts.Content[1].Decode(&h); err != nil {
		return nil, vm_err.NewConfigurationError("invalid host entry in inventory "+path, err)
	}
	h.Name = hosts.Content[0].Value
	if h.Port == 0 {
		h.Port = DefaultPort
	}
	if h.Connection == "" {
		h.Connection = "ssh"
	}
	if err := validator.New().Struct(&h); err != nil {
		return nil, vm_err.NewConfigurationError("incomplete host "+h.Name+" in inventory "+path, err)
	}
	return &h, nil
}

// ChangeUser rewrites ansible_user of every host to user, leaving the rest of
// the document untouched.
func ChangeUser(path, user string) error {
	doc, err := readDocument(path)
	if err != nil {
		return err
	}
	hosts, err := hostsNode(doc, path)
	if err != nil {
		return err
	}

	for i := 1; i < len(hosts.Content); i += 2 {
		entry := hosts.Content[i]
		if entry.Kind != yaml.MappingNode {
			continue
		}
		if value := mappingValue(entry, "ansible_user"); value != nil {
			value.Value = user
			value.Tag = "!!str"
			value.Style = 0
			continue
		}
		entry.Content = append(entry.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "ansible_user"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: user},
		)
	}

	info, err := os.Stat(path)
	if err != nil {
		return cerr.Wrapf(err, "stat inventory %s", path)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return cerr.Wrap(err, "encode inventory")
	}
	if err := enc.Close(); err != nil {
		return cerr.Wrap(err, "flush inventory encoder")
	}
	if err := os.WriteFile(path, buf.Bytes(), info.Mode().Perm()); err != nil {
		return cerr.Wrapf(err, "write inventory %s", path)
	}
	return nil
}

func readDocument(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vm_err.NewConfigurationError("inventory file not found at "+path, err,
				"Pass an existing inventory with --inventory")
		}
		return nil, cerr.Wrapf(err, "read inventory %s", path)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, vm_err.NewConfigurationError("inventory "+path+" is not valid YAML", err)
	}
	return &doc, nil
}

func hostsNode(doc *yaml.Node, path string) (*yaml.Node, error) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, vm_err.NewConfigurationError("inventory "+path+" is empty", nil)
	}
	all := mappingValue(doc.Content[0], "all")
	if all == nil {
		return nil, vm_err.NewConfigurationError("invalid inventory format: 'all' section is missing in "+path, nil)
	}
	hosts := mappingValue(all, "hosts")
	if hosts == nil || hosts.Kind != yaml.MappingNode {
		return nil, vm_err.NewConfigurationError("invalid inventory format: 'hosts' section is missing in "+path, nil)
	}
	return hosts, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
