package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `all:
  hosts:
    wazuh-ami:
      ansible_host: 10.0.0.5
      ansible_user: ec2-user
      ansible_port: 2222
      ansible_ssh_private_key_file: /keys/ami.pem
      ansible_ssh_common_args: -o StrictHostKeyChecking=no
    second:
      ansible_host: 10.0.0.6
      ansible_user: ec2-user
`

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0640))
	return path
}

func TestLoadFirstHost(t *testing.T) {
	h, err := Load(writeInventory(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "wazuh-ami", h.Name)
	assert.Equal(t, "10.0.0.5", h.Address)
	assert.Equal(t, "ec2-user", h.User)
	assert.Equal(t, "10.0.0.5:2222", h.Addr())
	assert.Equal(t, "/keys/ami.pem", h.PrivateKeyFile)
	assert.Equal(t, "ssh", h.Connection)
}

func TestLoadDefaultsPort(t *testing.T) {
	h, err := Load(writeInventory(t, "all:\n  hosts:\n    only:\n      ansible_host: example\n      ansible_user: root\n"))
	require.NoError(t, err)
	assert.Equal(t, "example:22", h.Addr())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing all", content: "hosts: {}\n"},
		{name: "missing hosts", content: "all:\n  vars: {}\n"},
		{name: "no hosts", content: "all:\n  hosts: {}\n"},
		{name: "missing address", content: "all:\n  hosts:\n    h:\n      ansible_user: root\n"},
		{name: "not yaml", content: "all: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeInventory(t, tt.content))
			require.Error(t, err)
			assert.True(t, vm_err.IsConfiguration(err))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, vm_err.IsConfiguration(err))
	assert.Contains(t, err.Error(), "inventory file not found")
}

func TestChangeUserRewritesEveryHost(t *testing.T) {
	path := writeInventory(t, sample)

	require.NoError(t, ChangeUser(path, "wazuh-user"))

	h, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wazuh-user", h.User)
	assert.Equal(t, 2222, h.Port, "other fields are preserved")
	assert.Equal(t, "-o StrictHostKeyChecking=no", h.CommonArgs)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ec2-user")
	assert.Contains(t, string(data), "second:")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}

func TestWithUserCopies(t *testing.T) {
	h := &Host{Address: "a", User: "ec2-user"}
	other := h.WithUser("wazuh-user")
	assert.Equal(t, "ec2-user", h.User)
	assert.Equal(t, "wazuh-user", other.User)
}
