package ami

import (
	"context"
	"os"
	"testing"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/testutil"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cloudCfg = `users:
 - default
system_info:
  default_user:
    name: ec2-user
    gecos: EC2 Default User
cloud_init_modules:
 - set_hostname
 - update_hostname
 - update_etc_hosts
`

const inventoryYAML = `all:
  hosts:
    wazuh-ami:
      ansible_host: 10.0.0.5
      ansible_user: ec2-user
      ansible_ssh_private_key_file: ~/.ssh/ami.pem
`

// hosts hands out one FakeRunner per connecting user.
type hosts struct {
	sessions map[string]*testutil.FakeRunner
	dialed   []string
}

func (h *hosts) dial(_ context.Context, host *inventory.Host) (execute.Session, error) {
	h.dialed = append(h.dialed, host.User)
	return h.sessions[host.User], nil
}

func newTestConfigurer(t *testing.T) (*Configurer, *hosts) {
	t.Helper()
	h := &hosts{sessions: map[string]*testutil.FakeRunner{
		"ec2-user": testutil.NewFakeRunner().
			Respond("sudo cat /etc/sudoers.d/90-cloud-init-users", "ec2-user ALL=(ALL) NOPASSWD:ALL\n").
			Respond("sudo stat -c %a /etc/sudoers.d/90-cloud-init-users", "440\n"),
		"wazuh-user": testutil.NewFakeRunner().
			Respond("sudo cat /etc/cloud/cloud.cfg", cloudCfg),
	}}
	banner := testutil.WriteFile(t, t.TempDir(), "20-wazuh-banner", "WAZUH\n")
	return &Configurer{
		Dial:          h.dial,
		InstanceUser:  "ec2-user",
		User:          "wazuh-user",
		Hostname:      "wazuh-server",
		CloudConfig:   "/etc/cloud/cloud.cfg",
		Banner:        banner,
		MotdDir:       "/usr/lib/motd.d",
		DefaultBanner: "/usr/lib/motd.d/30-banner",
		SudoersFile:   "/etc/sudoers.d/90-cloud-init-users",
	}, h
}

func TestConfigureSwitchesToServiceUser(t *testing.T) {
	c, h := newTestConfigurer(t)
	inv := testutil.WriteFile(t, t.TempDir(), "inventory.yaml", inventoryYAML)

	require.NoError(t, c.Configure(testutil.Context(t), inv))
	assert.Equal(t, []string{"ec2-user", "wazuh-user"}, h.dialed)

	initial := h.sessions["ec2-user"]
	assert.Equal(t, 1, initial.Closed())
	assert.True(t, initial.Ran("sudo cp /home/ec2-user/.ssh/authorized_keys /home/wazuh-user/.ssh/authorized_keys"))
	sudoers, ok := initial.File("/etc/sudoers.d/90-cloud-init-users")
	require.True(t, ok)
	assert.Equal(t, "wazuh-user ALL=(ALL) NOPASSWD:ALL\n", sudoers.Content)
	assert.Equal(t, os.FileMode(0440), sudoers.Mode)
	assert.False(t, initial.Ran("userdel"))

	service := h.sessions["wazuh-user"]
	assert.Equal(t, 1, service.Closed())
	assert.Less(t, service.Index("sudo pkill -u ec2-user"), service.Index("sudo userdel -r ec2-user"))
	assert.Less(t, service.Index("sudo userdel"), service.Index("sudo cloud-init clean"))
	assert.Less(t, service.Index("sudo cloud-init modules --mode=final"), service.Index("hostnamectl set-hostname wazuh-server"))

	cfg, ok := service.File("/etc/cloud/cloud.cfg")
	require.True(t, ok)
	assert.Contains(t, cfg.Content, "name: wazuh-user\n")
	assert.Contains(t, cfg.Content, "gecos: Wazuh AMI User\n")
	assert.Contains(t, cfg.Content, "cloud_init_modules:\n - preserve_hostname: true\n - update_etc_hosts\n")
	assert.NotContains(t, cfg.Content, "set_hostname")

	banner, ok := service.File("/usr/lib/motd.d/20-wazuh-banner")
	require.True(t, ok)
	assert.Equal(t, "WAZUH\n", banner.Content)
	assert.True(t, service.Ran("sudo rm -f /usr/lib/motd.d/30-banner"))
}

func TestCustomizeRequiresServiceUser(t *testing.T) {
	c, h := newTestConfigurer(t)

	err := c.Customize(testutil.Context(t), &inventory.Host{Address: "10.0.0.5", User: "ec2-user"})
	require.Error(t, err)
	assert.True(t, vm_err.IsConfiguration(err))
	assert.Contains(t, err.Error(), `the Wazuh user "wazuh-user" must be created`)
	assert.Empty(t, h.dialed)
}

func TestCustomizeToleratesIdleInstanceUser(t *testing.T) {
	c, h := newTestConfigurer(t)
	h.sessions["wazuh-user"].FailOn("pkill", 1)

	require.NoError(t, c.Customize(testutil.Context(t), &inventory.Host{Address: "10.0.0.5", User: "wazuh-user"}))
	assert.True(t, h.sessions["wazuh-user"].Ran("sudo userdel -r ec2-user"))
}

func TestCreateServiceUserFailure(t *testing.T) {
	c, h := newTestConfigurer(t)
	h.sessions["ec2-user"].FailOn("sudo cp", 1)

	_, err := c.CreateServiceUser(testutil.Context(t), &inventory.Host{Address: "10.0.0.5", User: "ec2-user"})
	require.Error(t, err)
	assert.True(t, vm_err.IsCommandExecution(err))
	assert.Equal(t, 1, h.sessions["ec2-user"].Closed())
	_, wrote := h.sessions["ec2-user"].File("/etc/sudoers.d/90-cloud-init-users")
	assert.False(t, wrote)
}

func TestConfigureMissingInventory(t *testing.T) {
	c, h := newTestConfigurer(t)

	err := c.Configure(testutil.Context(t), "/nonexistent/inventory.yaml")
	require.Error(t, err)
	assert.True(t, vm_err.IsConfiguration(err))
	assert.Empty(t, h.dialed)
}
