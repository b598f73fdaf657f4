// pkg/ami/configurer.go
//
// Turns a freshly launched Amazon Linux instance into the Wazuh AMI base:
// the service user replaces ec2-user and cloud-init is told to keep it.

package ami

import (
	"fmt"
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/config"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/pipeline"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Configurer customizes the instance named by an inventory.
type Configurer struct {
	Dial execute.Dialer

	InstanceUser  string
	User          string
	Hostname      string
	CloudConfig   string
	Banner        string
	MotdDir       string
	DefaultBanner string
	SudoersFile   string
}

// NewConfigurer wires the configurer from cfg.
func NewConfigurer(cfg *config.Config, dial execute.Dialer) *Configurer {
	a := cfg.AMI
	return &Configurer{
		Dial:          dial,
		InstanceUser:  a.InstanceUser,
		User:          shared.ServiceUser,
		Hostname:      shared.ServiceHostname,
		CloudConfig:   a.CloudConfig,
		Banner:        cfg.Resolve(a.Banner),
		MotdDir:       a.MotdDir,
		DefaultBanner: a.DefaultBanner,
		SudoersFile:   a.SudoersFile,
	}
}

// Configure creates the service user as the inventory user, then reconnects
// as the service user to customize the instance.
func (c *Configurer) Configure(rc *vm_io.RuntimeContext, inventoryPath string) error {
	host, err := inventory.Load(inventoryPath)
	if err != nil {
		return err
	}
	host, err = c.CreateServiceUser(rc, host)
	if err != nil {
		return err
	}
	return c.Customize(rc, host)
}

// CreateServiceUser adds the service user with the instance user's SSH keys
// and sudo rights. It returns host switched to the new user.
func (c *Configurer) CreateServiceUser(rc *vm_io.RuntimeContext, host *inventory.Host) (*inventory.Host, error) {
	log := otelzap.Ctx(rc.Ctx)
	log.Info("Creating service user", zap.String("user", c.User), zap.String("host", host.Addr()))

	err := c.withSession(rc, host, func(r execute.Runner) error {
		home := "/home/" + c.User
		keys := home + "/.ssh/authorized_keys"
		owner := c.User + ":" + c.User
		if err := r.Run(rc.Ctx,
			fmt.Sprintf("id -u %s >/dev/null 2>&1 || sudo adduser %s", c.User, c.User),
			"sudo mkdir -p "+home+"/.ssh",
			"sudo chown -R "+owner+" "+home+"/.ssh",
			"sudo chmod 700 "+home+"/.ssh",
			"sudo touch "+keys,
			"sudo chmod 600 "+keys,
			fmt.Sprintf("sudo cp /home/%s/.ssh/authorized_keys %s", c.InstanceUser, keys),
			"sudo chown "+owner+" "+keys,
		); err != nil {
			return cerr.Wrapf(err, "create user %s", c.User)
		}
		return execute.ModifyFile(rc.Ctx, r, c.SudoersFile, []execute.Replacement{
			{Pattern: c.InstanceUser, With: c.User},
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info("Service user created", zap.String("user", c.User))
	return host.WithUser(c.User), nil
}

// Customize removes the instance user and applies the image identity. host
// must already connect as the service user.
func (c *Configurer) Customize(rc *vm_io.RuntimeContext, host *inventory.Host) error {
	if host.User != c.User {
		return vm_err.NewConfigurationError(
			fmt.Sprintf("Before customizing the AMI, the Wazuh user %q must be created", c.User), nil,
			"Run the ami mode against a fresh instance")
	}
	return c.withSession(rc, host, func(r execute.Runner) error {
		steps := []pipeline.Step[execute.Runner]{
			{Name: "remove-instance-user", Run: c.removeInstanceUser},
			{Name: "cloud-init", Run: c.configureCloudInit},
			{Name: "hostname", Run: func(rc *vm_io.RuntimeContext, r execute.Runner) (execute.Runner, error) {
				return r, r.Run(rc.Ctx, "sudo hostnamectl set-hostname "+c.Hostname)
			}},
			{Name: "banner", Run: c.installBanner},
		}
		_, err := pipeline.Run(rc, "ami-customize", steps, r)
		return err
	})
}

func (c *Configurer) withSession(rc *vm_io.RuntimeContext, host *inventory.Host, fn func(execute.Runner) error) (err error) {
	session, err := c.Dial(rc.Ctx, host)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil && err == nil {
			err = cerr.Wrap(closeErr, "close session")
		}
	}()
	return fn(session)
}

func (c *Configurer) removeInstanceUser(rc *vm_io.RuntimeContext, r execute.Runner) (execute.Runner, error) {
	// pkill exits 1 when the user has no processes left.
	res, err := r.Output(rc.Ctx, "sudo pkill -u "+c.InstanceUser)
	if err != nil {
		return r, err
	}
	if res.ExitCode > 1 {
		return r, vm_err.NewCommandExecutionError("sudo pkill -u "+c.InstanceUser, res.ExitCode, res.Stderr)
	}
	return r, r.Run(rc.Ctx, "sudo userdel -r "+c.InstanceUser)
}

func (c *Configurer) configureCloudInit(rc *vm_io.RuntimeContext, r execute.Runner) (execute.Runner, error) {
	err := execute.ModifyFile(rc.Ctx, r, c.CloudConfig, []execute.Replacement{
		{Pattern: `gecos: .*`, With: "gecos: Wazuh AMI User"},
		{Pattern: `name: .*`, With: "name: " + c.User},
		{Pattern: `- set_hostname\n`, With: ""},
		{Pattern: `\s*- update_hostname`, With: "\n - preserve_hostname: true"},
	})
	if err != nil {
		return r, err
	}
	return r, r.Run(rc.Ctx,
		"sudo cloud-init clean",
		"sudo cloud-init init",
		"sudo cloud-init modules --mode=config",
		"sudo cloud-init modules --mode=final",
	)
}

func (c *Configurer) installBanner(rc *vm_io.RuntimeContext, r execute.Runner) (execute.Runner, error) {
	dest := filepath.Join(c.MotdDir, filepath.Base(c.Banner))
	if err := execute.InstallFile(rc.Ctx, r, c.Banner, dest, 0644); err != nil {
		return r, err
	}
	return r, r.Run(rc.Ctx, "sudo rm -f "+c.DefaultBanner)
}
