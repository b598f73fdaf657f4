/* cmd/guest_setup.go */

package cmd

import (
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/ova"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_cli"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/spf13/cobra"
)

// GuestSetupCmd prepares the base image from inside its chroot. The base box
// builder copies the binary into the image and runs it there.
var GuestSetupCmd = &cobra.Command{
	Use:    ova.GuestSetupCommand,
	Short:  "Prepare the mounted base image for Vagrant (runs inside the chroot)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: vm_cli.Wrap(func(rc *vm_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := newHTTPClient(cfg)
		if err != nil {
			return err
		}
		return ova.NewGuestSetup(cfg, execute.NewLocal("/"), client).Run(rc)
	}),
}
