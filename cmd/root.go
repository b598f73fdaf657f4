/* cmd/root.go */

package cmd

import (
	"net/http"
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/cli"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/config"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/httpclient"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/orchestrator"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_cli"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag names. They double as viper keys, so WAZUH_VMS_PACKAGES_URL_PATH
// sets --packages-url-path.
const (
	flagExecute         = "execute"
	flagInventory       = orchestrator.FieldInventory
	flagPackagesURLPath = orchestrator.FieldPackagesURLPath
	flagPackageType     = "package-type"
	flagArch            = "arch"
	flagDependencies    = "dependencies"
	flagComponent       = "component"
	flagBaseDir         = "base-dir"
	flagKnownHosts      = "known-hosts"
)

// RootCmd provisions and configures a Wazuh AMI or OVA.
var RootCmd = &cobra.Command{
	Use:   shared.AppID,
	Short: "Provision and configure Wazuh virtual machine images",
	Long: `wazuh-vms installs the Wazuh components on a build host and turns it into
an AMI or OVA image. --execute selects which stages run:

  provisioner          download the certificates tool and install the packages
  core-configurer      apply the configuration, create certificates, start services
  ami-configurer       create the service user and customize the instance
  ova-pre-configurer   build the base box and boot the OVA build VM
  ova-post-configurer  provision and configure inside the VM, then finalize the OVA
  all-ami              ami-configurer, provisioner and core-configurer in turn`,
	Version:       shared.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          vm_cli.Wrap(runRoot),
}

func init() {
	RootCmd.Flags().StringP(flagExecute, "e", "", "Stages to run, see above")
	if err := RootCmd.MarkFlagRequired(flagExecute); err != nil {
		panic(err)
	}
	cli.AddStringFlag(RootCmd, flagInventory, "i", "", "Ansible-style inventory of the target host", false)
	cli.AddStringFlag(RootCmd, flagPackagesURLPath, "p", "", "YAML file mapping component packages to their URLs", false)
	cli.AddStringFlag(RootCmd, flagPackageType, "", string(shared.PackageRPM), "Package type: rpm or deb", false)
	cli.AddStringFlag(RootCmd, flagArch, "", string(shared.ArchX8664), "Architecture: x86_64, amd64, arm64 or aarch64", false)
	cli.AddStringFlag(RootCmd, flagDependencies, "d", config.DefaultDependenciesFile, "YAML file listing the system dependencies of each component, relative to --base-dir", false)
	cli.AddStringFlag(RootCmd, flagComponent, "c", string(shared.ComponentAll), "Component: wazuh_indexer, wazuh_server, wazuh_dashboard or all", false)
	cli.AddStringFlag(RootCmd, config.ConfigFileKey, "", "", "Optional YAML file overriding the built-in configuration", false)
	cli.AddStringFlag(RootCmd, flagBaseDir, "", ".", "Directory holding the bundled static assets", false)
	cli.AddStringFlag(RootCmd, flagKnownHosts, "", "", "known_hosts file used to verify inventory hosts", false)

	RootCmd.AddCommand(GuestSetupCmd)
}

// Execute runs the root command and returns its error for main to report.
func Execute() error {
	defer func() {
		_ = logger.Sync()
	}()
	return RootCmd.Execute()
}

func runRoot(rc *vm_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	v, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mode, err := orchestrator.ParseMode(v.GetString(flagExecute))
	if err != nil {
		return err
	}
	client, err := newHTTPClient(cfg)
	if err != nil {
		return err
	}

	env := &Environment{
		Config: cfg,
		Client: client,
		Dial:   execute.NewDialer(execute.SSHOptions{KnownHostsFile: v.GetString(flagKnownHosts)}),
		Local:  execute.NewLocal(cfg.BaseDir),
	}
	return env.Dispatcher().Run(rc, mode, requestFrom(v, cfg))
}

// loadConfig binds the flags of cmd and resolves the configuration.
func loadConfig(cmd *cobra.Command) (*viper.Viper, *config.Config, error) {
	v := viper.New()
	if err := cli.BindFlagsToViper(cmd, v); err != nil {
		return nil, nil, vm_err.NewInternalError("cannot bind flags", err)
	}
	cfg, err := config.Load(v, v.GetString(flagBaseDir))
	if err != nil {
		return nil, nil, err
	}
	return v, cfg, nil
}

func requestFrom(v *viper.Viper, cfg *config.Config) orchestrator.Request {
	return orchestrator.Request{
		Inventory:       absPath(v.GetString(flagInventory)),
		PackagesURLPath: absPath(v.GetString(flagPackagesURLPath)),
		PackageType:     shared.PackageType(v.GetString(flagPackageType)),
		Arch:            shared.Arch(v.GetString(flagArch)),
		Dependencies:    cfg.Resolve(v.GetString(flagDependencies)),
		Component:       shared.Component(v.GetString(flagComponent)),
	}
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func newHTTPClient(cfg *config.Config) (*http.Client, error) {
	client, err := httpclient.New(httpclient.Config{
		Timeout:   cfg.HTTPTimeout,
		UserAgent: shared.AppID + "/" + shared.Version,
	})
	if err != nil {
		return nil, vm_err.NewConfigurationError("cannot build HTTP client", err)
	}
	return client, nil
}
