// pkg/cli/cli.go
//
// Flag helpers shared by the wazuh-vms commands. Flags are declared on cobra,
// bound into a viper instance, and read back through viper so that
// WAZUH_VMS_* environment variables and the optional config file share one
// precedence chain: flag > env > config file > default.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AddStringFlag adds a persistent string flag and optionally marks it required.
func AddStringFlag(cmd *cobra.Command, name, shorthand, def, help string, required bool) {
	cmd.PersistentFlags().StringP(name, shorthand, def, help)
	if required {
		if err := cmd.MarkPersistentFlagRequired(name); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to mark flag %s as required: %v\n", name, err)
		}
	}
}

// BindFlagsToViper binds every flag visible to cmd to a Viper instance.
func BindFlagsToViper(cmd *cobra.Command, v *viper.Viper) error {
	var result error
	bind := func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			result = multierror.Append(result, err)
		}
	}
	cmd.PersistentFlags().VisitAll(bind)
	cmd.Flags().VisitAll(bind)
	return result
}

// SetViperEnvPrefix lets Viper read env with prefix. Dashes and the dots of
// nested keys both map to underscores, so virtualbox.base_url is read from
// PREFIX_VIRTUALBOX_BASE_URL.
func SetViperEnvPrefix(v *viper.Viper, prefix string) {
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
}
