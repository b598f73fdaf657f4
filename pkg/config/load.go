// pkg/config/load.go

package config

import (
	"os"
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/cli"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	cerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ConfigFileKey is the viper key (and flag name) of the optional YAML override file.
const ConfigFileKey = "config"

// Load resolves Config from defaults, an optional .env in baseDir, WAZUH_VMS_*
// environment variables and the optional config file named by ConfigFileKey.
// v may already carry bound CLI flags; it is not reset.
func Load(v *viper.Viper, baseDir string) (*Config, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, vm_err.NewConfigurationError("cannot resolve base directory", err)
	}

	if err := loadDotEnv(filepath.Join(absBase, ".env")); err != nil {
		return nil, err
	}

	SetDefaults(v)
	cli.SetViperEnvPrefix(v, shared.EnvPrefix)

	if path := v.GetString(ConfigFileKey); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, vm_err.NewConfigurationError("cannot read config file "+path, err,
				"Check that --config points at a readable YAML file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, vm_err.NewConfigurationError("cannot decode configuration", err)
	}
	cfg.BaseDir = absBase

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return vm_err.NewConfigurationError("invalid configuration", err)
	}
	return nil
}

// Default returns the defaults rooted at baseDir without touching the environment.
func Default(baseDir string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, cerr.Wrap(err, "decode defaults")
	}
	cfg.BaseDir = baseDir
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return vm_err.NewConfigurationError("cannot load "+path, err)
	}
	return nil
}
