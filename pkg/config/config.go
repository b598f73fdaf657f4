// pkg/config/config.go
//
// Static configuration for a provisioning run: remote URLs, package lists and
// the on-disk locations of bundled assets. It is resolved once at process
// start from a base directory (the repository checkout) and handed to each
// component at construction. Nothing below reads the working directory.

package config

import (
	"path/filepath"
	"time"
)

// Config is the fully resolved static configuration.
type Config struct {
	BaseDir     string        `mapstructure:"base_dir" validate:"required"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"gte=0"`

	VirtualBox  VirtualBoxConfig  `mapstructure:"virtualbox"`
	Vagrant     VagrantConfig     `mapstructure:"vagrant"`
	BaseBox     BaseBoxConfig     `mapstructure:"base_box"`
	GuestSetup  GuestSetupConfig  `mapstructure:"guest_setup"`
	OVAPost     OVAPostConfig     `mapstructure:"ova_post"`
	AMI         AMIConfig         `mapstructure:"ami"`
	Provisioner ProvisionerConfig `mapstructure:"provisioner"`
	Core        CoreConfig        `mapstructure:"core"`
}

// VirtualBoxConfig drives the installer discovery and download.
type VirtualBoxConfig struct {
	BaseURL          string   `mapstructure:"base_url" validate:"required,url"`
	LatestFile       string   `mapstructure:"latest_file" validate:"required"`
	Product          string   `mapstructure:"product" validate:"required"`
	Platform         string   `mapstructure:"platform" validate:"required"`
	DownloadDir      string   `mapstructure:"download_dir" validate:"required"`
	RequiredPackages []string `mapstructure:"required_packages" validate:"min=1"`
	DevToolsGroup    string   `mapstructure:"dev_tools_group" validate:"required"`
	KernelConfigCmd  string   `mapstructure:"kernel_config_cmd" validate:"required"`
}

// VagrantConfig covers the vagrant package source and VM deployment.
type VagrantConfig struct {
	RepoURL     string `mapstructure:"repo_url" validate:"required,url"`
	Vagrantfile string `mapstructure:"vagrantfile" validate:"required"`
	BoxName     string `mapstructure:"box_name" validate:"required"`
	BoxFile     string `mapstructure:"box_file" validate:"required"`
	MaxUpTries  int    `mapstructure:"max_up_tries" validate:"min=1"`
}

// BaseBoxConfig describes the upstream Amazon Linux image used for the OVA.
type BaseBoxConfig struct {
	OSName        string   `mapstructure:"os_name" validate:"required"`
	ImagesURL     string   `mapstructure:"images_url" validate:"required,url"`
	RequiredTools []string `mapstructure:"required_tools"`
	KernelSuffix  string   `mapstructure:"kernel_suffix" validate:"required"`
	MountOffset   int64    `mapstructure:"mount_offset" validate:"gte=0"`
	MemoryMB      int      `mapstructure:"memory_mb" validate:"min=256"`
}

// GuestSetupConfig is used inside the chroot of the base image.
type GuestSetupConfig struct {
	Nameserver     string `mapstructure:"nameserver" validate:"required,ip"`
	VagrantKeyURL  string `mapstructure:"vagrant_key_url" validate:"required,url"`
	GuestLatestURL string `mapstructure:"guest_latest_url" validate:"required,url"`
	UserPassword   string `mapstructure:"user_password" validate:"required"`
	ZeroFillPasses int    `mapstructure:"zero_fill_passes" validate:"gte=0"`
}

// OVAPostConfig locates the bundled assets for the final OVA system config.
type OVAPostConfig struct {
	StaticDir    string   `mapstructure:"static_dir" validate:"required"`
	VersionFile  string   `mapstructure:"version_file" validate:"required"`
	RootPassword string   `mapstructure:"root_password" validate:"required"`
	IndexerURL   string   `mapstructure:"indexer_url" validate:"required,url"`
	Indices      []string `mapstructure:"indices"`
}

// AMIConfig holds the AMI customisation targets.
type AMIConfig struct {
	InstanceUser  string `mapstructure:"instance_user" validate:"required"`
	CloudConfig   string `mapstructure:"cloud_config" validate:"required"`
	Banner        string `mapstructure:"banner" validate:"required"`
	MotdDir       string `mapstructure:"motd_dir" validate:"required"`
	DefaultBanner string `mapstructure:"default_banner" validate:"required"`
	SudoersFile   string `mapstructure:"sudoers_file" validate:"required"`
}

// ProvisionerConfig controls where packages and certificate tooling land.
type ProvisionerConfig struct {
	RemoteRoot   string   `mapstructure:"remote_root" validate:"required"`
	AllowedHosts []string `mapstructure:"allowed_hosts" validate:"min=1"`
}

// CoreConfig points at the component configuration mappings.
type CoreConfig struct {
	ConfigMappings string `mapstructure:"config_mappings" validate:"required"`
}

// CertsDir is the remote directory receiving the certificates tool and config.
func (p ProvisionerConfig) CertsDir() string {
	return filepath.Join(p.RemoteRoot, "certs")
}

// CertsToolPath is where the certificates tool is downloaded.
func (p ProvisionerConfig) CertsToolPath() string {
	return filepath.Join(p.CertsDir(), CertsToolFile)
}

// CertsConfigPath is where the certificates tool configuration is downloaded.
func (p ProvisionerConfig) CertsConfigPath() string {
	return filepath.Join(p.CertsDir(), CertsConfigFile)
}

// PackagesDir is the remote directory receiving the downloaded packages.
func (p ProvisionerConfig) PackagesDir() string {
	return filepath.Join(p.RemoteRoot, "packages")
}

// Resolve returns p relative to BaseDir unless it is already absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}
