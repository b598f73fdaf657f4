// pkg/config/defaults.go

package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultDependenciesFile is the bundled dependency manifest, relative to the base dir.
const DefaultDependenciesFile = "provisioner/static/wazuh_dependencies.yaml"

// File names the certificates tool and its configuration are saved under.
const (
	CertsToolFile   = "wazuh-certs-tool.sh"
	CertsConfigFile = "config.yml"
)

// RequiredPackages are the build prerequisites for the VirtualBox kernel modules.
var RequiredPackages = []string{
	"kernel-devel",
	"kernel-headers",
	"dkms",
	"elfutils-libelf-devel",
	"gcc",
	"make",
	"perl",
	"python3-pip",
	"git",
}

// IndicesToPurge are removed from the indexer before the OVA is exported.
var IndicesToPurge = []string{
	"wazuh-alerts-*",
	"wazuh-archives-*",
	"wazuh-states-vulnerabilities-*",
	"wazuh-statistics-*",
	"wazuh-monitoring-*",
}

var defaults = map[string]interface{}{
	"http_timeout": time.Duration(0),

	"virtualbox.base_url":          "https://download.virtualbox.org/virtualbox/",
	"virtualbox.latest_file":       "LATEST-STABLE.TXT",
	"virtualbox.product":           "VirtualBox",
	"virtualbox.platform":          "Linux_amd64.run",
	"virtualbox.download_dir":      "/tmp",
	"virtualbox.required_packages": RequiredPackages,
	"virtualbox.dev_tools_group":   "Development Tools",
	"virtualbox.kernel_config_cmd": "/sbin/vboxconfig",

	"vagrant.repo_url":     "https://rpm.releases.hashicorp.com/AmazonLinux/hashicorp.repo",
	"vagrant.vagrantfile":  "configurer/ova/static/Vagrantfile",
	"vagrant.box_name":     "al2023",
	"vagrant.box_file":     "al2023.box",
	"vagrant.max_up_tries": 100,

	"base_box.os_name":        "al2023",
	"base_box.images_url":     "https://cdn.amazonlinux.com/al2023/os-images/",
	"base_box.required_tools": []string{"vboxmanage", "wget", "tar", "chroot"},
	"base_box.kernel_suffix":  "kernel-6.1-x86_64.xfs.gpt",
	"base_box.mount_offset":   int64(12582912),
	"base_box.memory_mb":      1024,

	"guest_setup.nameserver":       "8.8.8.8",
	"guest_setup.vagrant_key_url":  "https://raw.githubusercontent.com/hashicorp/vagrant/main/keys/vagrant.pub",
	"guest_setup.guest_latest_url": "https://download.virtualbox.org/virtualbox/LATEST.TXT",
	"guest_setup.user_password":    "wazuh",
	"guest_setup.zero_fill_passes": 2,

	"ova_post.static_dir":    "configurer/ova/static",
	"ova_post.version_file":  "VERSION.json",
	"ova_post.root_password": "wazuh",
	"ova_post.indexer_url":   "https://127.0.0.1:9200",
	"ova_post.indices":       IndicesToPurge,

	"ami.instance_user":  "ec2-user",
	"ami.cloud_config":   "/etc/cloud/cloud.cfg",
	"ami.banner":         "configurer/ami/static/20-wazuh-banner",
	"ami.motd_dir":       "/usr/lib/motd.d",
	"ami.default_banner": "/usr/lib/motd.d/30-banner",
	"ami.sudoers_file":   "/etc/sudoers.d/90-cloud-init-users",

	"provisioner.remote_root": "/etc/wazuh-configuration",
	"provisioner.allowed_hosts": []string{
		"packages.wazuh.com",
		"packages-dev.wazuh.com",
		"packages-staging.wazuh.com",
	},

	"core.config_mappings": "configurer/core/static/configuration_mappings.yaml",
}

// SetDefaults registers every configuration default on v.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
