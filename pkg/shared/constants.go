// pkg/shared/constants.go

package shared

// Version is stamped at build time with -ldflags.
var Version = "dev"

const (
	// AppID names log directories, env prefixes and the binary.
	AppID = "wazuh-vms"

	// EnvPrefix is the viper environment prefix (WAZUH_VMS_*).
	EnvPrefix = "WAZUH_VMS"

	// ServiceUser is the account every image ships with.
	ServiceUser = "wazuh-user"

	// ServiceHostname is the hostname every image ships with.
	ServiceHostname = "wazuh-server"
)

// Component identifies one of the product components, or all of them.
type Component string

const (
	ComponentIndexer   Component = "wazuh_indexer"
	ComponentServer    Component = "wazuh_server"
	ComponentDashboard Component = "wazuh_dashboard"
	ComponentAll       Component = "all"
)

// Components lists the concrete components in install order.
var Components = []Component{ComponentIndexer, ComponentServer, ComponentDashboard}

// Expand returns the concrete components c refers to.
func (c Component) Expand() []Component {
	if c == ComponentAll {
		out := make([]Component, len(Components))
		copy(out, Components)
		return out
	}
	return []Component{c}
}

// ServiceName is the systemd unit name of the component (wazuh_indexer -> wazuh-indexer).
func (c Component) ServiceName() string {
	switch c {
	case ComponentIndexer:
		return "wazuh-indexer"
	case ComponentServer:
		return "wazuh-server"
	case ComponentDashboard:
		return "wazuh-dashboard"
	}
	return string(c)
}

// PackageType is the package format of the component packages.
type PackageType string

const (
	PackageRPM PackageType = "rpm"
	PackageDEB PackageType = "deb"
)

// PackageManager is the dependency package manager for the package type.
func (p PackageType) PackageManager() string {
	if p == PackageDEB {
		return "apt"
	}
	return "yum"
}

// Arch is a target architecture as spelled by the package URLs.
type Arch string

const (
	ArchX8664   Arch = "x86_64"
	ArchAMD64   Arch = "amd64"
	ArchARM64   Arch = "arm64"
	ArchAArch64 Arch = "aarch64"
)
