// pkg/orchestrator/request.go

package orchestrator

import (
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/go-playground/validator/v10"
)

// Request field names as spelled on the command line.
const (
	FieldInventory       = "inventory"
	FieldPackagesURLPath = "packages-url-path"
)

// Request is the validated parameter set of one run.
type Request struct {
	Inventory       string             `validate:"omitempty"`
	PackagesURLPath string             `validate:"omitempty"`
	PackageType     shared.PackageType `validate:"oneof=rpm deb"`
	Arch            shared.Arch        `validate:"oneof=x86_64 amd64 arm64 aarch64"`
	Dependencies    string             `validate:"required"`
	Component       shared.Component   `validate:"oneof=wazuh_indexer wazuh_server wazuh_dashboard all"`
}

func (r Request) field(name string) string {
	switch name {
	case FieldInventory:
		return r.Inventory
	case FieldPackagesURLPath:
		return r.PackagesURLPath
	}
	return ""
}

// Validate checks the fields mode requires and the enumerated values. It has
// no side effects.
func (r Request) Validate(mode ExecutionMode) error {
	for _, name := range mode.Requires() {
		if r.field(name) == "" {
			return vm_err.NewPreconditionError(name, string(mode))
		}
	}
	if err := validator.New().Struct(r); err != nil {
		return vm_err.NewConfigurationError("invalid request", err,
			"--package-type accepts rpm or deb",
			"--arch accepts x86_64, amd64, arm64 or aarch64",
			"--component accepts wazuh_indexer, wazuh_server, wazuh_dashboard or all")
	}
	return nil
}
