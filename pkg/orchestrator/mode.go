// pkg/orchestrator/mode.go

package orchestrator

import (
	"strings"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
)

// ExecutionMode is the --execute value selecting which stages run.
type ExecutionMode string

const (
	ModeProvisioner       ExecutionMode = "provisioner"
	ModeCoreConfigurer    ExecutionMode = "core-configurer"
	ModeAMIConfigurer     ExecutionMode = "ami-configurer"
	ModeOVAPreConfigurer  ExecutionMode = "ova-pre-configurer"
	ModeOVAPostConfigurer ExecutionMode = "ova-post-configurer"
	ModeAllAMI            ExecutionMode = "all-ami"
)

// Modes lists every accepted --execute value.
var Modes = []ExecutionMode{
	ModeProvisioner,
	ModeCoreConfigurer,
	ModeAMIConfigurer,
	ModeOVAPreConfigurer,
	ModeOVAPostConfigurer,
	ModeAllAMI,
}

// Stage is one pipeline the dispatcher can invoke.
type Stage string

const (
	StageAMIConfigurer     Stage = "ami-configurer"
	StageInventoryUser     Stage = "inventory-user"
	StageOVAPreConfigurer  Stage = "ova-pre-configurer"
	StageProvisioner       Stage = "provisioner"
	StageCoreConfigurer    Stage = "core-configurer"
	StageOVAPostConfigurer Stage = "ova-post-configurer"
)

// StageOrder is the global run order. Later stages rely on state left by
// earlier ones, e.g. the core configurer expects provisioned packages.
var StageOrder = []Stage{
	StageAMIConfigurer,
	StageInventoryUser,
	StageOVAPreConfigurer,
	StageProvisioner,
	StageCoreConfigurer,
	StageOVAPostConfigurer,
}

// modeTable is the single source of truth for which stages a mode runs.
var modeTable = map[ExecutionMode]struct {
	stages   []Stage
	requires []string
}{
	ModeAMIConfigurer: {
		stages:   []Stage{StageAMIConfigurer, StageInventoryUser},
		requires: []string{FieldInventory},
	},
	ModeAllAMI: {
		stages:   []Stage{StageAMIConfigurer, StageInventoryUser, StageProvisioner, StageCoreConfigurer},
		requires: []string{FieldPackagesURLPath, FieldInventory},
	},
	ModeOVAPreConfigurer: {
		stages: []Stage{StageOVAPreConfigurer},
	},
	ModeProvisioner: {
		stages:   []Stage{StageProvisioner},
		requires: []string{FieldPackagesURLPath},
	},
	ModeCoreConfigurer: {
		stages: []Stage{StageCoreConfigurer},
	},
	ModeOVAPostConfigurer: {
		stages:   []Stage{StageProvisioner, StageCoreConfigurer, StageOVAPostConfigurer},
		requires: []string{FieldPackagesURLPath},
	},
}

// ParseMode validates an --execute value.
func ParseMode(s string) (ExecutionMode, error) {
	m := ExecutionMode(strings.TrimSpace(s))
	if _, ok := modeTable[m]; ok {
		return m, nil
	}
	names := make([]string, len(Modes))
	for i, mode := range Modes {
		names[i] = string(mode)
	}
	return "", vm_err.NewConfigurationError("invalid --execute value \""+s+"\"", nil,
		"Use one of: "+strings.Join(names, ", "))
}

// Stages returns the stages m runs, in global order.
func (m ExecutionMode) Stages() []Stage {
	entry, ok := modeTable[m]
	if !ok {
		return nil
	}
	out := make([]Stage, len(entry.stages))
	copy(out, entry.stages)
	return out
}

// Requires returns the request fields m cannot run without.
func (m ExecutionMode) Requires() []string {
	entry := modeTable[m]
	out := make([]string, len(entry.requires))
	copy(out, entry.requires)
	return out
}

func (m ExecutionMode) String() string { return string(m) }
