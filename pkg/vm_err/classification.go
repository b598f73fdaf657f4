// pkg/vm_err/classification.go
//
// Error classification for the provisioning orchestrator. Every failure that
// leaves a pipeline carries one of these categories so operators can tell an
// unreachable mirror from a listing page that changed shape.

package vm_err

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors for appropriate handling
type ErrorCategory int

const (
	// CategorySystem - OS/filesystem issues (exit 1)
	CategorySystem ErrorCategory = iota
	// CategoryPrecondition - required CLI field missing for the mode (exit 2)
	CategoryPrecondition
	// CategoryConfiguration - invalid flag or config value (exit 2)
	CategoryConfiguration
	// CategoryNetwork - remote fetch or download failed (exit 1)
	CategoryNetwork
	// CategoryDiscovery - remote version payload empty or invalid (exit 1)
	CategoryDiscovery
	// CategoryPatternNotFound - listing page no longer matches (exit 1)
	CategoryPatternNotFound
	// CategoryCommand - shell step exited non-zero (exit 1)
	CategoryCommand
	// CategoryWrite - local write of a downloaded artifact failed (exit 1)
	CategoryWrite
	// CategoryInternal - bugs in wazuh-vms itself (exit 3)
	CategoryInternal
)

var categoryNames = map[ErrorCategory]string{
	CategorySystem:          "system",
	CategoryPrecondition:    "precondition",
	CategoryConfiguration:   "configuration",
	CategoryNetwork:         "network",
	CategoryDiscovery:       "discovery",
	CategoryPatternNotFound: "pattern_not_found",
	CategoryCommand:         "command_execution",
	CategoryWrite:           "write",
	CategoryInternal:        "internal",
}

func (c ErrorCategory) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// ClassifiedError wraps an error with category and remediation info
type ClassifiedError struct {
	Category    ErrorCategory
	Message     string
	Cause       error
	Remediation []string
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Cause != nil && e.Cause.Error() != e.Message {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// Detail renders the error with its remediation steps for the terminal.
func (e *ClassifiedError) Detail() string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	if len(e.Remediation) > 0 {
		sb.WriteString("\n\nHow to fix:")
		for i, step := range e.Remediation {
			sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, step))
		}
	}
	return sb.String()
}

// ExitCode returns the appropriate exit code for this error category
func (e *ClassifiedError) ExitCode() int {
	switch e.Category {
	case CategoryPrecondition, CategoryConfiguration:
		return 2
	case CategoryInternal:
		return 3
	default:
		return 1
	}
}

// GetExitCode extracts exit code from any error.
// Returns 0 for nil, the category code for classified errors, 1 for others.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.ExitCode()
	}
	return 1
}

// CategoryOf returns the category of the outermost classified error in the chain.
func CategoryOf(err error) (ErrorCategory, bool) {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Category, true
	}
	return CategorySystem, false
}

func is(err error, category ErrorCategory) bool {
	for err != nil {
		var classified *ClassifiedError
		if !errors.As(err, &classified) {
			return false
		}
		if classified.Category == category {
			return true
		}
		err = classified.Cause
	}
	return false
}

// NewPreconditionError reports a CLI field the mode requires but was not given.
func NewPreconditionError(field, mode string) error {
	return &ClassifiedError{
		Category: CategoryPrecondition,
		Message:  fmt.Sprintf("--%s is required for the %q --execute value", field, mode),
		Remediation: []string{
			fmt.Sprintf("Pass --%s when running with --execute %s", field, mode),
		},
	}
}

// NewConfigurationError reports an invalid flag or configuration value.
func NewConfigurationError(message string, cause error, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategoryConfiguration,
		Message:     message,
		Cause:       cause,
		Remediation: remediation,
	}
}

// NewNetworkError wraps a transport failure or a non-2xx response.
func NewNetworkError(message string, cause error) error {
	return &ClassifiedError{
		Category: CategoryNetwork,
		Message:  message,
		Cause:    cause,
		Remediation: []string{
			"Check outbound connectivity from the build host",
			"Re-run the same --execute value once the mirror is reachable",
		},
	}
}

// NewDiscoveryError reports a version discovery failure. cause may be a network error.
func NewDiscoveryError(message string, cause error) error {
	return &ClassifiedError{
		Category: CategoryDiscovery,
		Message:  message,
		Cause:    cause,
	}
}

// NewPatternNotFoundError reports a listing page without the expected artifact.
func NewPatternNotFoundError(pattern, url string) error {
	return &ClassifiedError{
		Category: CategoryPatternNotFound,
		Message:  fmt.Sprintf("no artifact matching %s found at %s", pattern, url),
		Remediation: []string{
			"The download listing may have changed layout; inspect it manually",
		},
	}
}

// CommandError is the cause carried by command execution failures.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// NewCommandExecutionError reports a shell step that returned non-zero.
func NewCommandExecutionError(command string, exitCode int, stderr string) error {
	cause := &CommandError{Command: command, ExitCode: exitCode, Stderr: stderr}
	return &ClassifiedError{
		Category: CategoryCommand,
		Message:  "command execution failed",
		Cause:    cause,
	}
}

// NewWriteError reports a failure writing a downloaded artifact to path.
func NewWriteError(path string, cause error) error {
	return &ClassifiedError{
		Category: CategoryWrite,
		Message:  fmt.Sprintf("failed writing %s", path),
		Cause:    cause,
	}
}

// NewInternalError creates an error for wazuh-vms bugs
func NewInternalError(message string, cause error) error {
	return &ClassifiedError{
		Category: CategoryInternal,
		Message:  message,
		Cause:    cause,
	}
}

func IsPrecondition(err error) bool { return is(err, CategoryPrecondition) }
func IsConfiguration(err error) bool { return is(err, CategoryConfiguration) }
func IsNetwork(err error) bool { return is(err, CategoryNetwork) }
func IsDiscovery(err error) bool { return is(err, CategoryDiscovery) }
func IsPatternNotFound(err error) bool { return is(err, CategoryPatternNotFound) }
func IsCommandExecution(err error) bool { return is(err, CategoryCommand) }
func IsWrite(err error) bool { return is(err, CategoryWrite) }

// AsCommandError returns the command failure in err's chain, if any.
func AsCommandError(err error) (*CommandError, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
