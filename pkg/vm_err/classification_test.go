package vm_err

import (
	"errors"
	"fmt"
	"testing"

	cerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "plain error", err: errors.New("boom"), want: 1},
		{name: "precondition", err: NewPreconditionError("inventory", "all-ami"), want: 2},
		{name: "configuration", err: NewConfigurationError("bad arch", nil), want: 2},
		{name: "network", err: NewNetworkError("fetch failed", errors.New("dial tcp")), want: 1},
		{name: "internal", err: NewInternalError("bug", nil), want: 3},
		{name: "wrapped precondition", err: fmt.Errorf("dispatch: %w", NewPreconditionError("inventory", "ami-configurer")), want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestPreconditionErrorNamesFieldAndMode(t *testing.T) {
	err := NewPreconditionError("packages-url-path", "provisioner")
	assert.Contains(t, err.Error(), "--packages-url-path")
	assert.Contains(t, err.Error(), `"provisioner"`)
	assert.True(t, IsPrecondition(err))
	assert.False(t, IsNetwork(err))
}

func TestDiscoveryErrorKeepsNetworkCause(t *testing.T) {
	netErr := NewNetworkError("GET https://example.invalid/LATEST-STABLE.TXT", errors.New("connection refused"))
	err := NewDiscoveryError("failed to discover latest version", netErr)

	assert.True(t, IsDiscovery(err))
	assert.True(t, IsNetwork(err))
	assert.Contains(t, err.Error(), "connection refused")

	category, ok := CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, CategoryDiscovery, category)
}

func TestPatternNotFoundIsNotDiscovery(t *testing.T) {
	err := NewPatternNotFoundError(`VirtualBox-7\.0\.20-\d+-Linux_amd64\.run`, "https://example.invalid/7.0.20/")
	assert.True(t, IsPatternNotFound(err))
	assert.False(t, IsDiscovery(err))
	assert.False(t, IsNetwork(err))
}

func TestCommandExecutionError(t *testing.T) {
	err := cerr.Wrap(NewCommandExecutionError("sudo /sbin/vboxconfig", 2, "modprobe failed"), "kernel module rebuild")

	assert.True(t, IsCommandExecution(err))
	ce, ok := AsCommandError(err)
	require.True(t, ok)
	assert.Equal(t, "sudo /sbin/vboxconfig", ce.Command)
	assert.Equal(t, 2, ce.ExitCode)
	assert.Contains(t, err.Error(), "exited with status 2")
}

func TestWrapStepKeepsClassification(t *testing.T) {
	base := NewWriteError("/tmp/VirtualBox-7.0.20.run", errors.New("disk full"))
	err := WrapStep(base, "dependency-install", "artifact-download")

	assert.True(t, IsWrite(err))
	assert.Contains(t, err.Error(), "artifact-download")
	assert.Contains(t, UserMessage(err), "earlier steps remain applied")
	assert.Nil(t, WrapStep(nil, "p", "s"))
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "pattern_not_found", CategoryPatternNotFound.String())
	assert.Equal(t, "unknown", ErrorCategory(99).String())
}
