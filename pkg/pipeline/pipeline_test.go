package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/testutil"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendStep(name string, ran *[]string) Step[int] {
	return Step[int]{Name: name, Run: func(_ *vm_io.RuntimeContext, n int) (int, error) {
		*ran = append(*ran, name)
		return n + 1, nil
	}}
}

func TestRunThreadsStateInOrder(t *testing.T) {
	var ran []string
	steps := []Step[int]{appendStep("a", &ran), appendStep("b", &ran), appendStep("c", &ran)}

	out, err := Run(testutil.Context(t), "test", steps, 10)
	require.NoError(t, err)
	assert.Equal(t, 13, out)
	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.Equal(t, []string{"a", "b", "c"}, Names(steps))
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	var ran []string
	boom := vm_err.NewCommandExecutionError("false", 1, "")
	steps := []Step[int]{
		appendStep("a", &ran),
		Do[int]("b", func(*vm_io.RuntimeContext) error { return boom }),
		appendStep("c", &ran),
	}

	out, err := Run(testutil.Context(t), "test", steps, 0)
	require.Error(t, err)
	assert.Equal(t, 1, out, "state of the last successful step is returned")
	assert.Equal(t, []string{"a"}, ran)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "test", stepErr.Pipeline)
	assert.Equal(t, "b", stepErr.Step)
	assert.Equal(t, 1, stepErr.Index)
	assert.True(t, vm_err.IsCommandExecution(err), "classification survives wrapping")
	assert.Equal(t, 1, vm_err.GetExitCode(err))
}

func TestRunHonoursCancellation(t *testing.T) {
	var ran []string
	rc := testutil.CancelledContext(t)

	_, err := Run(rc, "test", []Step[int]{appendStep("a", &ran)}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, ran)
}

func TestStepsSeeStepContext(t *testing.T) {
	rc := testutil.Context(t)
	var seen context.Context
	steps := []Step[struct{}]{Do[struct{}]("inspect", func(stepRC *vm_io.RuntimeContext) error {
		seen = stepRC.Ctx
		return nil
	})}

	_, err := Run(rc, "test", steps, struct{}{})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.NoError(t, seen.Err())
}
