// pkg/vm_cli/wrap.go

package vm_cli

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RunFunc is the signature every wrapped command implements.
type RunFunc func(rc *vm_io.RuntimeContext, cmd *cobra.Command, args []string) error

// Wrap ensures panic recovery, telemetry, logging and signal-driven cancellation.
func Wrap(fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		logger.InitFallback()

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		handler := NewSignalHandler(parent)
		defer handler.Stop()

		rc := vm_io.NewContext(handler.Context(), cmd.Name())
		defer rc.End(&err)

		defer func() {
			if r := recover(); r != nil {
				err = vm_err.NewInternalError("panic recovered", cerr.AssertionFailedf("panic: %v", r))
				rc.Log.Error("Panic recovered", zap.Any("panic", r))
			}
		}()

		vm_io.LogRuntimeExecutionContext(rc)

		err = fn(rc, cmd, args)
		if err != nil {
			if _, classified := vm_err.CategoryOf(err); !classified {
				err = cerr.WithStack(err)
			}
		}
		return err
	}
}
