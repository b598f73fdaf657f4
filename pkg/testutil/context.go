package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_io"
	"go.uber.org/zap/zaptest"
)

// Context returns a RuntimeContext logging through t.
func Context(t *testing.T) *vm_io.RuntimeContext {
	t.Helper()
	return vm_io.NewTestContext(context.Background(), zaptest.NewLogger(t))
}

// CancelledContext returns a RuntimeContext whose context is already done.
func CancelledContext(t *testing.T) *vm_io.RuntimeContext {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return vm_io.NewTestContext(ctx, zaptest.NewLogger(t))
}

// WriteFile creates dir/name (and parents) with content and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
