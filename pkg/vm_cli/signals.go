// pkg/vm_cli/signals.go
//
// Signal handling for long provisioning runs. The first Ctrl-C cancels the
// context so the running shell command is killed and the pipeline stops at
// its current step; cleanup functions then run in LIFO order.

package vm_cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// CleanupFunc is a function that performs cleanup operations
type CleanupFunc func() error

// SignalHandler cancels its context on SIGINT/SIGTERM.
type SignalHandler struct {
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.Mutex
	cleanupFuncs []CleanupFunc
	sigChan      chan os.Signal
	doneChan     chan struct{}
	stopOnce     sync.Once
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(ctx context.Context) *SignalHandler {
	ctx, cancel := context.WithCancel(ctx)

	h := &SignalHandler{
		ctx:      ctx,
		cancel:   cancel,
		sigChan:  make(chan os.Signal, 1),
		doneChan: make(chan struct{}),
	}
	signal.Notify(h.sigChan, os.Interrupt, syscall.SIGTERM)
	go h.handleSignals()
	return h
}

// RegisterCleanup adds a cleanup function to be called on shutdown.
// Cleanup functions are called in REVERSE order (LIFO)
func (h *SignalHandler) RegisterCleanup(cleanup CleanupFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanupFuncs = append(h.cleanupFuncs, cleanup)
}

// Context returns the cancellable context
func (h *SignalHandler) Context() context.Context {
	return h.ctx
}

func (h *SignalHandler) handleSignals() {
	log := otelzap.Ctx(h.ctx)

	select {
	case sig := <-h.sigChan:
		log.Warn("Received signal, cancelling provisioning run",
			zap.String("signal", sig.String()))
		h.cancel()
		if err := h.runCleanup(); err != nil {
			log.Error("Cleanup completed with errors", zap.Error(err))
		}
	case <-h.doneChan:
	}
}

func (h *SignalHandler) runCleanup() error {
	log := otelzap.Ctx(h.ctx)

	h.mu.Lock()
	funcs := append([]CleanupFunc(nil), h.cleanupFuncs...)
	h.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		var lastErr error
		for i := len(funcs) - 1; i >= 0; i-- {
			if err := funcs[i](); err != nil {
				log.Warn("Cleanup function failed", zap.Int("index", i), zap.Error(err))
				lastErr = err
			}
		}
		done <- lastErr
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return cerr.New("cleanup timed out after 5 seconds")
	}
}

// Stop releases the signal subscription. Safe to call more than once.
func (h *SignalHandler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.doneChan)
		h.cancel()
	})
}
