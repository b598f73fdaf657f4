// pkg/logger/logger.go

package logger

import (
	"sync"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log *zap.Logger
)

// L returns the process logger, falling back to console-only logging when
// InitializeWithFallback has not run yet.
func L() *zap.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		return l
	}
	fallback := NewFallbackLogger()
	SetLogger(fallback)
	return fallback
}

// SetLogger installs l as the process logger and as the zap and otelzap globals.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
	otelzap.ReplaceGlobals(otelzap.New(l))
}

// Sync flushes any buffered log entries. Call before the process exits.
func Sync() error {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l == nil {
		return nil
	}
	return l.Sync()
}

// InitFallback installs the console-only logger unless one is already set.
func InitFallback() {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l == nil {
		SetLogger(NewFallbackLogger())
	}
}
