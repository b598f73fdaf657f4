package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"
)

// TerminalPrefix marks log messages meant for the operator rather than the log
// stream. The console renders them as plain text; the JSON file keeps them.
const TerminalPrefix = "terminal prompt:"

// terminalConsoleCore wraps a zapcore.Core and renders "terminal prompt" logs
// as plain text for human-friendly CLI output.
type terminalConsoleCore struct {
	base zapcore.Core
	out  io.Writer
}

func newTerminalConsoleCore(base zapcore.Core) zapcore.Core {
	return &terminalConsoleCore{base: base, out: os.Stdout}
}

func (c *terminalConsoleCore) Enabled(level zapcore.Level) bool {
	return c.base.Enabled(level)
}

func (c *terminalConsoleCore) With(fields []zapcore.Field) zapcore.Core {
	return &terminalConsoleCore{base: c.base.With(fields), out: c.out}
}

func (c *terminalConsoleCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if strings.HasPrefix(entry.Message, TerminalPrefix) {
		return ce.AddCore(entry, c)
	}
	return c.base.Check(entry, ce)
}

func (c *terminalConsoleCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if strings.HasPrefix(entry.Message, TerminalPrefix) {
		c.writeTerminal(entry.Message, fields)
		return nil
	}
	return c.base.Write(entry, fields)
}

func (c *terminalConsoleCore) Sync() error {
	return c.base.Sync()
}

func (c *terminalConsoleCore) writeTerminal(message string, fields []zapcore.Field) {
	text := strings.TrimSpace(strings.TrimPrefix(message, TerminalPrefix))
	if text != "" {
		c.printLines(text)
	}

	if len(fields) == 0 {
		return
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	keys := make([]string, 0, len(enc.Fields))
	for key := range enc.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		c.printLines(fmt.Sprintf("  %s: %v", key, enc.Fields[key]))
	}
}

func (c *terminalConsoleCore) printLines(value string) {
	for _, line := range strings.Split(value, "\n") {
		fmt.Fprintln(c.out, line)
	}
}
