/* pkg/logger/fallback.go */

package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// NewFallbackLogger logs to stdout only.
func NewFallbackLogger() *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(DefaultConsoleEncoderConfig()),
		zapcore.AddSync(os.Stdout),
		ParseLogLevel(os.Getenv("LOG_LEVEL")),
	)
	return zap.New(newTerminalConsoleCore(core), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// InitializeWithFallback tees console output with a JSON log file. When no
// candidate log path is writable it logs to the console only.
func InitializeWithFallback() {
	level := ParseLogLevel(os.Getenv("LOG_LEVEL"))

	path, err := FindWritableLogPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, "⚠️  No writable log path found. Logging to console only.")
		SetLogger(NewFallbackLogger())
		return
	}

	writer, err := GetLogFileWriter(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "⚠️  Could not write to log file, logging to console only:", err)
		SetLogger(NewFallbackLogger())
		return
	}

	jsonCfg := zap.NewProductionEncoderConfig()
	jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewTee(
		newTerminalConsoleCore(zapcore.NewCore(zapcore.NewConsoleEncoder(DefaultConsoleEncoderConfig()), zapcore.Lock(os.Stdout), level)),
		zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), writer, level),
	)

	l := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	SetLogger(l)
	l.Debug("Logger initialized",
		zap.String("log_level", level.String()),
		zap.String("log_path", path),
	)
}

// DefaultConsoleEncoderConfig uses short keys and colours levels on a TTY.
func DefaultConsoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "T"
	cfg.LevelKey = "L"
	cfg.NameKey = "N"
	cfg.CallerKey = "C"
	cfg.MessageKey = "M"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if term.IsTerminal(int(os.Stdout.Fd())) {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}

// ParseLogLevel maps LOG_LEVEL values to zap levels. Unknown values mean INFO.
func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "TRACE", "DEBUG", "trace", "debug":
		return zapcore.DebugLevel
	case "WARN", "warn":
		return zapcore.WarnLevel
	case "ERROR", "error":
		return zapcore.ErrorLevel
	case "FATAL", "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
