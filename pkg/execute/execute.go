// pkg/execute/execute.go

package execute

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/telemetry"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Result is the captured outcome of one shell command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes shell command strings on the provisioning target.
type Runner interface {
	// Run executes cmds in order and stops at the first non-zero exit,
	// returning a command execution error naming the command and status.
	Run(ctx context.Context, cmds ...string) error
	// Output executes cmd and captures its streams. A non-zero exit is
	// reported in Result.ExitCode, not as an error.
	Output(ctx context.Context, cmd string) (Result, error)
	// Put streams r into dest with the given mode, escalating with sudo.
	Put(ctx context.Context, r io.Reader, dest string, mode os.FileMode) error
}

// Executor runs a single command string with optional stdin. Implementations
// return an error only when the command could not be run at all.
type Executor interface {
	Exec(ctx context.Context, cmd string, stdin io.Reader) (Result, error)
}

// Shell adapts an Executor to the Runner contract with logging and tracing.
type Shell struct {
	exec   Executor
	target string
}

// NewShell wraps exec; target names the host in logs.
func NewShell(exec Executor, target string) *Shell {
	return &Shell{exec: exec, target: target}
}

// Target is the host this shell executes on.
func (s *Shell) Target() string {
	return s.target
}

// Run executes cmds in order, stopping at the first failure.
func (s *Shell) Run(ctx context.Context, cmds ...string) error {
	for _, cmd := range cmds {
		res, err := s.Output(ctx, cmd)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return vm_err.NewCommandExecutionError(cmd, res.ExitCode, ExtractSummary(res.Stderr, 2))
		}
	}
	return nil
}

// Output executes cmd and captures its result.
func (s *Shell) Output(ctx context.Context, cmd string) (Result, error) {
	log := otelzap.Ctx(ctx)
	ctx, span := telemetry.Start(ctx, "execute.Output",
		attribute.String("command", cmd),
		attribute.String("target", s.target),
	)
	defer span.End()

	log.Info("Executing command", zap.String("command", cmd), zap.String("target", s.target))

	res, err := s.exec.Exec(ctx, cmd, nil)
	if err != nil {
		span.RecordError(err)
		return res, cerr.Wrapf(err, "execute %q on %s", cmd, s.target)
	}

	span.SetAttributes(attribute.Int("exit_code", res.ExitCode))
	if res.ExitCode != 0 {
		log.Warn("Command exited non-zero",
			zap.String("command", cmd),
			zap.Int("exit_code", res.ExitCode),
			zap.String("summary", ExtractSummary(res.Stderr, 2)))
	} else {
		log.Debug("Command succeeded", zap.String("command", cmd))
	}
	return res, nil
}

// Put streams r into dest through `sudo tee` and then sets its mode.
func (s *Shell) Put(ctx context.Context, r io.Reader, dest string, mode os.FileMode) error {
	log := otelzap.Ctx(ctx)
	teeCmd := fmt.Sprintf("sudo tee %s > /dev/null", Quote(dest))

	log.Info("Writing file", zap.String("path", dest), zap.String("target", s.target))
	res, err := s.exec.Exec(ctx, teeCmd, r)
	if err != nil {
		return cerr.Wrapf(err, "write %s on %s", dest, s.target)
	}
	if res.ExitCode != 0 {
		return vm_err.NewCommandExecutionError(teeCmd, res.ExitCode, ExtractSummary(res.Stderr, 2))
	}
	return s.Run(ctx, fmt.Sprintf("sudo chmod %o %s", mode.Perm(), Quote(dest)))
}

// Close releases the executor when it holds a connection.
func (s *Shell) Close() error {
	if c, ok := s.exec.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ExtractSummary picks up to maxCandidates lines that look like errors, falling
// back to the last non-empty line.
func ExtractSummary(output string, maxCandidates int) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return ""
	}

	var candidates []string
	var last string
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		last = line
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") ||
			strings.Contains(lower, "failed") ||
			strings.Contains(lower, "cannot") ||
			strings.Contains(lower, "not found") {
			candidates = append(candidates, line)
		}
	}
	if len(candidates) == 0 {
		return last
	}
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return strings.Join(candidates, " | ")
}
