// pkg/execute/local.go

package execute

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	cerr "github.com/cockroachdb/errors"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// LocalExecutor runs command strings in-process with a POSIX shell
// interpreter. External programs are still executed as child processes.
type LocalExecutor struct {
	Dir string
	Env []string
}

// NewLocal returns a Shell that executes on this host.
func NewLocal(dir string) *Shell {
	return NewShell(&LocalExecutor{Dir: dir}, "localhost")
}

// Exec parses cmd and runs it, mapping the shell exit status into Result.
func (l *LocalExecutor) Exec(ctx context.Context, cmd string, stdin io.Reader) (Result, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(cmd), "command")
	if err != nil {
		return Result{ExitCode: -1}, cerr.Wrap(err, "failed to parse command")
	}

	dir := l.Dir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return Result{ExitCode: -1}, cerr.Wrap(err, "resolve working directory")
		}
	}
	env := l.Env
	if env == nil {
		env = os.Environ()
	}

	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(stdin, &stdout, &stderr),
	)
	if err != nil {
		return Result{ExitCode: -1}, cerr.Wrap(err, "failed to create interpreter")
	}

	res := Result{}
	if err := runner.Run(ctx, prog); err != nil {
		status, ok := interp.IsExitStatus(err)
		if !ok {
			return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1}, err
		}
		res.ExitCode = int(status)
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	return res, nil
}
