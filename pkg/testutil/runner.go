// Package testutil provides fakes and helpers shared by package tests.
package testutil

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
)

// PutPrefix marks file uploads in FakeRunner.Commands.
const PutPrefix = "put:"

// WrittenFile is a file captured by FakeRunner.Put.
type WrittenFile struct {
	Content string
	Mode    os.FileMode
}

type rule struct {
	substr string
	result execute.Result
}

// FakeRunner records commands instead of executing them. Commands matching a
// failure rule exit non-zero; commands matching a response rule get canned
// stdout. Rules match by substring, first match wins. `sudo cat` of a file
// written with Put returns its content.
type FakeRunner struct {
	mu        sync.Mutex
	commands  []string
	files     map[string]WrittenFile
	failures  []rule
	responses []rule
	closed    int
}

// NewFakeRunner returns a runner where every command succeeds silently.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{files: make(map[string]WrittenFile)}
}

// FailOn makes commands containing substr exit with code.
func (f *FakeRunner) FailOn(substr string, code int) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, rule{substr: substr, result: execute.Result{
		ExitCode: code,
		Stderr:   "error: simulated failure of " + substr,
	}})
	return f
}

// Respond makes commands containing substr print stdout.
func (f *FakeRunner) Respond(substr, stdout string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, rule{substr: substr, result: execute.Result{Stdout: stdout}})
	return f
}

// Run records cmds and stops at the first one with a failure rule.
func (f *FakeRunner) Run(ctx context.Context, cmds ...string) error {
	for _, cmd := range cmds {
		res, err := f.Output(ctx, cmd)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return vm_err.NewCommandExecutionError(cmd, res.ExitCode, res.Stderr)
		}
	}
	return nil
}

// Output records cmd and returns its scripted result.
func (f *FakeRunner) Output(ctx context.Context, cmd string) (execute.Result, error) {
	if err := ctx.Err(); err != nil {
		return execute.Result{ExitCode: -1}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	for _, r := range f.failures {
		if strings.Contains(cmd, r.substr) {
			return r.result, nil
		}
	}
	// Reads see what an earlier Put wrote.
	if path, ok := strings.CutPrefix(cmd, "sudo cat "); ok {
		if wf, ok := f.files[strings.Trim(path, "'")]; ok {
			return execute.Result{Stdout: wf.Content}, nil
		}
	}
	for _, r := range f.responses {
		if strings.Contains(cmd, r.substr) {
			return r.result, nil
		}
	}
	return execute.Result{}, nil
}

// Put records the upload as "put:<dest>" and keeps the content.
func (f *FakeRunner) Put(ctx context.Context, r io.Reader, dest string, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, PutPrefix+dest)
	for _, rl := range f.failures {
		if strings.Contains(PutPrefix+dest, rl.substr) {
			return vm_err.NewCommandExecutionError(PutPrefix+dest, rl.result.ExitCode, rl.result.Stderr)
		}
	}
	f.files[dest] = WrittenFile{Content: string(data), Mode: mode}
	return nil
}

// Commands returns a copy of everything recorded so far.
func (f *FakeRunner) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	copy(out, f.commands)
	return out
}

// File returns what Put wrote to dest.
func (f *FakeRunner) File(dest string) (WrittenFile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf, ok := f.files[dest]
	return wf, ok
}

// Index returns the position of the first command containing substr, or -1.
func (f *FakeRunner) Index(substr string) int {
	for i, cmd := range f.Commands() {
		if strings.Contains(cmd, substr) {
			return i
		}
	}
	return -1
}

// Ran reports whether any recorded command contains substr.
func (f *FakeRunner) Ran(substr string) bool {
	return f.Index(substr) >= 0
}

// Close counts the call; FakeRunner holds no connection.
func (f *FakeRunner) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Closed reports how many times Close was called.
func (f *FakeRunner) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
