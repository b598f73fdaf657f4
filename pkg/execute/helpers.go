// pkg/execute/helpers.go

package execute

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	cerr "github.com/cockroachdb/errors"
)

// Replacement is a regular expression rewrite applied by ModifyFile.
type Replacement struct {
	Pattern string
	With    string
}

// Quote minimally quotes s for POSIX shells, using single quotes with the
// '\'' escape for embedded quotes.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		}
		switch r {
		case '-', '_', '.', '/', '@', ':', ',', '+', '=':
			return false
		}
		return true
	}) == -1 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ModifyFile reads path through r, applies each replacement in order and
// writes the result back, keeping the file's permission bits.
func ModifyFile(ctx context.Context, r Runner, path string, replacements []Replacement) error {
	content, mode, err := readFile(ctx, r, path)
	if err != nil {
		return err
	}
	for _, rep := range replacements {
		re, err := regexp.Compile(rep.Pattern)
		if err != nil {
			return vm_err.NewInternalError(fmt.Sprintf("invalid replacement pattern %q", rep.Pattern), err)
		}
		content = re.ReplaceAllString(content, rep.With)
	}
	if err := r.Put(ctx, strings.NewReader(content), path, mode); err != nil {
		return cerr.Wrapf(err, "rewrite %s", path)
	}
	return nil
}

// AppendFile adds text to the end of path, keeping its permission bits.
func AppendFile(ctx context.Context, r Runner, path, text string) error {
	content, mode, err := readFile(ctx, r, path)
	if err != nil {
		return err
	}
	if err := r.Put(ctx, strings.NewReader(content+text), path, mode); err != nil {
		return cerr.Wrapf(err, "append to %s", path)
	}
	return nil
}

// InstallFile uploads the local file src to dest on the target.
func InstallFile(ctx context.Context, r Runner, src, dest string, mode os.FileMode) error {
	f, err := os.Open(src)
	if err != nil {
		return vm_err.NewConfigurationError("cannot open bundled file "+src, err)
	}
	defer func() { _ = f.Close() }()
	return r.Put(ctx, f, dest, mode)
}

func readFile(ctx context.Context, r Runner, path string) (string, os.FileMode, error) {
	cmd := "sudo cat " + Quote(path)
	res, err := r.Output(ctx, cmd)
	if err != nil {
		return "", 0, err
	}
	if res.ExitCode != 0 {
		return "", 0, vm_err.NewCommandExecutionError(cmd, res.ExitCode, ExtractSummary(res.Stderr, 2))
	}

	mode := os.FileMode(0644)
	if st, err := r.Output(ctx, "sudo stat -c %a "+Quote(path)); err == nil && st.ExitCode == 0 {
		if m, perr := strconv.ParseUint(strings.TrimSpace(st.Stdout), 8, 32); perr == nil {
			mode = os.FileMode(m)
		}
	}
	return res.Stdout, mode, nil
}

// Connect returns a local shell when host is nil, otherwise an SSH shell to it.
func Connect(ctx context.Context, host *inventory.Host, opts SSHOptions) (*Shell, error) {
	if host == nil {
		return NewLocal(""), nil
	}
	return DialSSH(ctx, host, opts)
}

// Session is a Runner holding a connection that must be closed.
type Session interface {
	Runner
	Close() error
}

// Dialer opens a session to host; a nil host is the local machine.
type Dialer func(ctx context.Context, host *inventory.Host) (Session, error)

// NewDialer returns a Dialer backed by Connect.
func NewDialer(opts SSHOptions) Dialer {
	return func(ctx context.Context, host *inventory.Host) (Session, error) {
		s, err := Connect(ctx, host, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
