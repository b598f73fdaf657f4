// pkg/execute/ssh.go

package execute

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/inventory"
	"github.com/CodeMonkeyCybersecurity/wazuh-vms/pkg/vm_err"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHOptions tune how inventory hosts are dialed.
type SSHOptions struct {
	// KnownHostsFile enables host key verification when set.
	KnownHostsFile string
	DialTimeout    time.Duration
}

// SSHExecutor runs each command in its own session on a shared client.
type SSHExecutor struct {
	client *ssh.Client
}

// DialSSH connects to host and returns a Shell executing there.
func DialSSH(ctx context.Context, host *inventory.Host, opts SSHOptions) (*Shell, error) {
	log := otelzap.Ctx(ctx)

	auths, err := authMethods(host)
	if err != nil {
		return nil, err
	}

	hostKeyCB := ssh.InsecureIgnoreHostKey()
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, vm_err.NewConfigurationError("cannot load known_hosts "+opts.KnownHostsFile, err)
		}
		hostKeyCB = cb
	} else {
		log.Debug("Host key verification disabled", zap.String("host", host.Address))
	}

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg := &ssh.ClientConfig{
		User:            host.User,
		Auth:            auths,
		HostKeyCallback: hostKeyCB,
		Timeout:         timeout,
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", host.Addr())
	if err != nil {
		return nil, vm_err.NewNetworkError("cannot reach "+host.Addr(), err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, host.Addr(), cfg)
	if err != nil {
		_ = conn.Close()
		return nil, vm_err.NewNetworkError("ssh handshake with "+host.Addr()+" as "+host.User+" failed", err)
	}

	log.Info("Connected to host", zap.String("host", host.Address), zap.String("user", host.User))
	return NewShell(&SSHExecutor{client: ssh.NewClient(c, chans, reqs)}, host.User+"@"+host.Address), nil
}

// Exec runs cmd in a new session. Cancelling ctx kills the remote command.
func (s *SSHExecutor) Exec(ctx context.Context, cmd string, stdin io.Reader) (Result, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return Result{ExitCode: -1}, cerr.Wrap(err, "open ssh session")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdin = stdin
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Signal(ssh.SIGKILL)
			_ = session.Close()
		case <-done:
		}
	}()

	err = session.Run(cmd)
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, ctxErr
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	}
	res.ExitCode = -1
	return res, err
}

// Close closes the underlying client.
func (s *SSHExecutor) Close() error {
	return s.client.Close()
}

func authMethods(host *inventory.Host) ([]ssh.AuthMethod, error) {
	var auths []ssh.AuthMethod

	if host.PrivateKeyFile != "" {
		signer, err := loadSigner(expandHome(host.PrivateKeyFile))
		if err != nil {
			return nil, vm_err.NewConfigurationError("cannot load private key "+host.PrivateKeyFile, err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}
	if host.Password != "" {
		auths = append(auths, ssh.Password(host.Password))
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	if len(auths) == 0 {
		return nil, vm_err.NewConfigurationError("no ssh credentials for host "+host.Name, nil,
			"Set ansible_ssh_private_key_file or ansible_password in the inventory",
			"Or export SSH_AUTH_SOCK with a loaded agent")
	}
	return auths, nil
}

func loadSigner(path string) (ssh.Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ssh.ParsePrivateKey(b)
	if err == nil {
		return s, nil
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return nil, cerr.New("private key is encrypted; load it into ssh-agent instead")
	}
	return nil, err
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
