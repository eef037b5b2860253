package console

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/retry"
)

// terminalType is requested for the remote PTY.
const terminalType = "vt100"

// shell is one established console: SSH client, session and its pipes.
type shell struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (s *shell) Close() error {
	var first error
	if s.session != nil {
		if err := s.session.Close(); err != nil && !stderrors.Is(err, io.EOF) {
			first = err
		}
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// hostKeyCallback selects known_hosts verification when a file is configured.
func hostKeyCallback(cfg Config) (ssh.HostKeyCallback, error) {
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "Input", "hostKeyCallback", "load known hosts")
		}
		return cb, nil
	}
	if cfg.InsecureHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return nil, errors.WrapFatal(errors.ErrMissingConfig, "Input", "hostKeyCallback", "select host key policy")
}

func clientConfig(cfg Config, creds Credentials, hostKey ssh.HostKeyCallback) *ssh.ClientConfig {
	password := creds.Password
	return &ssh.ClientConfig{
		User: creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKey,
		Timeout:         cfg.DialTimeout,
	}
}

// dial opens the SSH connection, requests the PTY and starts the shell.
// Credential and authentication problems are marked non-retryable.
func (in *Input) dial(ctx context.Context) (*shell, error) {
	creds, err := LoadCredentials(in.config.CredentialsFile)
	if err != nil {
		return nil, retry.NonRetryable(err)
	}
	hostKey, err := hostKeyCallback(in.config)
	if err != nil {
		return nil, retry.NonRetryable(err)
	}

	addr := in.config.Addr()
	dialer := &net.Dialer{Timeout: in.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrNoConnection, err),
			"Input", "dial", fmt.Sprintf("connect to %s", addr))
	}

	// The handshake has no context of its own.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	if in.config.DialTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(in.config.DialTimeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig(in.config, creds, hostKey))
	stop()
	if err != nil {
		_ = conn.Close()
		if isAuthFailure(err) {
			return nil, retry.NonRetryable(errors.WrapFatal(
				fmt.Errorf("%w: %v", errors.ErrAuthFailed, err), "Input", "dial", "authenticate"))
		}
		return nil, errors.WrapTransient(err, "Input", "dial", "SSH handshake")
	}
	_ = conn.SetDeadline(time.Time{})

	sh := &shell{client: ssh.NewClient(sshConn, chans, reqs)}
	if err := in.openShell(sh); err != nil {
		_ = sh.Close()
		return nil, err
	}
	return sh, nil
}

func (in *Input) openShell(sh *shell) error {
	session, err := sh.client.NewSession()
	if err != nil {
		return errors.WrapTransient(err, "Input", "openShell", "open session")
	}
	sh.session = session

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 38400,
		ssh.TTY_OP_OSPEED: 38400,
	}
	if err := session.RequestPty(terminalType, in.config.Rows, in.config.Cols, modes); err != nil {
		return errors.WrapTransient(err, "Input", "openShell", "request PTY")
	}
	if sh.stdin, err = session.StdinPipe(); err != nil {
		return errors.WrapTransient(err, "Input", "openShell", "stdin pipe")
	}
	if sh.stdout, err = session.StdoutPipe(); err != nil {
		return errors.WrapTransient(err, "Input", "openShell", "stdout pipe")
	}
	if err := session.Shell(); err != nil {
		return errors.WrapTransient(err, "Input", "openShell", "start shell")
	}
	return nil
}

// startCommand waits for the shell, types the configured command and lets
// the remote program draw its first screen.
func (in *Input) startCommand(ctx context.Context, sh *shell) error {
	if err := sleepCtx(ctx, in.config.ReadyDelay); err != nil {
		return err
	}
	if in.config.Command != "" {
		if _, err := io.WriteString(sh.stdin, in.config.Command+"\n"); err != nil {
			return errors.WrapTransient(err, "Input", "startCommand", "send startup command")
		}
	}
	return sleepCtx(ctx, in.config.SettleDelay)
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
