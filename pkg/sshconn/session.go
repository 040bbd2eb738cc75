package sshconn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

var (
	ErrAuth    = errors.New("ssh authentication failed")
	ErrTimeout = errors.New("remote command timed out")
)

// ConnectError reports a failure to reach or authenticate to the target
// host. The underlying error never contains the password.
type ConnectError struct {
	Host string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// CommandError reports a remote command that ran but exited non-zero.
type CommandError struct {
	Err    error
	Stderr string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("remote command failed: %v", e.Err)
	}
	return fmt.Sprintf("remote command failed: %v: %s", e.Err, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Session is one authenticated connection to a target host. Commands run
// one at a time over fresh ssh sessions on the same connection.
type Session struct {
	host    string
	client  *ssh.Client
	timeout time.Duration
}

// Open dials the target and authenticates with the given password. The
// host may carry an explicit port, otherwise 22 is used. Host keys are
// not verified, matching the sshpass-based collector this replaces.
func Open(ctx context.Context, host, user, password string, timeout time.Duration) (*Session, error) {
	addr := host
	if !strings.Contains(host, ":") {
		addr = net.JoinHostPort(host, "22")
	}

	cfg := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Host: host, Err: err}
	}

	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, &ConnectError{Host: host, Err: ErrAuth}
		}
		return nil, &ConnectError{Host: host, Err: err}
	}

	return &Session{
		host:    host,
		client:  ssh.NewClient(sc, chans, reqs),
		timeout: timeout,
	}, nil
}

// Run executes one command and returns its stdout. The session-wide
// command timeout applies; on timeout or context cancellation the
// in-flight command is aborted, not retried.
func (s *Session) Run(ctx context.Context, cmd string) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", &ConnectError{Host: s.host, Err: err}
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	if err := sess.Start(cmd); err != nil {
		return "", &ConnectError{Host: s.host, Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- sess.Wait()
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return "", &CommandError{Err: err, Stderr: stderr.String()}
		}
		return stdout.String(), nil
	case <-ctx.Done():
		sess.Close()
		return "", ctx.Err()
	case <-timer.C:
		sess.Close()
		return "", fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
	}
}

func (s *Session) Close() error {
	return s.client.Close()
}
