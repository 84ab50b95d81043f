package sshpool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// DialSSH is the production Dialer. It opens a TCP connection, performs
// the SSH handshake with password authentication, and wraps the resulting
// client in a Transport. Hosts without an explicit port default to 22.
func DialSSH(ctx context.Context, host, user, password string) (Transport, error) {
	cfg := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         DefaultConnectTimeout,
	}

	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "22")
	}

	dialer := net.Dialer{}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	return &sshTransport{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// sshTransport implements Transport over a multiplexed *ssh.Client.
// Each Run and StartProcess opens its own session channel.
type sshTransport struct {
	client *ssh.Client
}

func (t *sshTransport) Run(ctx context.Context, command string) (string, string, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(command); err != nil {
		return "", "", fmt.Errorf("start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		// Closing the session unblocks the Wait goroutine.
		session.Close()
		return stdout.String(), stderr.String(), ctx.Err()
	case err := <-done:
		if err != nil {
			// A non-zero exit status still produced output the caller
			// wants; only transport-level failures are reported.
			if _, ok := err.(*ssh.ExitError); !ok {
				return stdout.String(), stderr.String(), err
			}
		}
		return stdout.String(), stderr.String(), nil
	}
}

func (t *sshTransport) StartProcess(command string) (Process, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open ssh session: %w", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := session.Start(command); err != nil {
		session.Close()
		return nil, fmt.Errorf("start command: %w", err)
	}

	return &sshProcess{session: session, stdout: stdout}, nil
}

func (t *sshTransport) Close() error {
	return t.client.Close()
}

type sshProcess struct {
	session *ssh.Session
	stdout  io.Reader
}

func (p *sshProcess) Stdout() io.Reader { return p.stdout }

func (p *sshProcess) Kill() error {
	// SIGKILL first for commands that ignore channel teardown, then close
	// the session channel itself.
	_ = p.session.Signal(ssh.SIGKILL)
	return p.session.Close()
}

func (p *sshProcess) Wait(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- p.session.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("wait for process exit: timeout after %s", timeout)
	}
}
