// Package sshexec executes single commands on remote hosts over short-lived
// SSH sessions. Every call opens its own connection, runs, and closes —
// there is no pooling. The per-call setup cost buys fault isolation: a
// wedged server can only ever cost one call its timeout.
package sshexec

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	gossh "golang.org/x/crypto/ssh"
)

// Target identifies one SSH endpoint and its credentials. Key auth wins
// over password auth when both are set.
type Target struct {
	Host     string
	Port     int
	User     string
	KeyPath  string
	Password string
}

// Addr returns the host:port dial address.
func (t Target) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Runner runs remote commands with bounded timeouts.
type Runner struct {
	connectTimeout time.Duration
	commandTimeout time.Duration
}

// NewRunner returns a Runner. Zero timeouts fall back to 10s connect / 30s
// command.
func NewRunner(connectTimeout, commandTimeout time.Duration) *Runner {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	if commandTimeout <= 0 {
		commandTimeout = 30 * time.Second
	}
	return &Runner{connectTimeout: connectTimeout, commandTimeout: commandTimeout}
}

func authMethods(t Target) ([]gossh.AuthMethod, error) {
	if t.KeyPath != "" {
		keyData, err := os.ReadFile(t.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		signer, err := gossh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		return []gossh.AuthMethod{gossh.PublicKeys(signer)}, nil
	}
	if t.Password != "" {
		return []gossh.AuthMethod{gossh.Password(t.Password)}, nil
	}
	return nil, fmt.Errorf("no SSH credentials for %s", t.Addr())
}

// connect dials and authenticates, honoring ctx for the TCP dial.
func (r *Runner) connect(ctx context.Context, t Target) (*gossh.Client, error) {
	auth, err := authMethods(t)
	if err != nil {
		return nil, err
	}

	cfg := &gossh.ClientConfig{
		User:            t.User,
		Auth:            auth,
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         r.connectTimeout,
	}

	d := net.Dialer{Timeout: r.connectTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.Addr())
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", t.Addr(), err)
	}

	sshConn, chans, reqs, err := gossh.NewClientConn(conn, t.Addr(), cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s: %w", t.Addr(), err)
	}
	return gossh.NewClient(sshConn, chans, reqs), nil
}

// Run executes command on the target and returns its stdout. A non-zero
// exit returns an error carrying stderr. The call is bounded by the
// runner's command timeout (or ctx, whichever fires first); on timeout the
// connection is torn down so the remote side cannot hold the call hostage.
func (r *Runner) Run(ctx context.Context, t Target, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	client, err := r.connect(ctx, t)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(command); err != nil {
		return "", fmt.Errorf("starting command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = strings.TrimSpace(stdout.String())
			}
			return "", fmt.Errorf("remote command failed: %s: %w", msg, err)
		}
		return stdout.String(), nil
	case <-ctx.Done():
		client.Close() // unblocks session.Wait
		return "", fmt.Errorf("command on %s: %w", t.Addr(), ctx.Err())
	}
}

// tunnelConn ties the lifetime of the SSH client to the forwarded
// connection so closing one closes both.
type tunnelConn struct {
	net.Conn
	client *gossh.Client
}

func (c *tunnelConn) Close() error {
	err := c.Conn.Close()
	c.client.Close()
	return err
}

// Dial opens a connection to addr as seen from the target host, forwarded
// through a fresh SSH connection. Closing the returned conn also closes the
// underlying SSH client.
func (r *Runner) Dial(ctx context.Context, t Target, addr string) (net.Conn, error) {
	client, err := r.connect(ctx, t)
	if err != nil {
		return nil, err
	}
	conn, err := client.Dial("tcp", addr)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("forwarding to %s via %s: %w", addr, t.Addr(), err)
	}
	return &tunnelConn{Conn: conn, client: client}, nil
}
