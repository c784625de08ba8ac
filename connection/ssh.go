// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Compile-time interface check.
var _ Connection = (*SSH)(nil)

// SSHConfig parameterizes an SSH connection.
type SSHConfig struct {
	// Address is the SSH endpoint in "host:port" form.
	Address string

	// User is the login user.
	User string

	// Password enables password authentication when non-empty.
	Password string

	// PrivateKey enables public-key authentication when non-empty.
	// PEM-encoded.
	PrivateKey []byte

	// HostKeyCallback verifies the server host key. When nil the
	// host key is NOT verified (ssh.InsecureIgnoreHostKey) — fine
	// for lab devices on a management network, wrong for anything
	// else.
	HostKeyCallback ssh.HostKeyCallback

	// Term is the TERM value for the requested PTY. Defaults to
	// "xterm".
	Term string
}

// SSH drives an interactive shell over an SSH session with a
// requested PTY. With a PTY, the remote stderr is merged into the
// stream, so a single delivery goroutine sees everything in order.
type SSH struct {
	hub

	config SSHConfig

	mu     sync.Mutex
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	closed bool
	pumped sync.WaitGroup
}

// NewSSH creates an SSH connection. Not established until Open.
func NewSSH(config SSHConfig) *SSH {
	if config.Term == "" {
		config.Term = "xterm"
	}
	return &SSH{config: config}
}

// ID returns "ssh://<user>@<address>".
func (s *SSH) ID() string {
	return fmt.Sprintf("ssh://%s@%s", s.config.User, s.config.Address)
}

// Open dials, authenticates, requests a PTY, starts the remote
// shell, and starts the delivery goroutine.
func (s *SSH) Open(ctx context.Context) error {
	clientConfig, err := s.clientConfig()
	if err != nil {
		return err
	}

	var dialer net.Dialer
	raw, err := dialer.DialContext(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", s.config.Address, err)
	}
	conn, channels, requests, err := ssh.NewClientConn(raw, s.config.Address, clientConfig)
	if err != nil {
		raw.Close()
		return fmt.Errorf("ssh handshake with %s: %w", s.config.Address, err)
	}
	client := ssh.NewClient(conn, channels, requests)

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return fmt.Errorf("opening ssh session on %s: %w", s.config.Address, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	if err := sess.RequestPty(s.config.Term, 40, 120, modes); err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("requesting pty on %s: %w", s.config.Address, err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("ssh stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("ssh stdout pipe: %w", err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("starting remote shell on %s: %w", s.config.Address, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sess.Close()
		client.Close()
		return fmt.Errorf("open on closed connection %s", s.ID())
	}
	s.client = client
	s.sess = sess
	s.stdin = stdin
	s.pumped.Add(1)
	s.mu.Unlock()

	go s.pump(stdout)
	return nil
}

func (s *SSH) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if len(s.config.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(s.config.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parsing ssh private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if s.config.Password != "" {
		auth = append(auth, ssh.Password(s.config.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("ssh connection %s: no authentication configured", s.ID())
	}

	hostKey := s.config.HostKeyCallback
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey() //nolint:gosec // documented opt-out
	}
	return &ssh.ClientConfig{
		User:            s.config.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
	}, nil
}

func (s *SSH) pump(stdout io.Reader) {
	defer s.pumped.Done()
	buffer := make([]byte, 4096)
	for {
		n, err := stdout.Read(buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			s.deliver(chunk)
		}
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.fail(fmt.Errorf("reading %s: %w", s.ID(), err))
			}
			return
		}
	}
}

// Send writes data to the remote shell's stdin.
func (s *SSH) Send(data []byte) error {
	s.mu.Lock()
	stdin := s.stdin
	closed := s.closed
	s.mu.Unlock()
	if closed || stdin == nil {
		return fmt.Errorf("send on closed connection %s", s.ID())
	}
	if _, err := stdin.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", s.ID(), err)
	}
	return nil
}

// Close tears down the session and client and waits for delivery to
// stop.
func (s *SSH) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sess, client := s.sess, s.client
	s.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	if client != nil {
		client.Close()
	}
	if sess != nil {
		s.pumped.Wait()
	}
	return nil
}

// Subscribe registers a data-arrival callback.
func (s *SSH) Subscribe(fn func(chunk []byte)) (cancel func()) {
	return s.subscribeData(fn)
}

// SubscribeErrors registers a fatal-error callback.
func (s *SSH) SubscribeErrors(fn func(err error)) (cancel func()) {
	return s.subscribeErrors(fn)
}
