// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Compile-time interface check.
var _ Connection = (*TCP)(nil)

// TCP connects to a raw TCP device port (telnet-style console
// servers, terminal servers, instrument ports). No telnet option
// negotiation is performed — the stream is passed through verbatim.
type TCP struct {
	hub

	address string

	mu     sync.Mutex
	conn   net.Conn
	closed bool
	pumped sync.WaitGroup
}

// NewTCP creates a TCP connection to address ("host:port"). The
// connection is not established until Open.
func NewTCP(address string) *TCP {
	return &TCP{address: address}
}

// ID returns "tcp://<address>".
func (t *TCP) ID() string { return "tcp://" + t.address }

// Open dials the device and starts the delivery goroutine.
func (t *TCP) Open(ctx context.Context) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", t.address)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", t.address, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return fmt.Errorf("open on closed connection %s", t.ID())
	}
	t.conn = conn
	t.pumped.Add(1)
	t.mu.Unlock()

	go t.pump(conn)
	return nil
}

// pump is the single delivery goroutine: it reads the socket and
// fans chunks out in arrival order.
func (t *TCP) pump(conn net.Conn) {
	defer t.pumped.Done()
	buffer := make([]byte, 4096)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			t.deliver(chunk)
		}
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				t.fail(fmt.Errorf("reading %s: %w", t.ID(), err))
			}
			return
		}
	}
}

// Send writes data to the socket.
func (t *TCP) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()
	if closed || conn == nil {
		return fmt.Errorf("send on closed connection %s", t.ID())
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", t.ID(), err)
	}
	return nil
}

// Close shuts the socket down and waits for the delivery goroutine.
func (t *TCP) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
		t.pumped.Wait()
	}
	return nil
}

// Subscribe registers a data-arrival callback.
func (t *TCP) Subscribe(fn func(chunk []byte)) (cancel func()) {
	return t.subscribeData(fn)
}

// SubscribeErrors registers a fatal-error callback.
func (t *TCP) SubscribeErrors(fn func(err error)) (cancel func()) {
	return t.subscribeErrors(fn)
}
