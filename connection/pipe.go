// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Compile-time interface check.
var _ Connection = (*Pipe)(nil)

var pipeCounter atomic.Int64

// Pipe is an in-memory Connection whose far end is another Pipe.
// Bytes sent on one end are delivered synchronously to the other
// end's subscribers, preserving order. Tests play the device on one
// end and run commands on the other.
type Pipe struct {
	hub
	id   string
	peer *Pipe

	mu     sync.Mutex
	closed bool
}

// NewPipe returns a connected Pipe pair sharing one connection
// identity.
func NewPipe() (*Pipe, *Pipe) {
	id := fmt.Sprintf("pipe-%d", pipeCounter.Add(1))
	near := &Pipe{id: id}
	far := &Pipe{id: id}
	near.peer = far
	far.peer = near
	return near, far
}

// ID returns the shared pair identity.
func (p *Pipe) ID() string { return p.id }

// Open is a no-op: a Pipe is connected at construction.
func (p *Pipe) Open(ctx context.Context) error { return nil }

// Close marks the pipe closed. Subsequent Sends on either end fail.
func (p *Pipe) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Send delivers data to the far end's subscribers, synchronously.
func (p *Pipe) Send(data []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("send on closed pipe %s", p.id)
	}
	p.peer.mu.Lock()
	peerClosed := p.peer.closed
	p.peer.mu.Unlock()
	if peerClosed {
		return fmt.Errorf("send on pipe %s: far end closed", p.id)
	}
	p.peer.deliver(data)
	return nil
}

// Subscribe registers a data callback on this end.
func (p *Pipe) Subscribe(fn func(chunk []byte)) (cancel func()) {
	return p.subscribeData(fn)
}

// SubscribeErrors registers a fatal-error callback on this end.
func (p *Pipe) SubscribeErrors(fn func(err error)) (cancel func()) {
	return p.subscribeErrors(fn)
}

// Fail injects a fatal transport failure on this end. Test hook for
// exercising the runner's I/O failure propagation.
func (p *Pipe) Fail(err error) { p.fail(err) }
