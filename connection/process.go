// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Compile-time interface check.
var _ Connection = (*Process)(nil)

// Process drives a local interactive program (a shell, a vendor CLI)
// through pipes. Stdout and stderr are merged into one ordered
// stream, matching what a terminal user would see.
type Process struct {
	hub

	path string
	args []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	closed bool
	pumped sync.WaitGroup
}

// NewProcess creates a process connection for the given program. The
// program is not started until Open.
func NewProcess(path string, args ...string) *Process {
	return &Process{path: path, args: args}
}

// ID returns "exec:<path>".
func (p *Process) ID() string { return "exec:" + p.path }

// Open starts the program and the delivery goroutine.
func (p *Process) Open(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.path, p.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe for %s: %w", p.path, err)
	}
	reader, writer := io.Pipe()
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", p.path, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cmd.Process.Kill()
		cmd.Wait()
		return fmt.Errorf("open on closed connection %s", p.ID())
	}
	p.cmd = cmd
	p.stdin = stdin
	p.pumped.Add(1)
	p.mu.Unlock()

	// Reap the process so the pipe writer is closed on exit and the
	// pump sees EOF.
	go func() {
		err := cmd.Wait()
		writer.CloseWithError(err)
	}()
	go p.pump(reader)
	return nil
}

func (p *Process) pump(reader io.Reader) {
	defer p.pumped.Done()
	buffer := make([]byte, 4096)
	for {
		n, err := reader.Read(buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			p.deliver(chunk)
		}
		if err != nil {
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if !closed {
				p.fail(fmt.Errorf("reading %s: %w", p.ID(), err))
			}
			return
		}
	}
}

// Send writes data to the program's stdin.
func (p *Process) Send(data []byte) error {
	p.mu.Lock()
	stdin := p.stdin
	closed := p.closed
	p.mu.Unlock()
	if closed || stdin == nil {
		return fmt.Errorf("send on closed connection %s", p.ID())
	}
	if _, err := stdin.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", p.ID(), err)
	}
	return nil
}

// Close kills the program and waits for delivery to stop.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cmd, stdin := p.cmd, p.stdin
	p.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
		p.pumped.Wait()
	}
	return nil
}

// Subscribe registers a data-arrival callback.
func (p *Process) Subscribe(fn func(chunk []byte)) (cancel func()) {
	return p.subscribeData(fn)
}

// SubscribeErrors registers a fatal-error callback.
func (p *Process) SubscribeErrors(fn func(err error)) (cancel func()) {
	return p.subscribeErrors(fn)
}
