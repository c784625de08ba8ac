// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// Compile-time interface check.
var _ Connection = (*Serial)(nil)

// SerialConfig parameterizes a serial port connection.
type SerialConfig struct {
	// Port is the device path ("/dev/ttyUSB0", "COM3").
	Port string

	// BaudRate defaults to 115200.
	BaudRate int

	// DataBits defaults to 8.
	DataBits int

	// Parity defaults to none.
	Parity serial.Parity

	// StopBits defaults to one.
	StopBits serial.StopBits
}

// Serial drives a device on a local serial port (modems, embedded
// consoles, instruments).
type Serial struct {
	hub

	config SerialConfig

	mu     sync.Mutex
	port   serial.Port
	closed bool
	pumped sync.WaitGroup
}

// NewSerial creates a serial connection. The port is not opened until
// Open.
func NewSerial(config SerialConfig) *Serial {
	if config.BaudRate == 0 {
		config.BaudRate = 115200
	}
	if config.DataBits == 0 {
		config.DataBits = 8
	}
	return &Serial{config: config}
}

// ID returns "serial://<port>".
func (s *Serial) ID() string { return "serial://" + s.config.Port }

// Open opens the port and starts the delivery goroutine. Serial port
// opening does not block on a remote peer, so ctx is unused beyond an
// early-cancellation check.
func (s *Serial) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	port, err := serial.Open(s.config.Port, &serial.Mode{
		BaudRate: s.config.BaudRate,
		DataBits: s.config.DataBits,
		Parity:   s.config.Parity,
		StopBits: s.config.StopBits,
	})
	if err != nil {
		return fmt.Errorf("opening serial port %s: %w", s.config.Port, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		port.Close()
		return fmt.Errorf("open on closed connection %s", s.ID())
	}
	s.port = port
	s.pumped.Add(1)
	s.mu.Unlock()

	go s.pump(port)
	return nil
}

func (s *Serial) pump(port serial.Port) {
	defer s.pumped.Done()
	buffer := make([]byte, 4096)
	for {
		n, err := port.Read(buffer)
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

// Send writes data to the port.
func (s *Serial) Send(data []byte) error {
	s.mu.Lock()
	port := s.port
	closed := s.closed
	s.mu.Unlock()
	if closed || port == nil {
		return fmt.Errorf("send on closed connection %s", s.ID())
	}
	if _, err := port.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", s.ID(), err)
	}
	return nil
}

// Close closes the port and waits for the delivery goroutine.
func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	port := s.port
	s.mu.Unlock()

	if port != nil {
		port.Close()
		s.pumped.Wait()
	}
	return nil
}

// Subscribe registers a data-arrival callback.
func (s *Serial) Subscribe(fn func(chunk []byte)) (cancel func()) {
	return s.subscribeData(fn)
}

// SubscribeErrors registers a fatal-error callback.
func (s *Serial) SubscribeErrors(fn func(err error)) (cancel func()) {
	return s.subscribeErrors(fn)
}
