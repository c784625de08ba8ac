// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"log/slog"

	"github.com/parley-sh/parley/connection"
	"github.com/parley-sh/parley/lib/clock"
)

// Compile-time interface check.
var _ connection.Connection = (*Recorder)(nil)

// Recorder is a Connection that journals all traffic crossing it
// while behaving exactly like the wrapped connection. A journal
// failure never disturbs live traffic; it is logged and recording
// degrades.
type Recorder struct {
	inner  connection.Connection
	writer *Writer
	clk    clock.Clock
	logger *slog.Logger
	cancel func()
}

// NewRecorder wraps inner so every sent and received chunk is
// appended to writer. A nil clk defaults to the real clock; a nil
// logger defaults to slog.Default().
func NewRecorder(inner connection.Connection, writer *Writer, clk clock.Clock, logger *slog.Logger) *Recorder {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{inner: inner, writer: writer, clk: clk, logger: logger}
	r.cancel = inner.Subscribe(func(chunk []byte) {
		r.record(Received, chunk)
	})
	return r
}

// ID returns the wrapped connection's identity, so scheduling is
// unaffected by recording.
func (r *Recorder) ID() string { return r.inner.ID() }

// Open opens the wrapped connection.
func (r *Recorder) Open(ctx context.Context) error { return r.inner.Open(ctx) }

// Close stops recording, flushes the journal, and closes the wrapped
// connection.
func (r *Recorder) Close() error {
	r.cancel()
	if err := r.writer.Flush(); err != nil {
		r.logger.Warn("flushing session journal failed", "connection", r.ID(), "error", err)
	}
	return r.inner.Close()
}

// Send journals data and forwards it to the device.
func (r *Recorder) Send(data []byte) error {
	r.record(Sent, data)
	return r.inner.Send(data)
}

// Subscribe registers a data callback on the wrapped connection.
func (r *Recorder) Subscribe(fn func(chunk []byte)) (cancel func()) {
	return r.inner.Subscribe(fn)
}

// SubscribeErrors registers a fatal-error callback on the wrapped
// connection.
func (r *Recorder) SubscribeErrors(fn func(err error)) (cancel func()) {
	return r.inner.SubscribeErrors(fn)
}

func (r *Recorder) record(direction Direction, data []byte) {
	record := Record{
		Time:      r.clk.Now(),
		Direction: direction,
		Data:      append([]byte(nil), data...),
	}
	if err := r.writer.Append(record); err != nil {
		r.logger.Warn("journaling chunk failed",
			"connection", r.ID(), "direction", direction.String(), "error", err)
	}
}
