// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"bytes"
	"log/slog"
	"sync"
)

// Disposition is a handler's verdict on one line event.
type Disposition int

const (
	// NotHandled passes the line to the next handler in the chain.
	NotHandled Disposition = iota

	// Handled claims the line: no further handler (including the
	// fallback) runs for this event.
	Handled
)

// Handler consumes one line event. The line never includes its
// terminator. Events with complete=false carry the current
// unterminated tail and may repeat with a longer tail on subsequent
// feeds.
type Handler interface {
	HandleLine(line string, complete bool) Disposition
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(line string, complete bool) Disposition

// HandleLine calls f.
func (f HandlerFunc) HandleLine(line string, complete bool) Disposition {
	return f(line, complete)
}

// DefaultNewlines are the split markers used when none are configured.
// CRLF is listed before LF so a CRLF terminator is consumed as one
// marker rather than leaving a stray CR on the line.
var DefaultNewlines = []string{"\r\n", "\n"}

// Config parameterizes a Dispatcher.
type Config struct {
	// Newlines are the line terminators to split on, tried at each
	// position longest-match-first. Defaults to DefaultNewlines.
	Newlines []string

	// Handlers is the ordered chain tried for every line event.
	Handlers []Handler

	// Fallback runs last when no chain handler claims the event.
	// Typically prompt/completion detection. May be nil.
	Fallback Handler

	// OnPanic is invoked with the recovered value when a handler
	// panics. A panicking handler must never take down the shared
	// delivery path. Defaults to a slog warning.
	OnPanic func(recovered any)

	// Logger for diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Dispatcher reassembles lines from a chunked byte stream and drives
// the handler chain. Feed must be called from a single goroutine (the
// connection's delivery path); Raw is safe to call from any
// goroutine.
type Dispatcher struct {
	newlines [][]byte
	handlers []Handler
	fallback Handler
	onPanic  func(recovered any)
	logger   *slog.Logger

	mu     sync.Mutex
	buffer []byte
	raw    bytes.Buffer
}

// New creates a Dispatcher from cfg.
func New(cfg Config) *Dispatcher {
	markers := cfg.Newlines
	if len(markers) == 0 {
		markers = DefaultNewlines
	}
	newlines := make([][]byte, len(markers))
	for i, m := range markers {
		newlines[i] = []byte(m)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	onPanic := cfg.OnPanic
	if onPanic == nil {
		onPanic = func(recovered any) {
			logger.Warn("line handler panicked", "panic", recovered)
		}
	}

	return &Dispatcher{
		newlines: newlines,
		handlers: cfg.Handlers,
		fallback: cfg.Fallback,
		onPanic:  onPanic,
		logger:   logger,
	}
}

// Feed appends chunk to the reassembly buffer, emits every newly
// completed line in order, and re-emits the unterminated tail (if
// any) as a partial event.
func (d *Dispatcher) Feed(chunk []byte) {
	d.mu.Lock()
	d.raw.Write(chunk)
	d.buffer = append(d.buffer, chunk...)

	var complete []string
	for {
		index, width := d.nextNewline(d.buffer)
		if index < 0 {
			break
		}
		complete = append(complete, string(d.buffer[:index]))
		d.buffer = d.buffer[index+width:]
	}
	tail := string(d.buffer)
	d.mu.Unlock()

	// Handlers run outside the lock: they may call back into code
	// that reads Raw.
	for _, line := range complete {
		d.emit(line, true)
	}
	if tail != "" {
		d.emit(tail, false)
	}
}

// Raw returns a copy of every byte fed so far, verbatim.
func (d *Dispatcher) Raw() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return bytes.Clone(d.raw.Bytes())
}

// nextNewline finds the earliest newline marker in buf. At equal
// positions the longest marker wins (CRLF over LF). Returns the index
// and marker width, or (-1, 0) when buf holds no terminator.
func (d *Dispatcher) nextNewline(buf []byte) (index, width int) {
	index = -1
	for _, marker := range d.newlines {
		at := bytes.Index(buf, marker)
		if at < 0 {
			continue
		}
		if index < 0 || at < index || (at == index && len(marker) > width) {
			index = at
			width = len(marker)
		}
	}
	return index, width
}

// emit runs the handler chain for one line event.
func (d *Dispatcher) emit(line string, complete bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.onPanic(recovered)
		}
	}()

	for _, handler := range d.handlers {
		if handler.HandleLine(line, complete) == Handled {
			return
		}
	}
	if d.fallback != nil {
		d.fallback.HandleLine(line, complete)
	}
}
