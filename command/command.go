// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/parley-sh/parley/connection"
	"github.com/parley-sh/parley/dispatch"
	"github.com/parley-sh/parley/lib/clock"
	"github.com/parley-sh/parley/observer"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Config parameterizes a Command.
type Config struct {
	// Text is the command string sent to the device, a pure function
	// of configuration built at construction time. Empty for pure
	// events that only observe the stream.
	Text string

	// Prompt recognizes command completion. Matched against complete
	// lines and against the growing partial tail, since a shell
	// prompt is never newline-terminated. With Embed set, Prompt is
	// instead the post-adoption prompt the outer command must still
	// see (nil: complete as soon as the embedded command does).
	Prompt *regexp.Regexp

	// Handlers is the ordered parser chain. Handlers mutate the
	// accumulator via the Command's Fields.
	Handlers []dispatch.Handler

	// Fields is the accumulator the handlers close over. Nil creates
	// a fresh one; pass it explicitly when the handler chain is built
	// before the command.
	Fields *Fields

	// ErrorPatterns turn matching complete lines into a DeviceError
	// failure outcome. Checked after Handlers, before the prompt.
	ErrorPatterns []*regexp.Regexp

	// SkipEcho claims complete lines that merely echo Text, so
	// parsers never mistake the echo for output.
	SkipEcho bool

	// CompleteEmpty lets the prompt complete the command even when
	// no handler stored any field. The result is then the empty
	// accumulator; callers wanting raw output read Raw.
	CompleteEmpty bool

	// Newlines are the dispatcher's split markers. Defaults to
	// dispatch.DefaultNewlines.
	Newlines []string

	// SendNewline is appended to Text on send. Defaults to "\n".
	SendNewline string

	// Timeout is the command's budget, covering both scheduler queue
	// time and execution. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Embed nests another Command: the byte stream is forwarded
	// verbatim into it, its timeout extensions are mirrored, and its
	// result is adopted. The embedded command never sends its own
	// Text — the outer Text carries it (for example
	// "sudo <embedded text>").
	Embed *Command

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Command is an Observer that sends a constructed string and parses
// the response into a structured result.
type Command struct {
	*observer.Observer

	conn   connection.Connection
	config Config
	disp   *dispatch.Dispatcher
	fields *Fields
	logger *slog.Logger

	mu      sync.Mutex
	sent    bool
	adopted bool
	adoptedValue any
}

// New builds a Command bound to conn. The command string is fixed
// here; nothing is sent until the runner grants the connection and
// calls Send.
func New(conn connection.Connection, config Config) *Command {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.SendNewline == "" {
		config.SendNewline = "\n"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fields := config.Fields
	if fields == nil {
		fields = NewFields()
	}
	c := &Command{
		Observer: observer.New(config.Clock, logger),
		conn:     conn,
		config:   config,
		fields:   fields,
		logger:   logger,
	}

	handlers := make([]dispatch.Handler, 0, len(config.Handlers)+2)
	if config.SkipEcho && config.Text != "" {
		handlers = append(handlers, dispatch.HandlerFunc(c.handleEcho))
	}
	handlers = append(handlers, config.Handlers...)
	if len(config.ErrorPatterns) > 0 {
		handlers = append(handlers, dispatch.HandlerFunc(c.handleErrorLine))
	}

	c.disp = dispatch.New(dispatch.Config{
		Newlines: config.Newlines,
		Handlers: handlers,
		Fallback: dispatch.HandlerFunc(c.handlePrompt),
		Logger:   logger,
		OnPanic: func(recovered any) {
			c.SetError(fmt.Errorf("line handler panicked: %v", recovered))
		},
	})

	if embedded := config.Embed; embedded != nil {
		// Mirror the embedded command's timeout extensions so the
		// outer budget grows in step.
		embedded.OnExtend(func(delta time.Duration) {
			c.ExtendTimeout(delta)
		})
	}
	return c
}

// Start moves the command (and any embedded command) to Running. The
// embedded command is marked sent: its text travels inside the outer
// command's Text.
func (c *Command) Start(timeout time.Duration) error {
	if err := c.Observer.Start(timeout); err != nil {
		return err
	}
	if embedded := c.config.Embed; embedded != nil {
		if err := embedded.Start(embedded.config.Timeout); err != nil {
			return fmt.Errorf("starting embedded command: %w", err)
		}
		embedded.markSent()
	}
	return nil
}

// ConfiguredTimeout returns the budget the runner should start the
// command with.
func (c *Command) ConfiguredTimeout() time.Duration { return c.config.Timeout }

// Text returns the command string.
func (c *Command) Text() string { return c.config.Text }

// Connection returns the bound connection.
func (c *Command) Connection() connection.Connection { return c.conn }

// Fields returns the partial-result accumulator. Handlers mutate it
// as output arrives; on success it is also the observer's value.
func (c *Command) Fields() *Fields { return c.fields }

// Raw returns the verbatim device output received so far.
func (c *Command) Raw() []byte { return c.disp.Raw() }

// Send writes Text plus the send newline to the connection, exactly
// once. A no-op for pure events (empty Text) and on repeat calls. A
// transport failure becomes the command's failure outcome.
func (c *Command) Send() error {
	c.mu.Lock()
	if c.sent || c.config.Text == "" {
		c.mu.Unlock()
		return nil
	}
	c.sent = true
	c.mu.Unlock()

	if err := c.conn.Send([]byte(c.config.Text + c.config.SendNewline)); err != nil {
		err = fmt.Errorf("sending %q: %w", c.config.Text, err)
		c.SetError(err)
		return err
	}
	return nil
}

// markSent flags an embedded command whose text was carried by its
// outer command.
func (c *Command) markSent() {
	c.mu.Lock()
	c.sent = true
	c.mu.Unlock()
}

// Feed pushes a received chunk into the command's parsing path. With
// an embedded command configured, the chunk is also forwarded
// verbatim into the embedded command's own feed path, and the
// embedded result is adopted once it completes.
func (c *Command) Feed(chunk []byte) {
	if c.Done() {
		return
	}
	c.disp.Feed(chunk)

	if embedded := c.config.Embed; embedded != nil {
		if !embedded.Done() {
			embedded.Feed(chunk)
		}
		c.maybeAdopt(embedded)
	}
}

// maybeAdopt takes the embedded command's outcome as this command's
// own, once. When a post-adoption Prompt is configured, a successful
// embedded value is stashed and the prompt fallback completes the
// command on the next prompt transition.
func (c *Command) maybeAdopt(embedded *Command) {
	if !embedded.Done() {
		return
	}
	c.mu.Lock()
	if c.adopted {
		c.mu.Unlock()
		return
	}
	c.adopted = true
	c.mu.Unlock()

	value, err := embedded.Result()
	if err != nil {
		c.SetError(fmt.Errorf("embedded command failed: %w", err))
		return
	}
	if c.config.Prompt == nil {
		c.SetResult(value)
		return
	}
	c.mu.Lock()
	c.adoptedValue = value
	c.mu.Unlock()
}

// handleEcho claims the complete line that merely echoes the sent
// command string.
func (c *Command) handleEcho(line string, complete bool) dispatch.Disposition {
	if complete && line == c.config.Text {
		return dispatch.Handled
	}
	return dispatch.NotHandled
}

// handleErrorLine turns a device error line into the failure
// outcome.
func (c *Command) handleErrorLine(line string, complete bool) dispatch.Disposition {
	if !complete {
		return dispatch.NotHandled
	}
	for _, pattern := range c.config.ErrorPatterns {
		if pattern.MatchString(line) {
			c.SetError(&DeviceError{Command: c.config.Text, Line: line})
			return dispatch.Handled
		}
	}
	return dispatch.NotHandled
}

// handlePrompt is the dispatcher fallback: prompt detection. On
// match, a command with data (or CompleteEmpty) succeeds with its
// accumulator; an embed-mode command that has adopted a value
// completes with it.
func (c *Command) handlePrompt(line string, complete bool) dispatch.Disposition {
	if c.config.Prompt == nil || c.Done() {
		return dispatch.NotHandled
	}
	if !c.config.Prompt.MatchString(line) {
		return dispatch.NotHandled
	}

	if c.config.Embed != nil {
		c.mu.Lock()
		adopted := c.adopted
		value := c.adoptedValue
		c.mu.Unlock()
		if adopted && value != nil {
			c.SetResult(value)
			return dispatch.Handled
		}
		return dispatch.NotHandled
	}

	c.mu.Lock()
	sent := c.sent
	c.mu.Unlock()
	if c.config.Text != "" && !sent {
		return dispatch.NotHandled
	}
	if c.fields.Len() == 0 && !c.config.CompleteEmpty {
		return dispatch.NotHandled
	}
	c.SetResult(c.fields)
	return dispatch.Handled
}
