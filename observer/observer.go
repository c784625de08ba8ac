// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package observer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-sh/parley/lib/clock"
)

// State is an observer's lifecycle position.
type State int

const (
	// Unset: created, not yet started.
	Unset State = iota

	// Running: started, no terminal outcome yet.
	Running

	// Succeeded: a result value was set.
	Succeeded

	// Failed: an error outcome was set.
	Failed

	// TimedOut: the deadline elapsed before any outcome was set.
	TimedOut

	// Cancelled: cancelled by the caller before any outcome was set.
	Cancelled
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool { return s >= Succeeded }

func (s State) String() string {
	switch s {
	case Unset:
		return "unset"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed-out"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Observer is a pending asynchronous outcome. Safe for concurrent use:
// the handler chain, the runner's watchdog, and the caller may all
// touch it, and the first terminal write wins.
type Observer struct {
	clk    clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	value     any
	outcome   error
	startTime time.Time
	timeout   time.Duration
	deadline  time.Time
	onExtend  func(delta time.Duration)

	// done is closed on the transition to any terminal state.
	done chan struct{}
}

// New creates an Observer. A nil clk defaults to the real clock; a
// nil logger defaults to slog.Default().
func New(clk clock.Clock, logger *slog.Logger) *Observer {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		clk:    clk,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start moves the observer from Unset to Running and records the
// start time and deadline. Returns ErrAlreadyStarted otherwise.
func (o *Observer) Start(timeout time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Unset {
		return fmt.Errorf("starting observer in state %v: %w", o.state, ErrAlreadyStarted)
	}
	o.state = Running
	o.startTime = o.clk.Now()
	o.timeout = timeout
	o.deadline = o.startTime.Add(timeout)
	return nil
}

// SetResult records a successful outcome. A no-op with a logged
// warning when the observer already holds a terminal outcome or has
// not been started.
func (o *Observer) SetResult(value any) {
	o.terminal(Succeeded, value, nil)
}

// SetError records a failure outcome. Same idempotence guard as
// SetResult.
func (o *Observer) SetError(err error) {
	o.terminal(Failed, nil, err)
}

// MarkTimedOut records deadline expiry as the outcome. Called by the
// runner's watchdog, never by the observer itself.
func (o *Observer) MarkTimedOut() {
	o.mu.Lock()
	timeout := o.timeout
	o.mu.Unlock()
	o.terminal(TimedOut, nil, &TimeoutError{Timeout: timeout})
}

// Cancel moves the observer to Cancelled unless it already holds a
// terminal outcome. Subsequent SetResult and SetError calls become
// no-ops. Cancelling an unstarted observer is allowed.
func (o *Observer) Cancel() {
	o.mu.Lock()
	if o.state.Terminal() {
		o.mu.Unlock()
		return
	}
	o.state = Cancelled
	o.outcome = ErrCancelled
	close(o.done)
	o.mu.Unlock()
}

// terminal performs the Running→terminal transition. The first write
// wins; later writes are logged and dropped.
func (o *Observer) terminal(state State, value any, err error) {
	o.mu.Lock()
	if o.state.Terminal() {
		held := o.state
		o.mu.Unlock()
		o.logger.Warn("ignoring outcome write on finished observer",
			"held", held.String(), "attempted", state.String())
		return
	}
	if o.state == Unset {
		o.mu.Unlock()
		o.logger.Warn("ignoring outcome write on unstarted observer",
			"attempted", state.String())
		return
	}
	o.state = state
	o.value = value
	o.outcome = err
	close(o.done)
	o.mu.Unlock()
}

// ExtendTimeout grows the running observer's budget by delta and
// moves the deadline accordingly. Used when a command discovers
// mid-flight that more time is warranted (for example, forwarding an
// embedded command's budget). A no-op outside the Running state.
func (o *Observer) ExtendTimeout(delta time.Duration) {
	o.mu.Lock()
	if o.state != Running {
		o.mu.Unlock()
		return
	}
	o.timeout += delta
	o.deadline = o.deadline.Add(delta)
	hook := o.onExtend
	o.mu.Unlock()
	if hook != nil {
		hook(delta)
	}
}

// OnExtend registers a hook invoked after every successful
// ExtendTimeout. An outer command uses this to mirror an embedded
// command's extensions onto itself.
func (o *Observer) OnExtend(hook func(delta time.Duration)) {
	o.mu.Lock()
	o.onExtend = hook
	o.mu.Unlock()
}

// Done reports whether the observer holds a terminal outcome.
func (o *Observer) Done() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Terminal()
}

// State returns the current lifecycle state.
func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Result returns the stored value. While the observer is not
// terminal it returns ErrNotDone; for a failure, timeout, or
// cancellation it returns the stored outcome error.
func (o *Observer) Result() (any, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Terminal() {
		return nil, ErrNotDone
	}
	if o.outcome != nil {
		return nil, o.outcome
	}
	return o.value, nil
}

// Err returns the outcome error: nil on success, ErrNotDone while
// pending, the stored error otherwise.
func (o *Observer) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Terminal() {
		return ErrNotDone
	}
	return o.outcome
}

// Wait blocks until the observer reaches a terminal state or ctx is
// done, then returns the outcome.
func (o *Observer) Wait(ctx context.Context) (any, error) {
	select {
	case <-o.done:
		return o.Result()
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for observer: %w", ctx.Err())
	}
}

// WaitTimeout blocks until the observer reaches a terminal state or
// the caller's own budget d elapses. On local expiry it returns a
// *WaitTimeoutError — distinct from the observer's own TimedOut
// outcome, which may still arrive later.
func (o *Observer) WaitTimeout(d time.Duration) (any, error) {
	select {
	case <-o.done:
		return o.Result()
	case <-o.clk.After(d):
		// Completion and expiry can race; completion wins.
		select {
		case <-o.done:
			return o.Result()
		default:
		}
		return nil, &WaitTimeoutError{Wait: d}
	}
}

// DoneChan returns a channel closed when the observer reaches a
// terminal state. The runner's watchdog selects on this.
func (o *Observer) DoneChan() <-chan struct{} { return o.done }

// StartTime returns when Start was called. Zero before Start.
func (o *Observer) StartTime() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startTime
}

// Timeout returns the current budget, including extensions.
func (o *Observer) Timeout() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.timeout
}

// Deadline returns the current deadline, including extensions. Zero
// before Start.
func (o *Observer) Deadline() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deadline
}
