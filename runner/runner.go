// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parley-sh/parley/command"
	"github.com/parley-sh/parley/lib/clock"
	"github.com/parley-sh/parley/scheduler"
)

// ErrShutdown is returned by Submit and Run after Shutdown.
var ErrShutdown = errors.New("runner is shut down")

// SchedulingError reports that a command's wait budget elapsed before
// it could claim its connection.
type SchedulingError struct {
	ConnectionID string
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("connection %q stayed busy for the command's whole budget", e.ConnectionID)
}

// Runner drives commands to completion.
type Runner struct {
	clk    clock.Clock
	sched  *scheduler.Scheduler
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	active map[*command.Command]struct{}

	wg sync.WaitGroup
}

// New creates a Runner. A nil clk defaults to the real clock; a nil
// sched gets a private scheduler with the default quantum; a nil
// logger defaults to slog.Default().
func New(clk clock.Clock, sched *scheduler.Scheduler, logger *slog.Logger) *Runner {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sched == nil {
		sched = scheduler.New(clk, 0, logger)
	}
	return &Runner{
		clk:    clk,
		sched:  sched,
		logger: logger,
		active: make(map[*command.Command]struct{}),
	}
}

// Run executes cmd and blocks until its outcome. The returned Fields
// is the accumulator on success; any failure, timeout, or
// cancellation arrives as the error.
func (r *Runner) Run(ctx context.Context, cmd *command.Command) (*command.Fields, error) {
	if err := r.Submit(cmd); err != nil {
		return nil, err
	}
	value, err := cmd.Wait(ctx)
	if err != nil {
		return nil, err
	}
	fields, ok := value.(*command.Fields)
	if !ok {
		return nil, fmt.Errorf("command produced %T, not fields", value)
	}
	return fields, nil
}

// Submit starts cmd and returns without waiting for its outcome. The
// caller observes completion through the command itself (Wait,
// WaitTimeout, or DoneChan).
//
// Submit starts the command's clock immediately: time spent queued for
// a busy connection counts against the command's own budget.
func (r *Runner) Submit(cmd *command.Command) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrShutdown
	}
	r.active[cmd] = struct{}{}
	r.mu.Unlock()

	if err := cmd.Start(cmd.ConfiguredTimeout()); err != nil {
		r.untrack(cmd)
		return fmt.Errorf("submitting command %q: %w", cmd.Text(), err)
	}

	conn := cmd.Connection()
	cancelErrors := conn.SubscribeErrors(func(err error) {
		cmd.SetError(fmt.Errorf("connection %q failed: %w", conn.ID(), err))
	})

	r.wg.Add(2)
	go r.watchdog(cmd)
	go r.execute(cmd, cancelErrors)
	return nil
}

// execute claims the connection, sends the command text, and cleans
// up once the command reaches a terminal state.
func (r *Runner) execute(cmd *command.Command, cancelErrors func()) {
	defer r.wg.Done()
	defer r.untrack(cmd)
	defer cancelErrors()

	conn := cmd.Connection()
	if r.sched.Acquire(cmd, conn.ID(), true) {
		defer r.sched.Release(cmd, conn.ID())
		// Data flows into the command only while it holds the
		// connection: a queued command must never parse the current
		// holder's session.
		cancelData := conn.Subscribe(cmd.Feed)
		defer cancelData()
		if err := cmd.Send(); err != nil {
			// Send already recorded the failure outcome.
			r.logger.Debug("command send failed", "command", cmd.Text(), "error", err)
		}
	} else if !cmd.Done() {
		// Gave up waiting: the budget elapsed while queued.
		cmd.SetError(&SchedulingError{ConnectionID: conn.ID()})
	}

	<-cmd.DoneChan()
}

// watchdog enforces the command's deadline. It sleeps until the
// current deadline, then re-reads it: an ExtendTimeout that landed in
// the meantime just moves the next sleep.
func (r *Runner) watchdog(cmd *command.Command) {
	defer r.wg.Done()
	for {
		delay := cmd.Deadline().Sub(r.clk.Now())
		if delay <= 0 {
			if !cmd.Done() {
				r.logger.Debug("command deadline expired",
					"command", cmd.Text(), "timeout", cmd.Timeout())
				cmd.MarkTimedOut()
			}
			return
		}
		select {
		case <-r.clk.After(delay):
		case <-cmd.DoneChan():
			return
		}
	}
}

// Shutdown cancels every in-flight command and waits for their
// goroutines to finish. Subsequent Submit calls fail with
// ErrShutdown.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	r.closed = true
	pending := make([]*command.Command, 0, len(r.active))
	for cmd := range r.active {
		pending = append(pending, cmd)
	}
	r.mu.Unlock()

	for _, cmd := range pending {
		cmd.Cancel()
	}
	r.wg.Wait()
}

// Active returns the number of commands not yet finished and cleaned
// up.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Runner) untrack(cmd *command.Command) {
	r.mu.Lock()
	delete(r.active, cmd)
	r.mu.Unlock()
}
