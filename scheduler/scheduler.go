// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/parley-sh/parley/lib/clock"
)

// DefaultQuantum is the polling interval of the acquire wait loop
// when none is configured. It bounds the latency of observing a
// release or a cancellation while queued.
const DefaultQuantum = 50 * time.Millisecond

// Claimant is what the scheduler needs to know about a command: its
// lifecycle (to notice external cancellation while queued) and its
// budget (to give up waiting). *command.Command satisfies it.
type Claimant interface {
	// Done reports whether the command reached a terminal outcome.
	Done() bool

	// StartTime is when the command started; the wait budget is
	// measured from here, so queue time counts against the command's
	// own timeout.
	StartTime() time.Time

	// Timeout is the command's current budget.
	Timeout() time.Duration
}

// Scheduler is the process-wide registry of per-connection slots.
type Scheduler struct {
	clk     clock.Clock
	quantum time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	slots map[string]*slot
}

// slot serializes one physical connection.
type slot struct {
	mu      sync.Mutex
	current Claimant
	waiters []Claimant
}

// New creates a Scheduler. Zero quantum selects DefaultQuantum; nil
// clk selects the real clock; nil logger selects slog.Default().
func New(clk clock.Clock, quantum time.Duration, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clk:     clk,
		quantum: quantum,
		logger:  logger,
		slots:   make(map[string]*slot),
	}
}

// lockSlot returns connID's slot with its mutex held, creating the
// slot on first use. The registry lock is released before returning;
// a slot holding a current command or waiters is never pruned, so a
// caller that enqueues itself in the same critical section cannot
// lose the slot.
func (s *Scheduler) lockSlot(connID string) *slot {
	s.mu.Lock()
	sl, ok := s.slots[connID]
	if !ok {
		sl = &slot{}
		s.slots[connID] = sl
	}
	sl.mu.Lock()
	s.mu.Unlock()
	return sl
}

// prune removes connID's slot when it is idle and empty.
func (s *Scheduler) prune(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[connID]
	if !ok {
		return
	}
	sl.mu.Lock()
	empty := sl.current == nil && len(sl.waiters) == 0
	sl.mu.Unlock()
	if empty {
		delete(s.slots, connID)
	}
}

// Acquire claims the connection for c. When the connection is idle
// the claim is granted immediately. When busy: with wait=false it
// returns false at once; with wait=true, c joins the FIFO queue and
// the call polls every quantum until one of
//
//   - c is at the head of the queue and the slot is free: granted,
//   - c was externally finished (cancelled) while queued: false,
//   - c's own budget elapsed: false.
//
// In every false case c has left the queue. FIFO order among waiters
// is preserved: the head of the queue is always tried first.
func (s *Scheduler) Acquire(c Claimant, connID string, wait bool) bool {
	sl := s.lockSlot(connID)
	if sl.current == nil {
		sl.current = c
		sl.mu.Unlock()
		return true
	}
	if !wait {
		sl.mu.Unlock()
		return false
	}
	sl.waiters = append(sl.waiters, c)
	sl.mu.Unlock()

	for {
		s.clk.Sleep(s.quantum)

		sl.mu.Lock()
		if c.Done() {
			removeWaiter(sl, c)
			sl.mu.Unlock()
			s.prune(connID)
			return false
		}
		if sl.current == nil && len(sl.waiters) > 0 && sl.waiters[0] == c {
			sl.waiters = sl.waiters[1:]
			sl.current = c
			sl.mu.Unlock()
			return true
		}
		if s.clk.Now().Sub(c.StartTime()) >= c.Timeout() {
			removeWaiter(sl, c)
			sl.mu.Unlock()
			s.logger.Debug("gave up waiting for connection", "connection", connID)
			s.prune(connID)
			return false
		}
		sl.mu.Unlock()
	}
}

// Release returns the connection held by c. It also removes c from
// the queue if c never became current — the path taken when a caller
// cancels a queued command and releases defensively.
func (s *Scheduler) Release(c Claimant, connID string) {
	sl := s.lockSlot(connID)
	if sl.current == c {
		sl.current = nil
	}
	removeWaiter(sl, c)
	sl.mu.Unlock()
	s.prune(connID)
}

// removeWaiter deletes c from the queue, preserving order of the
// rest. Caller holds sl.mu.
func removeWaiter(sl *slot, c Claimant) {
	for i, waiter := range sl.waiters {
		if waiter == c {
			sl.waiters = append(sl.waiters[:i], sl.waiters[i+1:]...)
			return
		}
	}
}

// Holder returns the command currently holding connID, or nil.
func (s *Scheduler) Holder(connID string) Claimant {
	s.mu.Lock()
	sl, ok := s.slots[connID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.current
}

// Queued returns the number of commands waiting for connID.
func (s *Scheduler) Queued(connID string) int {
	s.mu.Lock()
	sl, ok := s.slots[connID]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.waiters)
}
