// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package observer

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyStarted is returned by Start when the observer has left
// the Unset state.
var ErrAlreadyStarted = errors.New("observer already started")

// ErrNotDone is returned by Result and Err while the observer has no
// terminal outcome yet.
var ErrNotDone = errors.New("observer not done yet")

// ErrCancelled is the outcome error of a cancelled observer.
var ErrCancelled = errors.New("observer cancelled")

// TimeoutError is the outcome error of an observer whose deadline
// elapsed before a result was set. Distinct from [WaitTimeoutError],
// which is local to one Wait call: a timed-out observer is finished,
// while a timed-out wait says nothing about the observer itself.
type TimeoutError struct {
	// Timeout is the observer's full budget, including extensions.
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v", e.Timeout)
}

// WaitTimeoutError reports that a caller's own wait budget elapsed
// before the observer reached a terminal state. The observer may
// still finish later.
type WaitTimeoutError struct {
	// Wait is the caller's wait budget that elapsed.
	Wait time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("wait timed out after %v (observer still pending)", e.Wait)
}
