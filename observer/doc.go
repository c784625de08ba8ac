// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package observer implements the pending-async-result state machine
// shared by every command and event attached to a connection.
//
// An [Observer] holds a write-once outcome: it moves from Unset to
// Running on Start, and from Running to exactly one terminal state —
// Succeeded, Failed, TimedOut, or Cancelled. A second terminal write
// is swallowed with a logged warning; it is an idempotence guard, not
// an error to the caller.
//
// The observer is passive about time: it records its deadline on
// Start and exposes MarkTimedOut as the transition entry point, but
// detecting expiry is the runner's job. This keeps timeout policy
// (watchdog granularity, mid-flight extension) out of the state
// machine.
package observer
