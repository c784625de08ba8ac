// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler serializes command execution per physical
// connection. Each connection gets a slot holding at most one current
// command plus a FIFO queue of waiters; unrelated connections run
// fully in parallel.
//
// Acquire uses fixed-quantum polling rather than condition-variable
// signaling. The quantum bounds how late a waiter observes a release
// or its own cancellation; with an injected fake clock the loop is
// fully deterministic in tests, and the simplicity keeps the
// slot invariants easy to audit. A waiter gives up — and leaves the
// queue — once its command's own budget elapses, so scheduling
// starvation surfaces through the command's ordinary timeout
// channel.
//
// The registry is process-lifetime state: slots are created lazily on
// first acquire and pruned when the last command releases them.
package scheduler
