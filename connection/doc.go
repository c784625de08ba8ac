// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package connection defines the byte-stream transport consumed by
// the command engine and binds concrete transports to it.
//
// A [Connection] is an opaque, ordered stream of raw byte chunks with
// open/close lifecycle, a Send path, and registration points for
// data-arrival and fatal-error callbacks. The engine never interprets
// transport details — TCP device ports, SSH sessions with a PTY,
// serial ports, local interactive processes, and the in-memory
// [Pipe] pair all satisfy the same contract.
//
// Chunks are delivered to subscribers in arrival order from a single
// delivery goroutine per connection. No ordering is guaranteed
// between different connections.
package connection
