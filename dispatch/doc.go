// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch turns raw byte chunks from a connection into an
// ordered stream of line events and feeds them through a handler
// chain.
//
// A [Dispatcher] buffers incoming chunks and splits them on the
// connection's newline markers. Every completed line is emitted
// exactly once with complete=true, in arrival order. The unterminated
// tail is re-emitted with complete=false on every Feed call, so
// handlers watching for a prompt (which never ends with a newline)
// see the partial line grow; the eventual complete emission replaces
// the partial ones.
//
// Handlers are tried in order. A handler returns [Handled] to claim
// the line and stop the chain for that one event — control flow, not
// an error. When no handler claims the line, the configured fallback
// handler (typically prompt detection) runs last.
package dispatch
