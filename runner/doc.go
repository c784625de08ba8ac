// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner executes commands against their connections.
//
// A [Runner] owns the moving parts a command needs but does not carry
// itself: it claims the connection through the scheduler, wires the
// connection's data stream into the command's feed path, sends the
// command text, and runs one timeout watchdog per in-flight command.
// [Runner.Run] blocks until the outcome; [Runner.Submit] returns
// immediately and the caller awaits the command directly.
//
// A fatal connection failure fails every command the runner currently
// has attached to that connection. Shutdown cancels everything still
// in flight.
package runner
