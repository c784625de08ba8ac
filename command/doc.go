// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package command binds the observer state machine to a device
// conversation: it sends a constructed command string exactly once,
// feeds the response stream through a dispatch handler chain, and
// recognizes completion by matching the device prompt.
//
// A [Command] accumulates parsed output in an insertion-ordered
// [Fields] map; on prompt match with data present, the accumulator
// becomes the observer's success value. Device-reported error lines
// (configurable patterns) become the failure outcome. A panicking
// handler is converted into a failure outcome rather than crashing
// the shared delivery path.
//
// Composition replaces inheritance for command variants: a Command
// may embed another Command (Config.Embed). The outer command claims
// the lines that are its own — typically a credential prompt — and
// forwards the byte stream verbatim into the embedded command's feed
// path, mirrors the embedded command's timeout extensions onto
// itself, and adopts the embedded result as its own, optionally after
// one more prompt transition. See commands/unix.Sudo for the
// canonical use.
package command
