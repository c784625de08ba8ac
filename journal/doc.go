// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal records device sessions. Every chunk sent to or
// received from a connection becomes a timestamped CBOR record,
// optionally compressed, appended to a stream. A recorded session can
// be replayed later: the reader feeds the received chunks back in
// order, so parsing problems reported from the field are reproducible
// without the device.
//
// Records use Core Deterministic Encoding (RFC 8949 §4.2), so the
// same session always produces identical bytes.
package journal
