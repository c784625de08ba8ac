// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package modem drives Hayes-style AT command sets over any
// connection. It classifies modem response lines (final result codes,
// intermediate data, unsolicited result codes, the SMS prompt) and
// provides ready-made commands for common queries.
package modem
