// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides channel and polling helpers for tests.
// The channel helpers wrap every receive and send in a timeout safety
// valve so a broken test hangs for seconds, not forever.
package testutil
