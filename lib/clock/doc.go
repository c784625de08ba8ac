// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the scheduler's polling quantum and
// the runner's timeout watchdog. Production code injects [Real];
// tests inject [Fake] and drive time with Advance, which makes
// quantum-granularity scheduling behavior and deadline expiry fully
// deterministic without real sleeps.
package clock
