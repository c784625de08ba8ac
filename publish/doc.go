// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package publish streams intermediate command data — per-interval
// measurements, progress lines — to interested listeners,
// independent of the command's final outcome.
//
// Subscriptions never keep a listener alive: [Attach] stores a weak
// handle to the owner plus an unbound function taking the owner as
// its first argument (a method expression reads naturally:
// Attach(p, stats, (*Stats).OnSample)). When the owner's last strong
// reference is dropped, Notify silently skips and prunes the entry.
// Listeners without an owner use [Publisher.Subscribe] and live until
// the returned [Subscription] is cancelled.
//
// A (owner, function) pair attaches at most once. A panicking
// listener is reported to an overridable hook and never prevents the
// remaining listeners from being notified.
package publish
