// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"sync"
)

// Connection is an ordered byte stream to an interactive text device.
//
// Implementations deliver received chunks to every data subscriber,
// in arrival order, from one delivery goroutine. A fatal I/O failure
// is reported once to every error subscriber; after that the
// connection is dead and Send returns errors.
type Connection interface {
	// ID identifies the physical connection. The scheduler keys its
	// per-connection slots on this value, so two Connection values
	// for the same device must return the same ID.
	ID() string

	// Open establishes the transport. Blocking; honors ctx.
	Open(ctx context.Context) error

	// Close tears down the transport and stops delivery. Idempotent.
	Close() error

	// Send writes data to the device.
	Send(data []byte) error

	// Subscribe registers a data-arrival callback and returns its
	// cancel function. Callbacks run on the delivery goroutine and
	// must not block for long.
	Subscribe(fn func(chunk []byte)) (cancel func())

	// SubscribeErrors registers a fatal-error callback and returns
	// its cancel function.
	SubscribeErrors(fn func(err error)) (cancel func())
}

// hub implements subscriber fan-out shared by every transport. The
// zero value is ready to use.
type hub struct {
	mu     sync.Mutex
	nextID int
	data   []subscriber[[]byte]
	errs   []subscriber[error]
	failed error
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

func (h *hub) subscribeData(fn func([]byte)) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.data = append(h.data, subscriber[[]byte]{id: id, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.data {
			if s.id == id {
				h.data = append(h.data[:i], h.data[i+1:]...)
				return
			}
		}
	}
}

func (h *hub) subscribeErrors(fn func(error)) (cancel func()) {
	h.mu.Lock()
	// A subscriber attaching after the fatal failure still hears
	// about it, so a late-attached observer fails instead of hanging.
	if failed := h.failed; failed != nil {
		h.mu.Unlock()
		fn(failed)
		return func() {}
	}
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.errs = append(h.errs, subscriber[error]{id: id, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.errs {
			if s.id == id {
				h.errs = append(h.errs[:i], h.errs[i+1:]...)
				return
			}
		}
	}
}

// deliver fans a received chunk out to data subscribers in
// registration order. Called from the delivery goroutine only, which
// preserves arrival order.
func (h *hub) deliver(chunk []byte) {
	h.mu.Lock()
	subscribers := make([]subscriber[[]byte], len(h.data))
	copy(subscribers, h.data)
	h.mu.Unlock()
	for _, s := range subscribers {
		s.fn(chunk)
	}
}

// fail records a fatal transport failure and reports it to every
// error subscriber. Only the first failure is reported.
func (h *hub) fail(err error) {
	h.mu.Lock()
	if h.failed != nil {
		h.mu.Unlock()
		return
	}
	h.failed = err
	subscribers := make([]subscriber[error], len(h.errs))
	copy(subscribers, h.errs)
	h.mu.Unlock()
	for _, s := range subscribers {
		s.fn(err)
	}
}
