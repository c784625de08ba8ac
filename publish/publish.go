// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"log/slog"
	"reflect"
	"sync"
	"weak"
)

// Sample is one notification payload: named intermediate values from
// a running command (for example an interval's transfer statistics).
type Sample map[string]any

// Publisher fans samples out to subscribed listeners. Safe for
// concurrent use; its lock is independent of any scheduler or
// connection lock, so listeners may interact with those freely.
type Publisher struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries []*entry
	onPanic func(recovered any)
}

// entry is one subscription. Bound entries carry the comparable weak
// handle of the owner and the method's code pointer; the pair dedups
// repeat Attach calls. Unbound entries are identified by the entry
// pointer itself (two closures built from the same literal share a
// code pointer, so the code pointer cannot stand in for function
// identity).
type entry struct {
	ownerKey any
	fnKey    uintptr

	// deliver invokes the listener; it reports false when the owner
	// has been reclaimed and the entry should be pruned.
	deliver func(Sample) bool
}

// New creates a Publisher. A nil logger defaults to slog.Default().
func New(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{logger: logger}
	p.onPanic = func(recovered any) {
		p.logger.Warn("subscriber panicked during notify", "panic", recovered)
	}
	return p
}

// SetPanicHook replaces the handler for listener panics. The default
// logs a warning.
func (p *Publisher) SetPanicHook(hook func(recovered any)) {
	p.mu.Lock()
	p.onPanic = hook
	p.mu.Unlock()
}

// Attach subscribes fn bound to owner. The publisher holds only a
// weak handle to owner: dropping the last strong reference to owner
// unsubscribes it implicitly. fn receives the owner as its first
// argument, so a method expression is the natural form:
//
//	publish.Attach(p, stats, (*IntervalStats).OnSample)
//
// Returns false when this (owner, fn) pair is already attached.
func Attach[O any](p *Publisher, owner *O, fn func(*O, Sample)) bool {
	handle := weak.Make(owner)
	deliver := func(sample Sample) bool {
		strong := handle.Value()
		if strong == nil {
			return false
		}
		fn(strong, sample)
		return true
	}
	return p.add(&entry{
		ownerKey: handle,
		fnKey:    reflect.ValueOf(fn).Pointer(),
		deliver:  deliver,
	})
}

// Detach removes the (owner, fn) subscription. Returns false when no
// such subscription exists.
func Detach[O any](p *Publisher, owner *O, fn func(*O, Sample)) bool {
	return p.remove(any(weak.Make(owner)), reflect.ValueOf(fn).Pointer())
}

// Subscription identifies one unbound listener registration.
type Subscription struct {
	p *Publisher
	e *entry
}

// Cancel removes the subscription. Returns false when it was already
// cancelled.
func (s *Subscription) Cancel() bool {
	return s.p.removeEntry(s.e)
}

// Subscribe registers an unbound listener function, held strongly
// until the returned subscription is cancelled. Every call registers
// a new listener: distinct closures are distinct even when they come
// from the same function literal.
func (p *Publisher) Subscribe(fn func(Sample)) *Subscription {
	e := &entry{
		deliver: func(sample Sample) bool {
			fn(sample)
			return true
		},
	}
	p.mu.Lock()
	p.entries = append(p.entries, e)
	p.mu.Unlock()
	return &Subscription{p: p, e: e}
}

// Notify delivers sample to every live listener in subscription
// order. Entries whose owner has been reclaimed are skipped and
// pruned; a panicking listener is reported to the panic hook and the
// remaining listeners still run. Notify never fails.
func (p *Publisher) Notify(sample Sample) {
	p.mu.Lock()
	snapshot := make([]*entry, len(p.entries))
	copy(snapshot, p.entries)
	hook := p.onPanic
	p.mu.Unlock()

	var dead []*entry
	for _, e := range snapshot {
		if !p.dispatch(e, sample, hook) {
			dead = append(dead, e)
		}
	}

	if len(dead) == 0 {
		return
	}
	p.mu.Lock()
	for _, gone := range dead {
		for i, e := range p.entries {
			if e == gone {
				p.entries = append(p.entries[:i], p.entries[i+1:]...)
				break
			}
		}
	}
	p.mu.Unlock()
}

// dispatch runs one listener, containing panics. Reports false only
// when the owner was reclaimed.
func (p *Publisher) dispatch(e *entry, sample Sample, hook func(any)) (alive bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			alive = true
			if hook != nil {
				hook(recovered)
			}
		}
	}()
	return e.deliver(sample)
}

// Len returns the number of registered subscriptions, including
// entries not yet pruned.
func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// add registers a bound entry, deduplicating on (owner, method).
func (p *Publisher) add(candidate *entry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.ownerKey == candidate.ownerKey && e.fnKey == candidate.fnKey {
			return false
		}
	}
	p.entries = append(p.entries, candidate)
	return true
}

func (p *Publisher) remove(ownerKey any, fnKey uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e.ownerKey == ownerKey && e.fnKey == fnKey {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Publisher) removeEntry(target *entry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e == target {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return true
		}
	}
	return false
}
