// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package command

import "sync"

// Fields is the command's partial-result accumulator: a map that
// remembers first-insertion order, mutated incrementally by line
// handlers as output arrives. On success the accumulator is the
// observer's value.
//
// Safe for concurrent use: handlers write from the delivery
// goroutine while the caller may poll.
type Fields struct {
	mu     sync.Mutex
	keys   []string
	values map[string]any
}

// NewFields returns an empty accumulator.
func NewFields() *Fields {
	return &Fields{values: make(map[string]any)}
}

// Set stores value under key. A new key is appended to the order; an
// existing key keeps its position.
func (f *Fields) Set(key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.values[key]; !exists {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Get returns the value stored under key.
func (f *Fields) Get(key string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[key]
	return value, ok
}

// Len returns the number of stored keys.
func (f *Fields) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

// Keys returns the keys in first-insertion order.
func (f *Fields) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, len(f.keys))
	copy(keys, f.keys)
	return keys
}

// Map returns a copy of the contents as a plain map.
func (f *Fields) Map() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := make(map[string]any, len(f.values))
	for key, value := range f.values {
		m[key] = value
	}
	return m
}
