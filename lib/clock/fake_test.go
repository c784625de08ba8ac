// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFakeAfterFiresAtDeadline(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))
	ch := fake.After(5 * time.Second)

	fake.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}

	fake.Advance(1 * time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(time.Unix(1005, 0)) {
			t.Errorf("fire time = %v, want %v", fired, time.Unix(1005, 0))
		}
	default:
		t.Fatal("did not fire at deadline")
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeAfterFuncRunsInDeadlineOrder(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	var order []int
	fake.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	fake.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	fake.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	fake.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("callback order = %v, want [1 2 3]", order)
	}
}

func TestFakeTimerStop(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	var fired atomic.Bool
	timer := fake.AfterFunc(time.Second, func() { fired.Store(true) })

	if !timer.Stop() {
		t.Fatal("Stop on pending timer returned false")
	}
	fake.Advance(2 * time.Second)
	if fired.Load() {
		t.Error("stopped timer fired")
	}
	if timer.Stop() {
		t.Error("second Stop returned true")
	}
}

func TestFakeTimerResetRearms(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	var count atomic.Int32
	timer := fake.AfterFunc(time.Second, func() { count.Add(1) })

	fake.Advance(time.Second)
	if count.Load() != 1 {
		t.Fatalf("fired %d times, want 1", count.Load())
	}

	// Reset after firing re-arms the timer.
	if timer.Reset(time.Second) {
		t.Error("Reset after fire reported active timer")
	}
	fake.Advance(time.Second)
	if count.Load() != 2 {
		t.Errorf("fired %d times after reset, want 2", count.Load())
	}
}

func TestFakeSleepBlocksUntilAdvance(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	done := make(chan struct{})
	go func() {
		fake.Sleep(10 * time.Second)
		close(done)
	}()

	fake.WaitForWaiters(1)
	select {
	case <-done:
		t.Fatal("Sleep returned before Advance")
	default:
	}

	fake.Advance(10 * time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}
