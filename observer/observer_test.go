// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package observer

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/parley-sh/parley/lib/clock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestStartRecordsDeadline(t *testing.T) {
	fake := clock.Fake(time.Unix(100, 0))
	o := New(fake, discardLogger())

	if err := o.Start(2 * time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := o.StartTime(); !got.Equal(time.Unix(100, 0)) {
		t.Errorf("StartTime = %v, want %v", got, time.Unix(100, 0))
	}
	if got := o.Deadline(); !got.Equal(time.Unix(102, 0)) {
		t.Errorf("Deadline = %v, want %v", got, time.Unix(102, 0))
	}
	if err := o.Start(time.Second); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestOutcomeIsWriteOnce(t *testing.T) {
	o := New(clock.Fake(time.Unix(0, 0)), discardLogger())
	if err := o.Start(time.Second); err != nil {
		t.Fatal(err)
	}

	o.SetResult("first")
	o.SetResult("second")
	o.SetError(errors.New("late failure"))
	o.Cancel()

	value, err := o.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if value != "first" {
		t.Errorf("value = %v, want first", value)
	}
	if o.State() != Succeeded {
		t.Errorf("state = %v, want succeeded", o.State())
	}
}

func TestErrorThenResultKeepsError(t *testing.T) {
	o := New(clock.Fake(time.Unix(0, 0)), discardLogger())
	if err := o.Start(time.Second); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("device reported ERROR")
	o.SetError(boom)
	o.SetResult("too late")

	if _, err := o.Result(); !errors.Is(err, boom) {
		t.Errorf("Result error = %v, want %v", err, boom)
	}
}

func TestResultWhileRunning(t *testing.T) {
	o := New(clock.Fake(time.Unix(0, 0)), discardLogger())
	if err := o.Start(time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Result(); !errors.Is(err, ErrNotDone) {
		t.Errorf("Result = %v, want ErrNotDone", err)
	}
	if err := o.Err(); !errors.Is(err, ErrNotDone) {
		t.Errorf("Err = %v, want ErrNotDone", err)
	}
}

func TestSetResultBeforeStartIsIgnored(t *testing.T) {
	o := New(clock.Fake(time.Unix(0, 0)), discardLogger())
	o.SetResult("premature")
	if o.Done() {
		t.Error("observer done after pre-start SetResult")
	}
}

func TestCancelBlocksLaterResult(t *testing.T) {
	o := New(clock.Fake(time.Unix(0, 0)), discardLogger())
	if err := o.Start(time.Second); err != nil {
		t.Fatal(err)
	}

	o.Cancel()
	o.SetResult("ignored")

	if o.State() != Cancelled {
		t.Errorf("state = %v, want cancelled", o.State())
	}
	if _, err := o.Result(); !errors.Is(err, ErrCancelled) {
		t.Errorf("Result = %v, want ErrCancelled", err)
	}
}

func TestMarkTimedOutOutcome(t *testing.T) {
	o := New(clock.Fake(time.Unix(0, 0)), discardLogger())
	if err := o.Start(3 * time.Second); err != nil {
		t.Fatal(err)
	}

	o.MarkTimedOut()

	var timeoutError *TimeoutError
	if _, err := o.Result(); !errors.As(err, &timeoutError) {
		t.Fatalf("Result = %v, want *TimeoutError", err)
	}
	if timeoutError.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", timeoutError.Timeout)
	}
}

func TestWaitTimeoutDistinctFromObserverTimeout(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	o := New(fake, discardLogger())
	if err := o.Start(time.Minute); err != nil {
		t.Fatal(err)
	}

	type outcome struct {
		value any
		err   error
	}
	results := make(chan outcome, 1)
	go func() {
		value, err := o.WaitTimeout(time.Second)
		results <- outcome{value, err}
	}()

	fake.WaitForWaiters(1)
	fake.Advance(time.Second)

	got := <-results
	var waitTimeout *WaitTimeoutError
	if !errors.As(got.err, &waitTimeout) {
		t.Fatalf("err = %v, want *WaitTimeoutError", got.err)
	}
	// The observer itself is untouched by a local wait timeout.
	if o.Done() {
		t.Error("observer done after a caller-side wait timeout")
	}
	o.SetResult("late but valid")
	if value, err := o.Result(); err != nil || value != "late but valid" {
		t.Errorf("late result = (%v, %v)", value, err)
	}
}

func TestWaitReturnsOnCompletion(t *testing.T) {
	o := New(clock.Fake(time.Unix(0, 0)), discardLogger())
	if err := o.Start(time.Second); err != nil {
		t.Fatal(err)
	}

	go o.SetResult(42)

	value, err := o.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if value != 42 {
		t.Errorf("value = %v, want 42", value)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	o := New(clock.Fake(time.Unix(0, 0)), discardLogger())
	if err := o.Start(time.Minute); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}

func TestExtendTimeoutMovesDeadlineAndMirrors(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	o := New(fake, discardLogger())
	if err := o.Start(2 * time.Second); err != nil {
		t.Fatal(err)
	}

	var mirrored time.Duration
	o.OnExtend(func(delta time.Duration) { mirrored += delta })

	o.ExtendTimeout(3 * time.Second)

	if got := o.Timeout(); got != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", got)
	}
	if got := o.Deadline(); !got.Equal(time.Unix(5, 0)) {
		t.Errorf("Deadline = %v, want %v", got, time.Unix(5, 0))
	}
	if mirrored != 3*time.Second {
		t.Errorf("mirrored extension = %v, want 3s", mirrored)
	}

	// Extension after completion is a no-op.
	o.SetResult("done")
	o.ExtendTimeout(time.Second)
	if got := o.Timeout(); got != 5*time.Second {
		t.Errorf("Timeout after terminal extend = %v, want 5s", got)
	}
}
