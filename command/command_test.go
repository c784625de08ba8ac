// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"errors"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/parley-sh/parley/connection"
	"github.com/parley-sh/parley/dispatch"
	"github.com/parley-sh/parley/lib/clock"
	"github.com/parley-sh/parley/observer"
)

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

// digitCollector stores the first all-digit complete line under key.
func digitCollector(fields *Fields, key string) dispatch.Handler {
	pattern := regexp.MustCompile(`^\d+$`)
	return dispatch.HandlerFunc(func(line string, complete bool) dispatch.Disposition {
		if complete && pattern.MatchString(line) {
			fields.Set(key, line)
			return dispatch.Handled
		}
		return dispatch.NotHandled
	})
}

func TestIMSIQueryScenario(t *testing.T) {
	near, _ := connection.NewPipe()
	fields := NewFields()
	cmd := New(near, Config{
		Text:     "at+cimi",
		Prompt:   regexp.MustCompile(`^OK$`),
		Fields:   fields,
		Handlers: []dispatch.Handler{digitCollector(fields, "imsi")},
		Clock:    clock.Fake(time.Unix(0, 0)),
		Logger:   quiet(),
	})

	if err := cmd.Start(2 * time.Second); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Send(); err != nil {
		t.Fatal(err)
	}

	chunks := []string{"at+cimi\n", "\n\n", "4434", "55\n", "OK\n"}
	for _, chunk := range chunks {
		cmd.Feed([]byte(chunk))
	}

	value, err := cmd.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	fields, ok := value.(*Fields)
	if !ok {
		t.Fatalf("result type = %T, want *Fields", value)
	}
	if imsi, _ := fields.Get("imsi"); imsi != "443455" {
		t.Errorf("imsi = %v, want 443455", imsi)
	}
	if got := string(cmd.Raw()); got != "at+cimi\n\n\n443455\nOK\n" {
		t.Errorf("Raw = %q, want the concatenation of all chunks", got)
	}
}

func TestPromptWithoutDataDoesNotComplete(t *testing.T) {
	near, _ := connection.NewPipe()
	cmd := New(near, Config{
		Text:   "noop",
		Prompt: regexp.MustCompile(`\$ $`),
		Clock:  clock.Fake(time.Unix(0, 0)),
		Logger: quiet(),
	})
	if err := cmd.Start(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Send(); err != nil {
		t.Fatal(err)
	}

	cmd.Feed([]byte("noop\n$ "))
	if cmd.Done() {
		t.Error("command completed on prompt with an empty accumulator")
	}
}

func TestCompleteEmptyFinishesOnPrompt(t *testing.T) {
	near, _ := connection.NewPipe()
	cmd := New(near, Config{
		Text:          "cd /tmp",
		Prompt:        regexp.MustCompile(`\$ $`),
		CompleteEmpty: true,
		Clock:         clock.Fake(time.Unix(0, 0)),
		Logger:        quiet(),
	})
	if err := cmd.Start(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Send(); err != nil {
		t.Fatal(err)
	}

	cmd.Feed([]byte("cd /tmp\n$ "))
	if !cmd.Done() {
		t.Fatal("command did not complete on prompt")
	}
	if _, err := cmd.Result(); err != nil {
		t.Errorf("Result: %v", err)
	}
}

func TestPromptBeforeSendIsIgnored(t *testing.T) {
	near, _ := connection.NewPipe()
	cmd := New(near, Config{
		Text:          "whoami",
		Prompt:        regexp.MustCompile(`\$ $`),
		CompleteEmpty: true,
		Clock:         clock.Fake(time.Unix(0, 0)),
		Logger:        quiet(),
	})
	if err := cmd.Start(time.Second); err != nil {
		t.Fatal(err)
	}

	// The resting prompt arrives before the command was sent.
	cmd.Feed([]byte("$ "))
	if cmd.Done() {
		t.Error("command completed on the resting prompt before send")
	}
}

func TestErrorPatternBecomesDeviceError(t *testing.T) {
	near, _ := connection.NewPipe()
	cmd := New(near, Config{
		Text:          "at+cpin?",
		Prompt:        regexp.MustCompile(`^OK$`),
		ErrorPatterns: []*regexp.Regexp{regexp.MustCompile(`^(ERROR|\+CME ERROR.*)$`)},
		Clock:         clock.Fake(time.Unix(0, 0)),
		Logger:        quiet(),
	})
	if err := cmd.Start(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Send(); err != nil {
		t.Fatal(err)
	}

	cmd.Feed([]byte("+CME ERROR: SIM not inserted\n"))

	var deviceError *DeviceError
	if _, err := cmd.Result(); !errors.As(err, &deviceError) {
		t.Fatalf("Result error = %v, want *DeviceError", err)
	}
	if deviceError.Line != "+CME ERROR: SIM not inserted" {
		t.Errorf("error line = %q", deviceError.Line)
	}
}

func TestHandlerPanicBecomesFailure(t *testing.T) {
	near, _ := connection.NewPipe()
	bomb := dispatch.HandlerFunc(func(line string, complete bool) dispatch.Disposition {
		panic("parser bug")
	})
	cmd := New(near, Config{
		Text:     "show version",
		Handlers: []dispatch.Handler{bomb},
		Clock:    clock.Fake(time.Unix(0, 0)),
		Logger:   quiet(),
	})
	if err := cmd.Start(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Send(); err != nil {
		t.Fatal(err)
	}

	cmd.Feed([]byte("anything\n"))

	if cmd.State() != observer.Failed {
		t.Fatalf("state = %v, want failed", cmd.State())
	}
}

func TestSendExactlyOnce(t *testing.T) {
	near, far := connection.NewPipe()
	var sent []string
	far.Subscribe(func(chunk []byte) { sent = append(sent, string(chunk)) })

	cmd := New(near, Config{
		Text:   "uptime",
		Clock:  clock.Fake(time.Unix(0, 0)),
		Logger: quiet(),
	})
	if err := cmd.Start(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Send(); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Send(); err != nil {
		t.Fatal(err)
	}

	if len(sent) != 1 || sent[0] != "uptime\n" {
		t.Errorf("sent = %v, want exactly one uptime line", sent)
	}
}

func TestEventWithEmptyTextSendsNothing(t *testing.T) {
	near, far := connection.NewPipe()
	count := 0
	far.Subscribe(func([]byte) { count++ })

	event := New(near, Config{Clock: clock.Fake(time.Unix(0, 0)), Logger: quiet()})
	if err := event.Start(time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := event.Send(); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("event sent %d chunks, want 0", count)
	}
}

// embeddedFixture builds a sudo-style outer command around an inner
// command that captures one content line.
func embeddedFixture(t *testing.T, outerPrompt *regexp.Regexp) (near *connection.Pipe, far *connection.Pipe, outer, inner *Command) {
	t.Helper()
	near, far = connection.NewPipe()
	fake := clock.Fake(time.Unix(0, 0))

	innerFields := NewFields()
	content := dispatch.HandlerFunc(func(line string, complete bool) dispatch.Disposition {
		if complete && line != "" && line != "cat /etc/secret" {
			innerFields.Set("content", line)
			return dispatch.Handled
		}
		return dispatch.NotHandled
	})
	inner = New(near, Config{
		Text:     "cat /etc/secret",
		Prompt:   regexp.MustCompile(`\$ $`),
		Fields:   innerFields,
		Handlers: []dispatch.Handler{content},
		Clock:    fake,
		Logger:   quiet(),
	})

	credential := dispatch.HandlerFunc(func(line string, complete bool) dispatch.Disposition {
		if !complete && regexp.MustCompile(`password.*: $`).MatchString(line) {
			near.Send([]byte("hunter2\n"))
			return dispatch.Handled
		}
		return dispatch.NotHandled
	})
	outer = New(near, Config{
		Text:     "sudo cat /etc/secret",
		Prompt:   outerPrompt,
		Handlers: []dispatch.Handler{credential},
		Embed:    inner,
		Clock:    fake,
		Logger:   quiet(),
	})
	return near, far, outer, inner
}

func TestEmbeddedCommandAdoptsInnerResult(t *testing.T) {
	_, far, outer, inner := embeddedFixture(t, nil)

	var deviceInput []string
	far.Subscribe(func(chunk []byte) { deviceInput = append(deviceInput, string(chunk)) })

	if err := outer.Start(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if err := outer.Send(); err != nil {
		t.Fatal(err)
	}

	// The outer command carries the embedded text: only one send.
	if len(deviceInput) != 1 || deviceInput[0] != "sudo cat /etc/secret\n" {
		t.Fatalf("device input = %v", deviceInput)
	}

	outer.Feed([]byte("[sudo] password for admin: "))
	if len(deviceInput) != 2 || deviceInput[1] != "hunter2\n" {
		t.Fatalf("credential reply not sent: %v", deviceInput)
	}

	outer.Feed([]byte("s3cret-contents\n"))
	outer.Feed([]byte("$ "))

	if !inner.Done() {
		t.Fatal("inner command did not complete")
	}
	value, err := outer.Result()
	if err != nil {
		t.Fatalf("outer Result: %v", err)
	}
	fields := value.(*Fields)
	if content, _ := fields.Get("content"); content != "s3cret-contents" {
		t.Errorf("adopted content = %v", content)
	}
}

func TestEmbeddedCommandWaitsForFinalPrompt(t *testing.T) {
	_, _, outer, inner := embeddedFixture(t, regexp.MustCompile(`# $`))

	if err := outer.Start(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if err := outer.Send(); err != nil {
		t.Fatal(err)
	}

	outer.Feed([]byte("s3cret-contents\n"))
	outer.Feed([]byte("$ "))

	if !inner.Done() {
		t.Fatal("inner command did not complete")
	}
	// Inner is done, but the outer still owes one prompt transition.
	if outer.Done() {
		t.Fatal("outer completed before its final prompt")
	}

	outer.Feed([]byte("# "))
	value, err := outer.Result()
	if err != nil {
		t.Fatalf("outer Result: %v", err)
	}
	if content, _ := value.(*Fields).Get("content"); content != "s3cret-contents" {
		t.Errorf("adopted content = %v", content)
	}
}

func TestEmbeddedExtensionMirrorsToOuter(t *testing.T) {
	_, _, outer, inner := embeddedFixture(t, nil)
	if err := outer.Start(5 * time.Second); err != nil {
		t.Fatal(err)
	}

	inner.ExtendTimeout(7 * time.Second)

	if got := outer.Timeout(); got != 12*time.Second {
		t.Errorf("outer timeout = %v, want 12s", got)
	}
}

func TestEmbeddedFailurePropagates(t *testing.T) {
	_, _, outer, inner := embeddedFixture(t, nil)
	if err := outer.Start(5 * time.Second); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("permission denied")
	inner.SetError(boom)
	outer.Feed([]byte("")) // adoption happens on the feed path

	if _, err := outer.Result(); !errors.Is(err, boom) {
		t.Errorf("outer Result = %v, want wrapped %v", err, boom)
	}
}
