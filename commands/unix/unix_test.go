// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package unix

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parley-sh/parley/connection"
	"github.com/parley-sh/parley/publish"
	"github.com/parley-sh/parley/runner"
)

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

var shellPrompt = regexp.MustCompile(`\$ $`)

func TestWhoami(t *testing.T) {
	near, far := connection.NewPipe()
	far.Subscribe(func(chunk []byte) {
		if strings.Contains(string(chunk), "whoami") {
			far.Send([]byte("whoami\r\nalice\r\n$ "))
		}
	})

	r := runner.New(nil, nil, quiet())
	defer r.Shutdown()

	fields, err := r.Run(context.Background(),
		Whoami(near, Options{Prompt: shellPrompt, Timeout: 5 * time.Second, Logger: quiet()}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if user, _ := fields.Get("user"); user != "alice" {
		t.Errorf("user = %v, want alice", user)
	}
}

func TestPingPublishesIntervalSamples(t *testing.T) {
	near, far := connection.NewPipe()
	far.Subscribe(func(chunk []byte) {
		if !strings.Contains(string(chunk), "ping") {
			return
		}
		// Replies arrive as separate chunks, the way a live ping
		// trickles in.
		far.Send([]byte("ping -c 2 db1\r\n"))
		far.Send([]byte("64 bytes from db1 (10.0.0.7): icmp_seq=1 ttl=64 time=0.41 ms\r\n"))
		far.Send([]byte("64 bytes from db1 (10.0.0.7): icmp_seq=2 ttl=64 time=0.39 ms\r\n"))
		far.Send([]byte("\r\n--- db1 ping statistics ---\r\n"))
		far.Send([]byte("2 packets transmitted, 2 received, 0% packet loss, time 1018ms\r\n$ "))
	})

	publisher := publish.New(quiet())
	var mu sync.Mutex
	var samples []publish.Sample
	publisher.Subscribe(func(sample publish.Sample) {
		mu.Lock()
		samples = append(samples, sample)
		mu.Unlock()
	})

	r := runner.New(nil, nil, quiet())
	defer r.Shutdown()

	fields, err := r.Run(context.Background(),
		Ping(near, "db1", 2, publisher, Options{Prompt: shellPrompt, Timeout: 5 * time.Second, Logger: quiet()}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(samples) != 2 {
		t.Fatalf("published %d samples, want 2", len(samples))
	}
	if samples[0]["seq"] != 1 || samples[1]["seq"] != 2 {
		t.Errorf("sample sequence = %v, %v", samples[0]["seq"], samples[1]["seq"])
	}
	if rtt := samples[0]["time_ms"]; rtt != 0.41 {
		t.Errorf("first sample time_ms = %v, want 0.41", rtt)
	}

	if transmitted, _ := fields.Get("transmitted"); transmitted != 2 {
		t.Errorf("transmitted = %v, want 2", transmitted)
	}
	if received, _ := fields.Get("received"); received != 2 {
		t.Errorf("received = %v, want 2", received)
	}
	if loss, _ := fields.Get("loss_percent"); loss != 0.0 {
		t.Errorf("loss_percent = %v, want 0", loss)
	}
}

func TestSudoElevatesEmbeddedCommand(t *testing.T) {
	near, far := connection.NewPipe()

	var mu sync.Mutex
	var deviceInput []string
	far.Subscribe(func(chunk []byte) {
		mu.Lock()
		deviceInput = append(deviceInput, string(chunk))
		mu.Unlock()
		switch strings.TrimRight(string(chunk), "\n") {
		case "sudo whoami":
			far.Send([]byte("[sudo] password for alice: "))
		case "hunter2":
			// Password is not echoed; the device moves on to the
			// command output.
			far.Send([]byte("\r\nroot\r\n$ "))
		}
	})

	inner := Whoami(near, Options{Prompt: shellPrompt, Timeout: 5 * time.Second, Logger: quiet()})
	outer := Sudo(near, inner, SudoConfig{
		Password: "hunter2",
		Options:  Options{Timeout: 10 * time.Second, Logger: quiet()},
	})

	r := runner.New(nil, nil, quiet())
	defer r.Shutdown()

	fields, err := r.Run(context.Background(), outer)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if user, _ := fields.Get("user"); user != "root" {
		t.Errorf("user = %v, want root", user)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(deviceInput) != 2 {
		t.Fatalf("device input = %q, want command then password", deviceInput)
	}
	if deviceInput[0] != "sudo whoami\n" {
		t.Errorf("first send = %q: the wrapper must carry the embedded text", deviceInput[0])
	}
	if deviceInput[1] != "hunter2\n" {
		t.Errorf("second send = %q, want the password", deviceInput[1])
	}
}

var errSendBroken = errors.New("write: broken pipe")

// brokenAfterFirstSend forwards the first Send and fails the rest,
// standing in for a transport that dies mid-session.
type brokenAfterFirstSend struct {
	connection.Connection
	mu    sync.Mutex
	sends int
}

func (b *brokenAfterFirstSend) Send(data []byte) error {
	b.mu.Lock()
	b.sends++
	sends := b.sends
	b.mu.Unlock()
	if sends > 1 {
		return errSendBroken
	}
	return b.Connection.Send(data)
}

func TestSudoFailsWhenPasswordSendFails(t *testing.T) {
	near, far := connection.NewPipe()
	far.Subscribe(func(chunk []byte) {
		if strings.TrimRight(string(chunk), "\n") == "sudo whoami" {
			far.Send([]byte("[sudo] password for alice: "))
		}
	})
	broken := &brokenAfterFirstSend{Connection: near}

	inner := Whoami(broken, Options{Prompt: shellPrompt, Timeout: 2 * time.Second, Logger: quiet()})
	outer := Sudo(broken, inner, SudoConfig{
		Password: "hunter2",
		Options:  Options{Timeout: 2 * time.Second, Logger: quiet()},
	})

	r := runner.New(nil, nil, quiet())
	defer r.Shutdown()

	// The failure must surface immediately through the command's
	// outcome, not as an eventual timeout.
	if _, err := r.Run(context.Background(), outer); !errors.Is(err, errSendBroken) {
		t.Fatalf("Run = %v, want the transport failure", err)
	}
}
