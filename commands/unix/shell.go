// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package unix

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/parley-sh/parley/command"
	"github.com/parley-sh/parley/connection"
	"github.com/parley-sh/parley/dispatch"
	"github.com/parley-sh/parley/lib/clock"
	"github.com/parley-sh/parley/publish"
)

// Options carries the shell context every command needs: how to
// recognize the prompt, plus the usual cross-cutting knobs.
type Options struct {
	// Prompt recognizes the shell's ready-for-input prompt.
	Prompt *regexp.Regexp

	Timeout time.Duration
	Clock   clock.Clock
	Logger  *slog.Logger
}

// userLine is a bare username on a line of its own. Deliberately
// strict so prompt fragments and echoed command lines are never
// mistaken for output, also when running under Sudo.
var userLine = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)

// Whoami reports the effective user. On success the result carries
// one field, "user".
func Whoami(conn connection.Connection, opts Options) *command.Command {
	fields := command.NewFields()
	capture := dispatch.HandlerFunc(func(line string, complete bool) dispatch.Disposition {
		if !complete || !userLine.MatchString(line) {
			return dispatch.NotHandled
		}
		if _, ok := fields.Get("user"); ok {
			return dispatch.NotHandled
		}
		fields.Set("user", line)
		return dispatch.Handled
	})
	return command.New(conn, command.Config{
		Text:     "whoami",
		Prompt:   opts.Prompt,
		Handlers: []dispatch.Handler{capture},
		Fields:   fields,
		SkipEcho: true,
		Timeout:  opts.Timeout,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
	})
}

// pingReply captures one echo reply: sequence number, TTL, round-trip
// time.
var pingReply = regexp.MustCompile(`icmp_seq=(\d+) ttl=(\d+) time=([\d.]+) ms`)

// pingSummary captures the closing statistics line.
var pingSummary = regexp.MustCompile(`^(\d+) packets transmitted, (\d+) (?:packets )?received, ([\d.]+)% packet loss`)

// Ping runs "ping -c count host". Every echo reply is published as a
// sample ("seq", "ttl", "time_ms") the moment it arrives; the final
// result carries "transmitted", "received", and "loss_percent" from
// the statistics line.
func Ping(conn connection.Connection, host string, count int, publisher *publish.Publisher, opts Options) *command.Command {
	fields := command.NewFields()
	capture := dispatch.HandlerFunc(func(line string, complete bool) dispatch.Disposition {
		if !complete {
			return dispatch.NotHandled
		}
		if match := pingReply.FindStringSubmatch(line); match != nil {
			if publisher != nil {
				seq, _ := strconv.Atoi(match[1])
				ttl, _ := strconv.Atoi(match[2])
				rtt, _ := strconv.ParseFloat(match[3], 64)
				publisher.Notify(publish.Sample{"seq": seq, "ttl": ttl, "time_ms": rtt})
			}
			return dispatch.Handled
		}
		if match := pingSummary.FindStringSubmatch(line); match != nil {
			transmitted, _ := strconv.Atoi(match[1])
			received, _ := strconv.Atoi(match[2])
			loss, _ := strconv.ParseFloat(match[3], 64)
			fields.Set("transmitted", transmitted)
			fields.Set("received", received)
			fields.Set("loss_percent", loss)
			return dispatch.Handled
		}
		return dispatch.NotHandled
	})
	return command.New(conn, command.Config{
		Text:     fmt.Sprintf("ping -c %d %s", count, host),
		Prompt:   opts.Prompt,
		Handlers: []dispatch.Handler{capture},
		Fields:   fields,
		SkipEcho: true,
		Timeout:  opts.Timeout,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
	})
}
