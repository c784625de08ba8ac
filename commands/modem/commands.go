// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package modem

import (
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/parley-sh/parley/command"
	"github.com/parley-sh/parley/connection"
	"github.com/parley-sh/parley/dispatch"
	"github.com/parley-sh/parley/lib/clock"
)

// Options carries the cross-cutting knobs every modem command
// accepts. The zero value selects the command package defaults.
type Options struct {
	Timeout time.Duration
	Clock   clock.Clock
	Logger  *slog.Logger
}

// completion matches the successful final result code.
var completion = regexp.MustCompile(`^OK$`)

// failurePatterns are the final result codes that fail a command.
var failurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^ERROR$`),
	regexp.MustCompile(`^\+CME ERROR:`),
	regexp.MustCompile(`^\+CMS ERROR:`),
	regexp.MustCompile(`^NO CARRIER$`),
	regexp.MustCompile(`^NO DIALTONE$`),
	regexp.MustCompile(`^BUSY$`),
	regexp.MustCompile(`^NO ANSWER$`),
}

func build(conn connection.Connection, text string, handlers []dispatch.Handler, fields *command.Fields, completeEmpty bool, opts Options) *command.Command {
	return command.New(conn, command.Config{
		Text:          text,
		Prompt:        completion,
		Handlers:      handlers,
		Fields:        fields,
		ErrorPatterns: failurePatterns,
		SkipEcho:      true,
		CompleteEmpty: completeEmpty,
		Timeout:       opts.Timeout,
		Clock:         opts.Clock,
		Logger:        opts.Logger,
	})
}

// imsiLine is 5 to 15 decimal digits on a line of their own.
var imsiLine = regexp.MustCompile(`^[0-9]{5,15}$`)

// Cimi queries the SIM's subscriber identity (AT+CIMI). On success
// the result carries one field, "imsi".
func Cimi(conn connection.Connection, opts Options) *command.Command {
	fields := command.NewFields()
	capture := dispatch.HandlerFunc(func(line string, complete bool) dispatch.Disposition {
		if !complete || !imsiLine.MatchString(line) {
			return dispatch.NotHandled
		}
		fields.Set("imsi", line)
		return dispatch.Handled
	})
	return build(conn, CmdIMSI, []dispatch.Handler{capture}, fields, false, opts)
}

// csqLine captures the RSSI and bit-error-rate numbers of a +CSQ
// response.
var csqLine = regexp.MustCompile(`^\+CSQ: (\d+),(\d+)$`)

// SignalQuality queries signal strength (AT+CSQ). On success the
// result carries "rssi" and "ber" as ints.
func SignalQuality(conn connection.Connection, opts Options) *command.Command {
	fields := command.NewFields()
	capture := dispatch.HandlerFunc(func(line string, complete bool) dispatch.Disposition {
		if !complete {
			return dispatch.NotHandled
		}
		match := csqLine.FindStringSubmatch(line)
		if match == nil {
			return dispatch.NotHandled
		}
		rssi, _ := strconv.Atoi(match[1])
		ber, _ := strconv.Atoi(match[2])
		fields.Set("rssi", rssi)
		fields.Set("ber", ber)
		return dispatch.Handled
	})
	return build(conn, CmdSignal, []dispatch.Handler{capture}, fields, false, opts)
}

// Generic runs an arbitrary AT command, collecting every intermediate
// data line under "lines". Commands with no output (ATE0, AT+CMGF=1)
// complete on the bare OK.
func Generic(conn connection.Connection, text string, opts Options) *command.Command {
	fields := command.NewFields()
	var lines []string
	capture := dispatch.HandlerFunc(func(line string, complete bool) dispatch.Disposition {
		if !complete || line == "" || Classify(line) != Data {
			return dispatch.NotHandled
		}
		lines = append(lines, line)
		fields.Set("lines", lines)
		return dispatch.Handled
	})
	return build(conn, text, []dispatch.Handler{capture}, fields, true, opts)
}
