// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/parley-sh/parley/command"
	"github.com/parley-sh/parley/dispatch"
	"github.com/parley-sh/parley/journal"
	"github.com/parley-sh/parley/profile"
	"github.com/parley-sh/parley/runner"
)

func runSession(args []string) error {
	var (
		urlFlag     string
		profilePath string
		commandText string
		journalPath string
		compression string
		timeout     time.Duration
		verbose     bool
	)
	flagSet := pflag.NewFlagSet("parley run", pflag.ContinueOnError)
	flagSet.StringVar(&urlFlag, "url", "", "transport URL (tcp://, ssh://, serial://, exec:)")
	flagSet.StringVar(&profilePath, "profile", "", "device profile YAML")
	flagSet.StringVar(&commandText, "command", "", "command text to send")
	flagSet.StringVar(&journalPath, "journal", "", "record the session to this file")
	flagSet.StringVar(&compression, "compress", "lz4", "journal compression: none, lz4, zstd")
	flagSet.DurationVar(&timeout, "timeout", 0, "override the profile's command timeout")
	flagSet.BoolVar(&verbose, "verbose", false, "debug logging")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if urlFlag == "" || profilePath == "" || commandText == "" {
		return fmt.Errorf("run needs --url, --profile, and --command")
	}

	logger := newLogger(verbose)
	deviceProfile, err := profile.Load(profilePath)
	if err != nil {
		return err
	}

	conn, err := dial(urlFlag)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := conn.Open(ctx); err != nil {
		return fmt.Errorf("opening %s: %w", conn.ID(), err)
	}
	defer conn.Close()

	if journalPath != "" {
		tag, err := journal.ParseCompressionTag(compression)
		if err != nil {
			return err
		}
		file, err := os.Create(journalPath)
		if err != nil {
			return fmt.Errorf("creating journal: %w", err)
		}
		defer file.Close()
		writer, err := journal.NewWriter(file, tag)
		if err != nil {
			return err
		}
		conn = journal.NewRecorder(conn, writer, nil, logger)
	}

	config := deviceProfile.Config(commandText)
	if timeout > 0 {
		config.Timeout = timeout
	}
	config.Logger = logger
	config.CompleteEmpty = true
	config.Fields = command.NewFields()
	config.Handlers = []dispatch.Handler{outputCollector(config.Fields)}

	r := runner.New(nil, nil, logger)
	defer r.Shutdown()
	fields, err := r.Run(context.Background(), command.New(conn, config))
	if err != nil {
		return fmt.Errorf("running %q: %w", commandText, err)
	}

	for _, key := range fields.Keys() {
		value, _ := fields.Get(key)
		fmt.Printf("%s: %v\n", key, value)
	}
	return nil
}

// outputCollector accumulates every complete output line under
// "output". Generic: the CLI knows the device's line discipline from
// the profile but nothing about any specific command's shape. It
// never claims a line, so the profile's error patterns still see
// everything.
func outputCollector(fields *command.Fields) dispatch.Handler {
	var lines []string
	return dispatch.HandlerFunc(func(line string, complete bool) dispatch.Disposition {
		if complete && line != "" {
			lines = append(lines, line)
			fields.Set("output", lines)
		}
		return dispatch.NotHandled
	})
}
