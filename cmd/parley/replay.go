// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/parley-sh/parley/dispatch"
	"github.com/parley-sh/parley/journal"
	"github.com/parley-sh/parley/profile"
)

func replaySession(args []string) error {
	var (
		journalPath string
		profilePath string
		raw         bool
		verbose     bool
	)
	flagSet := pflag.NewFlagSet("parley replay", pflag.ContinueOnError)
	flagSet.StringVar(&journalPath, "journal", "", "session journal to replay")
	flagSet.StringVar(&profilePath, "profile", "", "device profile YAML (line discipline for re-parsing)")
	flagSet.BoolVar(&raw, "raw", false, "dump records instead of re-parsing received lines")
	flagSet.BoolVar(&verbose, "verbose", false, "debug logging")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if journalPath == "" {
		return fmt.Errorf("replay needs --journal")
	}

	file, err := os.Open(journalPath)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer file.Close()
	reader, err := journal.NewReader(file)
	if err != nil {
		return err
	}

	if raw {
		return dumpRecords(reader)
	}

	// Re-parse the received byte stream through the same line
	// reassembly a live session would use.
	var newlines []string
	if profilePath != "" {
		deviceProfile, err := profile.Load(profilePath)
		if err != nil {
			return err
		}
		newlines = deviceProfile.Newlines
	}
	printer := dispatch.HandlerFunc(func(line string, complete bool) dispatch.Disposition {
		if complete {
			fmt.Println(line)
		}
		return dispatch.Handled
	})
	disp := dispatch.New(dispatch.Config{
		Newlines: newlines,
		Handlers: []dispatch.Handler{printer},
		Logger:   newLogger(verbose),
	})
	return reader.Replay(disp.Feed)
}

func dumpRecords(reader *journal.Reader) error {
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %-8s %q\n",
			record.Time.Format("15:04:05.000"), record.Direction, record.Data)
	}
}
