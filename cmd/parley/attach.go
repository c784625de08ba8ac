// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// detachByte ends an attach session (Ctrl-]).
const detachByte = 0x1d

func attachSession(args []string) error {
	var (
		urlFlag string
		verbose bool
	)
	flagSet := pflag.NewFlagSet("parley attach", pflag.ContinueOnError)
	flagSet.StringVar(&urlFlag, "url", "", "transport URL (tcp://, ssh://, serial://, exec:)")
	flagSet.BoolVar(&verbose, "verbose", false, "debug logging")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if urlFlag == "" {
		return fmt.Errorf("attach needs --url")
	}

	logger := newLogger(verbose)
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

	stdin := int(os.Stdin.Fd())
	if !term.IsTerminal(stdin) {
		return fmt.Errorf("attach needs a terminal on stdin")
	}
	restore, err := term.MakeRaw(stdin)
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(stdin, restore)

	fmt.Fprintf(os.Stderr, "attached to %s, detach with Ctrl-]\r\n", conn.ID())

	cancelData := conn.Subscribe(func(chunk []byte) { os.Stdout.Write(chunk) })
	defer cancelData()
	failed := make(chan error, 1)
	cancelErrors := conn.SubscribeErrors(func(err error) {
		select {
		case failed <- err:
		default:
		}
	})
	defer cancelErrors()

	input := make(chan byte, 256)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				close(input)
				return
			}
			if n == 1 {
				input <- buf[0]
			}
		}
	}()

	for {
		select {
		case err := <-failed:
			return fmt.Errorf("connection lost: %w", err)
		case b, ok := <-input:
			if !ok {
				return nil
			}
			if b == detachByte {
				logger.Debug("detaching on user request")
				return nil
			}
			if err := conn.Send([]byte{b}); err != nil {
				return fmt.Errorf("sending input: %w", err)
			}
		}
	}
}
