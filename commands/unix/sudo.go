// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package unix

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/parley-sh/parley/command"
	"github.com/parley-sh/parley/connection"
	"github.com/parley-sh/parley/dispatch"
)

// defaultPasswordPrompt matches sudo's interactive password request.
// The prompt is never newline-terminated, so it is seen as a partial
// line.
var defaultPasswordPrompt = regexp.MustCompile(`\[sudo\] password for `)

// SudoConfig parameterizes privilege elevation.
type SudoConfig struct {
	// Password is sent when the password prompt appears. Empty means
	// passwordless sudo is expected.
	Password string

	// PasswordPrompt recognizes the password request. Nil selects the
	// standard "[sudo] password for" prompt.
	PasswordPrompt *regexp.Regexp

	Options
}

// Sudo wraps inner so it runs with elevated privileges: the sent text
// is "sudo <inner text>", the password prompt is answered from
// config, all other output flows verbatim into inner, and inner's
// result becomes this command's result once the shell prompt returns.
// Timeout extensions made on inner are mirrored onto the wrapper.
func Sudo(conn connection.Connection, inner *command.Command, config SudoConfig) *command.Command {
	passwordPrompt := config.PasswordPrompt
	if passwordPrompt == nil {
		passwordPrompt = defaultPasswordPrompt
	}

	var mu sync.Mutex
	answered := false
	var elevated *command.Command
	credentials := dispatch.HandlerFunc(func(line string, complete bool) dispatch.Disposition {
		// The password request arrives as an unterminated partial
		// line. Answer it once; sudo re-asking means a wrong password
		// and ends in a device error or timeout.
		if complete || !passwordPrompt.MatchString(line) {
			return dispatch.NotHandled
		}
		mu.Lock()
		defer mu.Unlock()
		if answered {
			return dispatch.Handled
		}
		answered = true
		if config.Password != "" {
			if err := conn.Send([]byte(config.Password + "\n")); err != nil {
				elevated.SetError(fmt.Errorf("answering password prompt: %w", err))
			}
		}
		return dispatch.Handled
	})

	elevated = command.New(conn, command.Config{
		Text:     "sudo " + inner.Text(),
		Prompt:   config.Prompt,
		Handlers: []dispatch.Handler{credentials},
		Embed:    inner,
		Timeout:  config.Timeout,
		Clock:    config.Clock,
		Logger:   config.Logger,
	})
	return elevated
}
