// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile loads YAML device profiles: the line discipline,
// prompt, and error vocabulary of one device family (a modem, a Unix
// shell, a switch CLI), kept out of code so new device types need no
// rebuild. A profile turns a bare command string into a ready
// command.Config.
package profile
