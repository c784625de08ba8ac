// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/parley-sh/parley/connection"
)

// dial builds a connection from a transport URL. The connection is
// not opened.
func dial(rawURL string) (connection.Connection, error) {
	if rest, ok := strings.CutPrefix(rawURL, "exec:"); ok {
		parts := strings.Fields(rest)
		if len(parts) == 0 {
			return nil, fmt.Errorf("exec transport needs a program: %q", rawURL)
		}
		return connection.NewProcess(parts[0], parts[1:]...), nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing transport URL: %w", err)
	}
	switch parsed.Scheme {
	case "tcp":
		if parsed.Host == "" {
			return nil, fmt.Errorf("tcp transport needs host:port: %q", rawURL)
		}
		return connection.NewTCP(parsed.Host), nil

	case "ssh":
		if parsed.User == nil || parsed.User.Username() == "" {
			return nil, fmt.Errorf("ssh transport needs a user: %q", rawURL)
		}
		host := parsed.Host
		if parsed.Port() == "" {
			host += ":22"
		}
		password, _ := parsed.User.Password()
		return connection.NewSSH(connection.SSHConfig{
			Address:  host,
			User:     parsed.User.Username(),
			Password: password,
		}), nil

	case "serial":
		if parsed.Path == "" {
			return nil, fmt.Errorf("serial transport needs a device path: %q", rawURL)
		}
		config := connection.SerialConfig{Port: parsed.Path}
		if baud := parsed.Query().Get("baud"); baud != "" {
			config.BaudRate, err = strconv.Atoi(baud)
			if err != nil {
				return nil, fmt.Errorf("parsing baud rate %q: %w", baud, err)
			}
		}
		return connection.NewSerial(config), nil

	default:
		return nil, fmt.Errorf("unknown transport scheme %q", parsed.Scheme)
	}
}
