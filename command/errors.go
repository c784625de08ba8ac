// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package command

import "fmt"

// DeviceError is the failure outcome when a handler recognized an
// error pattern in the device output.
type DeviceError struct {
	// Command is the command string that provoked the error.
	Command string

	// Line is the device output line that matched an error pattern.
	Line string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device rejected %q: %s", e.Command, e.Line)
}
