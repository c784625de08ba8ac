// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package modem

import "strings"

// Protocol constants. AT commands are CRLF-terminated; the SMS
// composition prompt is the one response that never ends in a line
// terminator.
const (
	CRLF      = "\r\n"
	SMSPrompt = "> "
	CtrlZ     = "\x1A"
)

// Final result codes.
const (
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
)

// Extended error prefixes (verbose mode, AT+CMEE).
const (
	CMEErrorPrefix = "+CME ERROR:"
	CMSErrorPrefix = "+CMS ERROR:"
)

// Common setup commands.
const (
	CmdAttention     = "AT"
	CmdEchoOff       = "ATE0"
	CmdTextMode      = "AT+CMGF=1"
	CmdVerboseErrors = "AT+CMEE=2"
	CmdIMSI          = "AT+CIMI"
	CmdSignal        = "AT+CSQ"
)

// urcPrefixes open unsolicited result codes: notifications the modem
// emits on its own, not in response to any command.
var urcPrefixes = []string{
	"+CMTI:", // new SMS stored
	"+CDSI:", // SMS status report
	"RING",   // incoming call
}

// ResponseType classifies one modem response line.
type ResponseType int

const (
	// Final terminates a command: no more output follows.
	Final ResponseType = iota

	// Data is intermediate command output before the final code.
	Data

	// URC is an asynchronous notification outside any command.
	URC

	// Prompt is the SMS composition prompt.
	Prompt
)

func (t ResponseType) String() string {
	switch t {
	case Final:
		return "final"
	case Data:
		return "data"
	case URC:
		return "urc"
	case Prompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// Classify determines how a response line should be handled. The
// input is a line without its terminator, or the bare prompt.
func Classify(line string) ResponseType {
	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return Final
	case SMSPrompt:
		return Prompt
	}
	if strings.HasPrefix(line, CMEErrorPrefix) || strings.HasPrefix(line, CMSErrorPrefix) {
		return Final
	}
	for _, prefix := range urcPrefixes {
		if strings.HasPrefix(line, prefix) {
			return URC
		}
	}
	return Data
}

// IsError reports whether a final result code is a failure.
func IsError(line string) bool {
	switch line {
	case ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return true
	}
	return strings.HasPrefix(line, CMEErrorPrefix) || strings.HasPrefix(line, CMSErrorPrefix)
}
