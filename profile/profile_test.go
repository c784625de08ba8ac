// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"strings"
	"testing"
	"time"
)

const shellProfile = `
name: linux-shell
newlines: ["\r\n", "\n"]
prompt: '[$#] $'
error_patterns:
  - 'command not found'
  - 'Permission denied'
credential_prompt: '\[sudo\] password for'
echo: true
send_newline: "\n"
timeout: 30s
`

func TestParseShellProfile(t *testing.T) {
	p, err := Parse([]byte(shellProfile))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Name != "linux-shell" {
		t.Errorf("Name = %q", p.Name)
	}
	if len(p.Newlines) != 2 || p.Newlines[0] != "\r\n" {
		t.Errorf("Newlines = %q", p.Newlines)
	}
	if !p.Prompt.MatchString("user@host:~$ ") {
		t.Error("prompt pattern does not match a shell prompt")
	}
	if !p.CredentialPrompt.MatchString("[sudo] password for alice: ") {
		t.Error("credential pattern does not match a sudo prompt")
	}
	if time.Duration(p.Timeout) != 30*time.Second {
		t.Errorf("Timeout = %v", time.Duration(p.Timeout))
	}
	if !p.Echo {
		t.Error("Echo = false")
	}
}

func TestConfigCarriesProfileSettings(t *testing.T) {
	p, err := Parse([]byte(shellProfile))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	config := p.Config("uname -a")
	if config.Text != "uname -a" {
		t.Errorf("Text = %q", config.Text)
	}
	if config.Prompt == nil || !config.Prompt.MatchString("host$ ") {
		t.Error("prompt not carried into the config")
	}
	if len(config.ErrorPatterns) != 2 {
		t.Fatalf("ErrorPatterns = %d, want 2", len(config.ErrorPatterns))
	}
	if !config.ErrorPatterns[0].MatchString("bash: frob: command not found") {
		t.Error("error pattern not carried into the config")
	}
	if !config.SkipEcho {
		t.Error("echoing device must skip its echo line")
	}
	if config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", config.Timeout)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing prompt",
			yaml: "name: broken\n",
			want: "prompt is required",
		},
		{
			name: "missing name",
			yaml: "prompt: '\\$ $'\n",
			want: "name is required",
		},
		{
			name: "invalid pattern",
			yaml: "name: broken\nprompt: '['\n",
			want: "compiling pattern",
		},
		{
			name: "invalid duration",
			yaml: "name: broken\nprompt: '\\$ $'\ntimeout: soon\n",
			want: "parsing duration",
		},
		{
			name: "empty newline marker",
			yaml: "name: broken\nprompt: '\\$ $'\nnewlines: [\"\"]\n",
			want: "empty newline marker",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse accepted invalid profile")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}
