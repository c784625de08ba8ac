// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parley-sh/parley/command"
)

// Pattern is a regexp that unmarshals from a YAML scalar.
type Pattern struct {
	*regexp.Regexp
}

// UnmarshalYAML compiles the scalar as a regular expression.
func (p *Pattern) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("pattern must be a string, got %v", value.Kind)
	}
	compiled, err := regexp.Compile(value.Value)
	if err != nil {
		return fmt.Errorf("compiling pattern %q: %w", value.Value, err)
	}
	p.Regexp = compiled
	return nil
}

// Duration unmarshals from a YAML scalar in time.ParseDuration form
// ("30s", "1m30s").
type Duration time.Duration

// UnmarshalYAML parses the scalar with time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a string, got %v", value.Kind)
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Profile describes one device family's line discipline.
type Profile struct {
	// Name identifies the profile in logs and CLI output.
	Name string `yaml:"name"`

	// Newlines are the line terminators the device emits, longest
	// match preferred. Empty selects CRLF-then-LF.
	Newlines []string `yaml:"newlines"`

	// Prompt recognizes the device's ready-for-input prompt. Matched
	// against complete lines and the growing partial line.
	Prompt Pattern `yaml:"prompt"`

	// ErrorPatterns are lines the device emits on command failure
	// ("ERROR", "% Invalid input", "command not found").
	ErrorPatterns []Pattern `yaml:"error_patterns"`

	// CredentialPrompt recognizes an interactive password request
	// ("[sudo] password for", "Password:"). Used by privilege
	// elevation commands; optional.
	CredentialPrompt Pattern `yaml:"credential_prompt"`

	// Echo reports whether the device echoes sent command text back
	// on the stream.
	Echo bool `yaml:"echo"`

	// SendNewline is appended to every sent command. Empty selects
	// "\n".
	SendNewline string `yaml:"send_newline"`

	// Timeout is the default per-command budget. Zero selects the
	// command package default.
	Timeout Duration `yaml:"timeout"`
}

// Load reads a profile from a YAML file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes a profile from YAML bytes and validates it.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that the profile is usable.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile: name is required")
	}
	if p.Prompt.Regexp == nil {
		return fmt.Errorf("profile %q: prompt is required", p.Name)
	}
	for _, marker := range p.Newlines {
		if marker == "" {
			return fmt.Errorf("profile %q: empty newline marker", p.Name)
		}
	}
	return nil
}

// Config builds a command.Config for text under this profile. The
// caller adds handlers and may override any field afterwards.
func (p *Profile) Config(text string) command.Config {
	patterns := make([]*regexp.Regexp, 0, len(p.ErrorPatterns))
	for _, pattern := range p.ErrorPatterns {
		patterns = append(patterns, pattern.Regexp)
	}
	return command.Config{
		Text:          text,
		Prompt:        p.Prompt.Regexp,
		ErrorPatterns: patterns,
		SkipEcho:      p.Echo,
		Newlines:      p.Newlines,
		SendNewline:   p.SendNewline,
		Timeout:       time.Duration(p.Timeout),
	}
}
