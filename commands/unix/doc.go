// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package unix provides commands for Unix shells: simple queries
// (whoami), long-running commands that stream per-interval
// measurements (ping), and privilege elevation (sudo) built on
// embedded command composition.
package unix
