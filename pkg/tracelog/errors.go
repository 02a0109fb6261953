// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package tracelog

import (
	"errors"
	"fmt"
)

// ErrNoActiveFile is returned when an operation needs an open trace file but
// logging is disabled or the file could not be opened.
var ErrNoActiveFile = errors.New("no active trace file")

// ConfigurationError reports a trace folder that cannot be used. The writer
// stays in no-op mode after returning it.
type ConfigurationError struct {
	Folder string
	Err    error
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("trace folder %q is not usable: %v", e.Folder, e.Err)
}

// Unwrap returns the underlying filesystem error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IOError reports a failed file operation (open, write, sync, rotate).
type IOError struct {
	Op   string
	Path string
	Err  error
}

// Error implements error.
func (e *IOError) Error() string {
	return fmt.Sprintf("trace log %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying filesystem error.
func (e *IOError) Unwrap() error {
	return e.Err
}
