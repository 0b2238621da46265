// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package record

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive is returned by Begin while another session is recording.
	ErrSessionActive = errors.New("recorder: session already active")
	// ErrNoActiveSession is returned by End when nothing is recording.
	ErrNoActiveSession = errors.New("recorder: no active session")
	// ErrInvalidSessionName rejects names that are not a single path component.
	ErrInvalidSessionName = errors.New("recorder: invalid session name")
	// ErrRecordingDegraded is reported once writes have failed repeatedly in a row.
	ErrRecordingDegraded = errors.New("recorder: recording degraded")
)

// StorageError describes a failed directory or file operation.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("recorder: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageFailure reports whether err carries a StorageError.
func IsStorageFailure(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
