// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build !linux

package clock

import "time"

// Monotonic returns a process-local monotonic clock. Producers in other processes
// do not share its domain on this platform.
func Monotonic() Clock {
	return processClock{start: time.Now()}
}
