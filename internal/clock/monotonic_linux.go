// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build linux

package clock

import (
	"log"
	"time"

	"golang.org/x/sys/unix"
)

// kernelClock reads CLOCK_MONOTONIC so separate producer processes on the same
// host stamp samples in one domain.
type kernelClock struct {
	fallback processClock
}

// Monotonic returns the host-wide monotonic clock.
func Monotonic() Clock {
	return &kernelClock{fallback: processClock{start: time.Now()}}
}

func (c *kernelClock) Now() float64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		log.Printf("clock: CLOCK_MONOTONIC read failed, using process clock: %v", err)
		return c.fallback.Now()
	}
	return float64(ts.Sec) + float64(ts.Nsec)/1e9
}
