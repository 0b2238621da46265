// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package clock provides the capture timestamp domain shared by every producer.
//
// All samples (frames, inertial channels, location fixes) must be stamped from the
// same Clock so that cross-stream alignment in the recorded logs is meaningful.
package clock

import (
	"math"
	"sync"
	"time"
)

// Clock supplies monotonic capture timestamps in seconds.
type Clock interface {
	Now() float64
}

// ToDuration converts capture seconds to a time.Duration.
func ToDuration(sec float64) time.Duration {
	return time.Duration(math.Round(sec * float64(time.Second)))
}

// FromDuration converts a time.Duration to capture seconds.
func FromDuration(d time.Duration) float64 {
	return d.Seconds()
}

// processClock counts from process start using the runtime monotonic reading.
type processClock struct {
	start time.Time
}

func (c processClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu  sync.Mutex
	now float64
}

// NewManual returns a Manual clock starting at start seconds.
func NewManual(start float64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to sec.
func (m *Manual) Set(sec float64) {
	m.mu.Lock()
	m.now = sec
	m.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new reading.
func (m *Manual) Advance(d time.Duration) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += FromDuration(d)
	return m.now
}
