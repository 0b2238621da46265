// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package frame rate-limits the raw camera stream and hands accepted frames to
// the active recording session.
package frame

import (
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/inertial_recorder/internal/clock"
	"github.com/relabs-tech/inertial_recorder/internal/record"
)

const (
	DefaultTargetFPS = 12
	DefaultExt       = ".img"
)

// Name derives the image file name of a frame captured at ts seconds.
// Nanosecond formatting keeps names unique for distinct capture times.
func Name(ts float64, ext string) string {
	return strconv.FormatFloat(ts, 'f', 9, 64) + ext
}

// Stats are the throttler's counters since it was created.
type Stats struct {
	Accepted     uint64  `json:"accepted"`
	Throttled    uint64  `json:"throttled"` // too close to the previous accepted frame
	Rejected     uint64  `json:"rejected"`  // timestamp not after the previous accepted frame
	EffectiveFPS float64 `json:"effective_fps"`
}

// Throttler caps the frame rate written to the session.
type Throttler struct {
	src       record.Source
	targetFPS float64
	// minGap is 1/targetFPS rounded up to whole nanoseconds; gaps are compared
	// on the same nanosecond grid the image names use.
	minGap time.Duration
	ext    string

	mu       sync.Mutex
	sess     *record.Session
	last     time.Duration
	haveLast bool

	accepted  atomic.Uint64
	throttled atomic.Uint64
	rejected  atomic.Uint64
	fpsBits   atomic.Uint64
}

// NewThrottler creates a throttler capped at targetFPS (DefaultTargetFPS when <= 0).
// ext is appended to image names (DefaultExt when empty).
func NewThrottler(src record.Source, targetFPS float64, ext string) *Throttler {
	if targetFPS <= 0 {
		targetFPS = DefaultTargetFPS
	}
	if ext == "" {
		ext = DefaultExt
	}
	return &Throttler{
		src:       src,
		targetFPS: targetFPS,
		minGap:    time.Duration(math.Ceil(float64(time.Second) / targetFPS)),
		ext:       ext,
	}
}

// TargetFPS returns the configured cap.
func (t *Throttler) TargetFPS() float64 { return t.targetFPS }

// OnFrame is called once per raw frame. While no session is active it returns
// after a single atomic load. payload is handed to the writer as-is.
func (t *Throttler) OnFrame(payload []byte, ts float64) {
	t.Accept(t.src.Current(), payload, ts)
}

// Accept throttles a frame on behalf of session s, which callers captured when
// the frame arrived. A nil session discards the frame.
func (t *Throttler) Accept(s *record.Session, payload []byte, ts float64) {
	if s == nil {
		return
	}
	at := clock.ToDuration(ts)

	t.mu.Lock()
	defer t.mu.Unlock()

	if s != t.sess {
		t.sess = s
		t.haveLast = false
		t.fpsBits.Store(0)
	}

	if t.haveLast {
		gap := at - t.last
		if gap <= 0 {
			t.rejected.Add(1)
			return
		}
		if gap < t.minGap {
			t.throttled.Add(1)
			return
		}
		t.fpsBits.Store(math.Float64bits(1 / gap.Seconds()))
	}
	t.last = at
	t.haveLast = true
	t.accepted.Add(1)

	// submitted under mu so the frame log follows acceptance order
	s.SubmitFrame(record.FrameRecord{Name: Name(ts, t.ext), TS: ts}, payload)
}

// EffectiveFPS is the rate implied by the last two accepted frames, 0 until
// two frames were accepted in the current session.
func (t *Throttler) EffectiveFPS() float64 {
	return math.Float64frombits(t.fpsBits.Load())
}

func (t *Throttler) Stats() Stats {
	return Stats{
		Accepted:     t.accepted.Load(),
		Throttled:    t.throttled.Load(),
		Rejected:     t.rejected.Load(),
		EffectiveFPS: t.EffectiveFPS(),
	}
}
