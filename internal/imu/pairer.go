// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/relabs-tech/inertial_recorder/internal/record"
)

// PairerStats are counters since the pairer was created.
type PairerStats struct {
	Paired   uint64 `json:"paired"`
	Replaced uint64 `json:"replaced"` // pending sample discarded unpaired
	TooFar   uint64 `json:"too_far"`  // pairs rejected by MaxGap
}

// Pairer combines adjacent accel and gyro samples into one InertialRecord.
//
// It keeps at most one pending sample. A sample of the other channel completes
// the pair; a sample of the same channel replaces it. There is no time window
// unless MaxGap is set, so a stalled channel can pair samples far apart.
type Pairer struct {
	src record.Source

	// MaxGap, when > 0, refuses pairs whose timestamps differ by more than
	// MaxGap seconds; the incoming sample then becomes pending.
	MaxGap float64

	mu          sync.Mutex
	sess        *record.Session
	pending     Sample
	havePending bool

	paired   atomic.Uint64
	replaced atomic.Uint64
	tooFar   atomic.Uint64
}

// NewPairer creates a pairer writing to the session provided by src.
func NewPairer(src record.Source) *Pairer {
	return &Pairer{src: src}
}

// OnSample is called for every accel or gyro sample. It is safe to call from
// several goroutines; while idle it returns after a single atomic load.
func (p *Pairer) OnSample(ch Channel, ts, v0, v1, v2 float64) {
	p.Pair(p.src.Current(), ch, ts, v0, v1, v2)
}

// Pair is OnSample for a session the caller captured when the sample arrived.
// A nil session discards the sample.
func (p *Pairer) Pair(s *record.Session, ch Channel, ts, v0, v1, v2 float64) {
	if s == nil || (ch != Accel && ch != Gyro) {
		return
	}
	in := Sample{Channel: ch, TS: ts, V: [3]float64{v0, v1, v2}}

	p.mu.Lock()
	defer p.mu.Unlock()

	if s != p.sess {
		p.sess = s
		p.havePending = false
	}

	if !p.havePending || p.pending.Channel == ch {
		if p.havePending {
			p.replaced.Add(1)
		}
		p.pending = in
		p.havePending = true
		return
	}

	if p.MaxGap > 0 && math.Abs(in.TS-p.pending.TS) > p.MaxGap {
		p.tooFar.Add(1)
		p.pending = in
		return
	}

	accel, gyro := p.pending, in
	if ch == Accel {
		accel, gyro = in, p.pending
	}
	p.havePending = false
	p.paired.Add(1)

	s.SubmitInertial(record.InertialRecord{
		TS: in.TS,
		Ax: accel.V[0], Ay: accel.V[1], Az: accel.V[2],
		Gx: gyro.V[0], Gy: gyro.V[1], Gz: gyro.V[2],
	})
}

// Stats returns the pairing counters.
func (p *Pairer) Stats() PairerStats {
	return PairerStats{
		Paired:   p.paired.Load(),
		Replaced: p.replaced.Load(),
		TooFar:   p.tooFar.Load(),
	}
}
