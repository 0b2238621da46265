// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"sync/atomic"

	"github.com/relabs-tech/inertial_recorder/internal/record"
)

// Recorder turns location fixes into gps.log lines.
type Recorder struct {
	src      record.Source
	recorded atomic.Uint64
}

func NewRecorder(src record.Source) *Recorder {
	return &Recorder{src: src}
}

// OnLocation records fix when a session is active. Accuracy fields the fix's
// capabilities do not cover stay zero.
func (r *Recorder) OnLocation(fix Fix) {
	r.Record(r.src.Current(), fix)
}

// Record writes fix into session s, captured by the caller when the fix
// arrived. A nil or ended session discards it.
func (r *Recorder) Record(s *record.Session, fix Fix) {
	if s == nil {
		return
	}
	if s.SubmitLocation(ToRecord(fix)) {
		r.recorded.Add(1)
	}
}

// Recorded counts fixes handed to a session.
func (r *Recorder) Recorded() uint64 { return r.recorded.Load() }

// ToRecord maps a fix onto the gps.log schema.
func ToRecord(fix Fix) record.LocationRecord {
	rec := record.LocationRecord{
		TS:       fix.TS,
		Lat:      fix.Latitude,
		Lon:      fix.Longitude,
		Alt:      fix.Altitude,
		Speed:    fix.Speed,
		Yaw:      fix.Bearing,
		Acc:      fix.Accuracy,
		Provider: fix.Provider,
	}
	if fix.Caps.Has(CapBearingAccuracy) {
		rec.AccYaw = fix.BearingAccuracy
	}
	if fix.Caps.Has(CapVerticalAccuracy) {
		rec.AccV = fix.VerticalAccuracy
	}
	if fix.Caps.Has(CapSpeedAccuracy) {
		rec.AccSpeed = fix.SpeedAccuracy
	}
	if fix.Caps.Has(CapMSLAltitudeAccuracy) {
		rec.AccH = fix.MSLAltitudeAccuracy
	}
	return rec
}
