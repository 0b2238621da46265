// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"log"
	"math"
	"strings"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/inertial_recorder/internal/clock"
)

const (
	knotsToMS = 0.514444

	// DefaultUERE is the user equivalent range error, in meters, that turns
	// HDOP into a horizontal accuracy when the receiver sends no GST.
	DefaultUERE = 5.0

	// TypeGST is the pseudorange error statistics sentence.
	TypeGST = "GST"
)

// GST carries the receiver's position error estimates (1-sigma, meters).
type GST struct {
	nmea.BaseSentence
	Time             nmea.Time
	RMS              float64
	SemiMajorError   float64
	SemiMinorError   float64
	OrientationError float64
	LatitudeError    float64
	LongitudeError   float64
	AltitudeError    float64
}

func init() {
	if err := nmea.RegisterParser(TypeGST, parseGST); err != nil {
		log.Printf("gps: register GST parser: %v", err)
	}
}

func parseGST(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	p.AssertType(TypeGST)
	return GST{
		BaseSentence:     s,
		Time:             p.Time(0, "time"),
		RMS:              p.Float64(1, "rms"),
		SemiMajorError:   p.Float64(2, "semi-major error"),
		SemiMinorError:   p.Float64(3, "semi-minor error"),
		OrientationError: p.Float64(4, "orientation error"),
		LatitudeError:    p.Float64(5, "latitude error"),
		LongitudeError:   p.Float64(6, "longitude error"),
		AltitudeError:    p.Float64(7, "altitude error"),
	}, p.Err()
}

// Assembler accumulates NMEA sentences into fixes.
//
// GGA contributes altitude and HDOP, GST the position error estimates and VTG
// refreshes speed and course. Every valid RMC emits one fix stamped by the
// shared clock. Until a GST arrives the horizontal accuracy is HDOP x UERE.
type Assembler struct {
	clock    clock.Clock
	provider string
	current  Fix
	haveGST  bool

	// UERE scales HDOP into meters; 0 leaves acc unset without GST.
	UERE float64
}

// NewAssembler creates an assembler stamping fixes with c.
func NewAssembler(c clock.Clock, provider string) *Assembler {
	if provider == "" {
		provider = "gps"
	}
	return &Assembler{clock: c, provider: provider, UERE: DefaultUERE}
}

// Feed parses one line. ok is true when the line completed a fix. Lines that
// are not NMEA sentences are ignored; parse errors are returned.
func (a *Assembler) Feed(line string) (fix Fix, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Fix{}, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false, err
	}

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return Fix{}, false, nil
		}
		a.current.Latitude = m.Latitude
		a.current.Longitude = m.Longitude
		a.current.Speed = m.Speed * knotsToMS
		a.current.Bearing = m.Course

		out := a.current
		if !a.haveGST {
			out.Accuracy = out.HDOP * a.UERE
		}
		out.TS = a.clock.Now()
		out.Provider = a.provider
		return out, true, nil

	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == nmea.Invalid {
			return Fix{}, false, nil
		}
		a.current.Altitude = m.Altitude
		a.current.HDOP = m.HDOP

	case TypeGST:
		m := sentence.(GST)
		if m.LatitudeError == 0 && m.LongitudeError == 0 {
			// receivers without error statistics send empty fields
			return Fix{}, false, nil
		}
		a.haveGST = true
		a.current.Accuracy = math.Hypot(m.LatitudeError, m.LongitudeError)
		if m.AltitudeError > 0 {
			a.current.VerticalAccuracy = m.AltitudeError
			a.current.Caps |= CapVerticalAccuracy
		}

	case nmea.TypeVTG:
		m := sentence.(nmea.VTG)
		a.current.Speed = m.GroundSpeedKPH / 3.6
		a.current.Bearing = m.TrueTrack
	}
	return Fix{}, false, nil
}
