// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package record

// FrameRecord is one line of frame.log. Name always refers to a file in the
// session's image directory that was fully written before the line.
type FrameRecord struct {
	Name string  `json:"name"`
	TS   float64 `json:"ts"` // capture seconds
}

// InertialRecord is one accel sample paired with one gyro sample.
type InertialRecord struct {
	TS float64 `json:"ts"` // timestamp of the sample that completed the pair

	Ax float64 `json:"ax"` // linear acceleration, m/s²
	Ay float64 `json:"ay"`
	Az float64 `json:"az"`

	Gx float64 `json:"gx"` // angular rate, rad/s
	Gy float64 `json:"gy"`
	Gz float64 `json:"gz"`
}

// LocationRecord is one line of gps.log. Accuracy fields the source could not
// report are left at zero.
type LocationRecord struct {
	TS       float64 `json:"ts"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Alt      float64 `json:"alt"`
	Speed    float64 `json:"sp"`  // m/s
	Yaw      float64 `json:"yaw"` // bearing, degrees
	Acc      float64 `json:"acc"`
	AccV     float64 `json:"acc_v"`
	AccH     float64 `json:"acc_h"`
	AccSpeed float64 `json:"acc_sp"`
	AccYaw   float64 `json:"acc_yaw"`
	Provider string  `json:"provider"`
}

// Stream identifies one of the three session logs.
type Stream int

const (
	StreamFrame Stream = iota
	StreamInertial
	StreamLocation
	numStreams
)

var streamNames = [...]string{"frame", "inertial", "location"}

func (s Stream) String() string {
	if s >= 0 && int(s) < len(streamNames) {
		return streamNames[s]
	}
	return "unknown"
}

// item is what producers hand to the session writer.
type item struct {
	stream   Stream
	frame    FrameRecord
	payload  []byte
	inertial InertialRecord
	location LocationRecord
}
