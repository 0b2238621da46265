// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package frame

import (
	"encoding/binary"
	"errors"
	"math"
)

// Frames travel over MQTT as: "FRM1" | float64 LE capture seconds | raw bytes.
var magic = [4]byte{'F', 'R', 'M', '1'}

const headerLen = len(magic) + 8

var ErrBadFrame = errors.New("frame: malformed message")

// Encode packs a captured frame for the frame topic.
func Encode(ts float64, payload []byte) []byte {
	buf := make([]byte, headerLen+len(payload))
	copy(buf, magic[:])
	binary.LittleEndian.PutUint64(buf[len(magic):], math.Float64bits(ts))
	copy(buf[headerLen:], payload)
	return buf
}

// Decode unpacks a frame message. The returned payload aliases msg.
func Decode(msg []byte) (ts float64, payload []byte, err error) {
	if len(msg) < headerLen || [4]byte(msg[:4]) != magic {
		return 0, nil, ErrBadFrame
	}
	ts = math.Float64frombits(binary.LittleEndian.Uint64(msg[len(magic):headerLen]))
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return 0, nil, ErrBadFrame
	}
	return ts, msg[headerLen:], nil
}
