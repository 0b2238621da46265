package imu

import "fmt"

// Channel is one of the two inertial sample sources.
type Channel uint8

const (
	Accel Channel = iota + 1 // linear acceleration, m/s²
	Gyro                     // angular rate, rad/s
)

func (c Channel) String() string {
	switch c {
	case Accel:
		return "accel"
	case Gyro:
		return "gyro"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

func (c Channel) MarshalText() ([]byte, error) {
	if c != Accel && c != Gyro {
		return nil, fmt.Errorf("imu: invalid channel %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Channel) UnmarshalText(b []byte) error {
	switch string(b) {
	case "accel":
		*c = Accel
	case "gyro":
		*c = Gyro
	default:
		return fmt.Errorf("imu: unknown channel %q", b)
	}
	return nil
}

// Sample is a single tri-axis reading of one channel, suitable for JSON and MQTT.
type Sample struct {
	Channel Channel    `json:"ch"`
	TS      float64    `json:"ts"` // capture seconds
	V       [3]float64 `json:"v"`
}

// SampleSink receives channel samples as they arrive.
type SampleSink interface {
	OnSample(ch Channel, ts, v0, v1, v2 float64)
}
