package gps

// Capability is the set of accuracy fields a positioning source can report.
// Flags are resolved once per fix and checked independently.
type Capability uint8

const (
	CapBearingAccuracy Capability = 1 << iota
	CapVerticalAccuracy
	CapSpeedAccuracy
	CapMSLAltitudeAccuracy
)

// Has reports whether every flag in f is present.
func (c Capability) Has(f Capability) bool { return c&f == f }

// Tier groups capabilities the way platform versions expose them.
type Tier int

const (
	TierBasic    Tier = iota // horizontal accuracy only
	TierExtended             // + bearing, vertical and speed accuracy
	TierFull                 // + MSL altitude accuracy
)

// Caps returns the capability flags available at tier t.
func (t Tier) Caps() Capability {
	switch {
	case t >= TierFull:
		return CapBearingAccuracy | CapVerticalAccuracy | CapSpeedAccuracy | CapMSLAltitudeAccuracy
	case t == TierExtended:
		return CapBearingAccuracy | CapVerticalAccuracy | CapSpeedAccuracy
	default:
		return 0
	}
}

// Fix represents a single combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	TS        float64 `json:"ts"`      // capture seconds, shared clock domain
	Latitude  float64 `json:"lat"`     // decimal degrees
	Longitude float64 `json:"lon"`     // decimal degrees
	Altitude  float64 `json:"alt"`     // meters
	Speed     float64 `json:"speed"`   // m/s over ground
	Bearing   float64 `json:"bearing"` // degrees, course over ground
	Accuracy  float64 `json:"acc"`     // horizontal, meters
	HDOP      float64 `json:"hdop,omitempty"`

	VerticalAccuracy    float64 `json:"acc_v,omitempty"`
	SpeedAccuracy       float64 `json:"acc_sp,omitempty"`
	BearingAccuracy     float64 `json:"acc_yaw,omitempty"`
	MSLAltitudeAccuracy float64 `json:"acc_msl,omitempty"`

	Provider string     `json:"provider"`
	Caps     Capability `json:"caps"`
}
