package sensor

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a sensor family. It doubles as the cache index.
type Kind uint8

const (
	Environmental Kind = iota
	Depth
	VehiclePresence

	NumKinds = 3
)

var kindNames = [NumKinds]string{"environmental", "depth", "vehicle_presence"}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) Valid() bool { return k < NumKinds }

// Kinds lists every known kind in ordinal order.
func Kinds() []Kind { return []Kind{Environmental, Depth, VehiclePresence} }

func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sensor kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Payload is the kind-specific part of a reading.
type Payload interface {
	Kind() Kind
}

type EnvironmentalData struct {
	TemperatureC float32 `json:"temperature_c"`
	HumidityPct  float32 `json:"humidity_pct"`
}

func (EnvironmentalData) Kind() Kind { return Environmental }

// TemperatureF returns the temperature in °F.
func (e EnvironmentalData) TemperatureF() float32 { return e.TemperatureC*9/5 + 32 }

// DepthData is reserved; no producer exists yet.
type DepthData struct {
	DistanceMM float32 `json:"distance_mm"`
}

func (DepthData) Kind() Kind { return Depth }

// VehiclePresenceData is reserved; no producer exists yet.
type VehiclePresenceData struct {
	Present bool `json:"present"`
}

func (VehiclePresenceData) Kind() Kind { return VehiclePresence }

// Reading is a timestamped, kind-tagged sample. When Valid is false Payload
// is nil and must not be trusted.
type Reading struct {
	Kind        Kind    `json:"kind"`
	TimestampMs uint64  `json:"timestamp_ms"`
	Valid       bool    `json:"valid"`
	Payload     Payload `json:"payload,omitempty"`
}

// Environmental returns the environmental payload of a valid reading.
func (r Reading) Environmental() (EnvironmentalData, bool) {
	if !r.Valid {
		return EnvironmentalData{}, false
	}
	e, ok := r.Payload.(EnvironmentalData)
	return e, ok
}

func (r *Reading) UnmarshalJSON(b []byte) error {
	var raw struct {
		Kind        Kind            `json:"kind"`
		TimestampMs uint64          `json:"timestamp_ms"`
		Valid       bool            `json:"valid"`
		Payload     json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = Reading{Kind: raw.Kind, TimestampMs: raw.TimestampMs, Valid: raw.Valid}
	if len(raw.Payload) == 0 || string(raw.Payload) == "null" {
		return nil
	}
	var p Payload
	switch raw.Kind {
	case Environmental:
		var e EnvironmentalData
		if err := json.Unmarshal(raw.Payload, &e); err != nil {
			return err
		}
		p = e
	case Depth:
		var d DepthData
		if err := json.Unmarshal(raw.Payload, &d); err != nil {
			return err
		}
		p = d
	case VehiclePresence:
		var v VehiclePresenceData
		if err := json.Unmarshal(raw.Payload, &v); err != nil {
			return err
		}
		p = v
	}
	r.Payload = p
	return nil
}
