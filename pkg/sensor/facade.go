package sensor

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericogr/dht22-to-mqtt/pkg/dht22"
)

// ErrUnsupported is returned for kinds without a backing device.
var ErrUnsupported = errors.New("sensor kind not implemented")

// EnvironmentalSession is the device behind the Environmental kind.
// *dht22.Session implements it.
type EnvironmentalSession interface {
	Read() (dht22.Measurement, error)
	IsAvailable() bool
}

// Facade dispatches reads by kind so callers never see concrete devices.
type Facade struct {
	env EnvironmentalSession
	log *slog.Logger
}

func NewFacade(env EnvironmentalSession, log *slog.Logger) *Facade {
	if log == nil {
		log = slog.Default()
	}
	return &Facade{env: env, log: log.With("component", "sensor")}
}

func (f *Facade) Read(kind Kind) (Payload, error) {
	switch kind {
	case Environmental:
		m, err := f.env.Read()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", kind, err)
		}
		return EnvironmentalData{TemperatureC: m.Celsius(), HumidityPct: m.RelHumidity()}, nil
	default:
		f.log.Warn("sensor reading not implemented", "kind", kind.String())
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
}

func (f *Facade) IsAvailable(kind Kind) bool {
	switch kind {
	case Environmental:
		return f.env.IsAvailable()
	default:
		f.log.Warn("sensor availability check not implemented", "kind", kind.String())
		return false
	}
}
