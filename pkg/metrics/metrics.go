package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericogr/dht22-to-mqtt/pkg/dht22"
	"github.com/ericogr/dht22-to-mqtt/pkg/sensor"
)

type Metrics struct {
	registry      *prometheus.Registry
	cycles        *prometheus.CounterVec
	failures      *prometheus.CounterVec
	temperature   prometheus.Gauge
	humidity      prometheus.Gauge
	lastSuccessMs prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dht22_cycles_total",
			Help: "Acquisition cycles by result.",
		}, []string{"result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dht22_read_failures_total",
			Help: "Failed reads by cause.",
		}, []string{"cause"}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dht22_temperature_celsius",
			Help: "Last valid temperature.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dht22_relative_humidity_percent",
			Help: "Last valid relative humidity.",
		}),
		lastSuccessMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dht22_last_success_timestamp_ms",
			Help: "Monotonic timestamp of the last valid reading.",
		}),
	}
	m.registry.MustRegister(m.cycles, m.failures, m.temperature, m.humidity, m.lastSuccessMs)
	return m
}

func (m *Metrics) CycleSucceeded(r sensor.Reading) {
	m.cycles.WithLabelValues("ok").Inc()
	m.lastSuccessMs.Set(float64(r.TimestampMs))
	if e, ok := r.Environmental(); ok {
		m.temperature.Set(float64(e.TemperatureC))
		m.humidity.Set(float64(e.HumidityPct))
	}
}

func (m *Metrics) CycleFailed(err error) {
	m.cycles.WithLabelValues("error").Inc()
	m.failures.WithLabelValues(Cause(err)).Inc()
}

// Cause maps a read error to a low-cardinality label.
func Cause(err error) string {
	switch {
	case errors.Is(err, dht22.ErrNoResponse):
		return "no_response"
	case errors.Is(err, dht22.ErrBitTimeout):
		return "bit_timeout"
	case errors.Is(err, dht22.ErrChecksum):
		return "checksum"
	case errors.Is(err, dht22.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, sensor.ErrUnsupported):
		return "unsupported"
	default:
		return "other"
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
