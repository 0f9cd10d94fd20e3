package output

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ericogr/dht22-to-mqtt/pkg/sensor"
)

type Output interface {
	Publish(sensor.Reading) error
	Close() error
}

// Entry adapts an Output to a manager observer. Readings closer together
// than Interval (by reading timestamp) are skipped; zero publishes all.
type Entry struct {
	Name     string
	Output   Output
	Interval time.Duration
	Log      *slog.Logger

	mu        sync.Mutex
	published bool
	lastMs    uint64
}

func NewEntry(name string, out Output, interval time.Duration, log *slog.Logger) *Entry {
	if log == nil {
		log = slog.Default()
	}
	return &Entry{Name: name, Output: out, Interval: interval, Log: log.With("output", name)}
}

// Observe publishes r unless it falls inside the throttle window. Publish
// errors are logged; the reading is not retried.
func (e *Entry) Observe(r sensor.Reading) {
	if !e.due(r.TimestampMs) {
		return
	}
	if err := e.Output.Publish(r); err != nil {
		e.Log.Warn("publish failed", "error", err)
	}
}

func (e *Entry) due(ts uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.published && ts < e.lastMs+uint64(e.Interval.Milliseconds()) {
		return false
	}
	e.published = true
	e.lastMs = ts
	return true
}

func (e *Entry) Close() error { return e.Output.Close() }
