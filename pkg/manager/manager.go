// Package manager runs the periodic acquisition cycle: it polls a sensor
// source, keeps the latest valid reading per kind and hands every new
// reading to the registered observers.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericogr/dht22-to-mqtt/pkg/sensor"
)

const (
	// MaxObservers bounds the observer registry.
	MaxObservers = 4
	// DefaultStartupDelay lets the hardware settle before the first cycle.
	DefaultStartupDelay = 5 * time.Second
)

var (
	ErrInvalidInterval = errors.New("manager: invalid update interval")
	ErrAlreadyRunning  = errors.New("manager: updates already running")
	ErrNotRunning      = errors.New("manager: updates not running")
	ErrRegistryFull    = errors.New("manager: observer registry full")
	ErrNilObserver     = errors.New("manager: nil observer")
)

// Source reads one sensor kind. *sensor.Facade implements it.
type Source interface {
	Read(kind sensor.Kind) (sensor.Payload, error)
}

// Observer receives each new valid reading on the producer goroutine. It
// should return quickly: the next cycle waits for it.
type Observer interface {
	Observe(r sensor.Reading)
}

type ObserverFunc func(sensor.Reading)

func (f ObserverFunc) Observe(r sensor.Reading) { f(r) }

// Metrics is notified of every cycle outcome.
type Metrics interface {
	CycleSucceeded(r sensor.Reading)
	CycleFailed(err error)
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithStartupDelay(d time.Duration) Option {
	return func(m *Manager) { m.startupDelay = d }
}

// WithClock overrides the millisecond timestamp source.
func WithClock(now func() uint64) Option {
	return func(m *Manager) { m.now = now }
}

func WithMetrics(mt Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager owns the reading cache and the observer registry. Only the producer
// goroutine writes the cache.
type Manager struct {
	src          Source
	log          *slog.Logger
	startupDelay time.Duration
	now          func() uint64
	metrics      Metrics

	mu        sync.RWMutex
	cache     [sensor.NumKinds]sensor.Reading
	observers []Observer

	runMu    sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
}

func New(src Source, opts ...Option) *Manager {
	m := &Manager{
		src:          src,
		startupDelay: DefaultStartupDelay,
		observers:    make([]Observer, 0, MaxObservers),
	}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.log = m.log.With("component", "manager")
	if m.now == nil {
		epoch := time.Now()
		m.now = func() uint64 { return uint64(time.Since(epoch).Milliseconds()) }
	}
	for _, k := range sensor.Kinds() {
		m.cache[k] = sensor.Reading{Kind: k}
	}
	return m
}

// Register appends o to the registry. Registration order is call order.
func (m *Manager) Register(o Observer) error {
	if o == nil {
		return ErrNilObserver
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.observers) >= MaxObservers {
		m.log.Error("maximum number of observers reached", "max", MaxObservers)
		return fmt.Errorf("%w (%d)", ErrRegistryFull, MaxObservers)
	}
	m.observers = append(m.observers, o)
	m.log.Info("registered observer", "count", len(m.observers), "max", MaxObservers)
	return nil
}

// Latest returns the cached reading for kind if one was ever acquired.
func (m *Manager) Latest(kind sensor.Kind) (sensor.Reading, bool) {
	if !kind.Valid() {
		return sensor.Reading{}, false
	}
	m.mu.RLock()
	r := m.cache[kind]
	m.mu.RUnlock()
	return r, r.Valid
}

// Cycle performs one acquisition. On failure the cache is untouched and no
// observer runs.
func (m *Manager) Cycle() error {
	p, err := m.src.Read(sensor.Environmental)
	if err != nil {
		m.log.Warn("failed to read environmental sensor", "error", err)
		if m.metrics != nil {
			m.metrics.CycleFailed(err)
		}
		return err
	}
	r := sensor.Reading{Kind: sensor.Environmental, TimestampMs: m.now(), Valid: true, Payload: p}

	m.mu.Lock()
	m.cache[r.Kind] = r
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.CycleSucceeded(r)
	}
	for _, o := range observers {
		o.Observe(r)
	}
	if e, ok := r.Environmental(); ok {
		m.log.Debug("sensor update", "temperature_c", e.TemperatureC, "humidity_pct", e.HumidityPct)
	}
	return nil
}

// Start launches the producer goroutine. The first cycle runs after the
// startup delay, then one every interval.
func (m *Manager) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		m.log.Error("invalid update interval", "interval", interval)
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.activeLocked() {
		m.log.Warn("sensor update task already running")
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.interval = interval

	m.log.Info("starting sensor updates", "interval", interval, "startup_delay", m.startupDelay)
	go m.run(ctx, interval, done)
	return nil
}

func (m *Manager) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(m.startupDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		_ = m.Cycle()
		timer.Reset(interval)
	}
}

// Stop cancels the producer and waits for the cycle in progress to finish.
// It must not be called from an observer. After the Start context ends the
// manager is already idle and Stop reports ErrNotRunning.
func (m *Manager) Stop() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.activeLocked() {
		m.log.Warn("sensor update task not running")
		return ErrNotRunning
	}
	m.log.Info("stopping sensor update task")
	m.cancel()
	<-m.done
	m.resetLocked()
	return nil
}

// activeLocked reports whether a producer is alive. A producer that exited
// because the Start context ended is reaped here, returning the manager to
// idle. runMu must be held.
func (m *Manager) activeLocked() bool {
	if m.cancel == nil {
		return false
	}
	select {
	case <-m.done:
		m.log.Info("sensor update task ended by context")
		m.cancel()
		m.resetLocked()
		return false
	default:
		return true
	}
}

func (m *Manager) resetLocked() {
	m.cancel = nil
	m.done = nil
	m.interval = 0
}

func (m *Manager) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.activeLocked()
}

// Interval returns the running update interval, or 0 when idle.
func (m *Manager) Interval() time.Duration {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.activeLocked() {
		return 0
	}
	return m.interval
}
