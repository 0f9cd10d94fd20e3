package dht22

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Resolver maps a pin number to a configured line.
type Resolver func(pin int) (Line, error)

type SessionOption func(*Session)

func WithResolver(r Resolver) SessionOption {
	return func(s *Session) { s.resolve = r }
}

func WithClock(c Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// Session owns one sensor line. Transactions are serialised; Init is not
// meant to race with Read.
type Session struct {
	resolve Resolver
	clock   Clock
	log     *slog.Logger

	mu          sync.Mutex
	pin         int
	line        Line
	initialized bool
}

func NewSession(opts ...SessionOption) *Session {
	s := &Session{pin: -1}
	for _, o := range opts {
		o(s)
	}
	if s.resolve == nil {
		s.resolve = HostResolver
	}
	if s.clock == nil {
		s.clock = NewSystemClock()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "dht22")
	return s
}

// Init binds the session to pin, configures it as an input with pull-up so
// the released line idles high, and marks the session initialised. On any
// failure the previous state is kept.
func (s *Session) Init(pin int) error {
	if pin < MinPin || pin > MaxPin {
		s.log.Error("invalid gpio pin", "pin", pin)
		return fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidPin, pin, MinPin, MaxPin)
	}
	line, err := s.resolve(pin)
	if err != nil {
		s.log.Error("failed to resolve gpio", "pin", pin, "error", err)
		return fmt.Errorf("%w: gpio %d: %v", ErrHardwareConfig, pin, err)
	}
	if err := line.In(gpio.PullUp, gpio.NoEdge); err != nil {
		s.log.Error("failed to configure gpio", "pin", pin, "error", err)
		return fmt.Errorf("%w: gpio %d: %v", ErrHardwareConfig, pin, err)
	}

	s.mu.Lock()
	s.pin = pin
	s.line = line
	s.initialized = true
	s.mu.Unlock()

	s.log.Info("dht22 initialized", "pin", pin, "line", line.String())
	return nil
}

// Read performs one transaction. It fails with ErrNotInitialized, without
// touching the line, before a successful Init.
func (s *Session) Read() (Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return Measurement{}, ErrNotInitialized
	}
	m, err := Read(s.line, s.clock)
	if err != nil {
		s.log.Debug("dht22 read failed", "pin", s.pin, "error", err)
		return Measurement{}, err
	}
	s.log.Debug("dht22 reading", "temperature_c", m.Celsius(), "humidity_pct", m.RelHumidity())
	return m, nil
}

// IsAvailable probes the sensor with a full read.
func (s *Session) IsAvailable() bool {
	_, err := s.Read()
	return err == nil
}

func (s *Session) Pin() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pin
}

func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}
