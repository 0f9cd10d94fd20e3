package dht22

import (
	"math/rand"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Nominal device timings used by Waveform.
const (
	SimResponseDelay = 20 * time.Microsecond
	SimResponseLow   = 80 * time.Microsecond
	SimResponseHigh  = 80 * time.Microsecond
	SimBitLow        = 50 * time.Microsecond
	SimZeroHigh      = 26 * time.Microsecond
	SimOneHigh       = 70 * time.Microsecond
)

// Pulse is one segment of a device waveform.
type Pulse struct {
	Level gpio.Level
	Width time.Duration
}

// Waveform encodes f the way a sensor drives the line after the host
// releases it. zero and one are the high widths of 0 and 1 bits.
func Waveform(f Frame, zero, one time.Duration) []Pulse {
	w := make([]Pulse, 0, 3+2*FrameBits+1)
	w = append(w,
		Pulse{gpio.High, SimResponseDelay},
		Pulse{gpio.Low, SimResponseLow},
		Pulse{gpio.High, SimResponseHigh},
	)
	for i := 0; i < FrameBits; i++ {
		high := zero
		if f[i/8]&(1<<(7-i%8)) != 0 {
			high = one
		}
		w = append(w, Pulse{gpio.Low, SimBitLow}, Pulse{gpio.High, high})
	}
	return append(w, Pulse{gpio.Low, SimBitLow})
}

// LineEvent is one recorded line operation. Consecutive reads collapse into
// a single "read" event.
type LineEvent struct {
	Op    string // "out", "in" or "read"
	Level gpio.Level
	At    time.Duration
}

// SimLine is a simulated sensor line and its virtual Clock. Every Read
// advances virtual time by one microsecond, so busy-waits terminate and edge
// timestamps are exact.
//
// After the host drives a start condition and switches to input, Next is
// called for the device waveform. A nil Next (or nil result) never answers.
// Once the waveform ends the pull-up holds the line high.
type SimLine struct {
	Name string
	Next func() []Pulse
	// InErr, when set, is returned by In.
	InErr error

	mu        sync.Mutex
	now       time.Duration
	driven    bool
	out       gpio.Level
	armed     bool
	wave      []Pulse
	waveStart time.Duration
	starts    int
	events    []LineEvent
}

// NewSimLine returns a line answering every transaction with frames from
// next.
func NewSimLine(next func() Frame) *SimLine {
	return &SimLine{
		Name: "sim",
		Next: func() []Pulse { return Waveform(next(), SimZeroHigh, SimOneHigh) },
	}
}

func (s *SimLine) String() string { return s.Name }

func (s *SimLine) In(pull gpio.Pull, edge gpio.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InErr != nil {
		return s.InErr
	}
	s.events = append(s.events, LineEvent{Op: "in", At: s.now})
	s.driven = false
	s.wave = nil
	if s.armed {
		s.armed = false
		if s.Next != nil {
			s.wave = s.Next()
		}
		s.waveStart = s.now
	}
	return nil
}

func (s *SimLine) Out(l gpio.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l == gpio.Low {
		s.events = s.events[:0]
		s.armed = true
		s.starts++
	}
	s.events = append(s.events, LineEvent{Op: "out", Level: l, At: s.now})
	s.driven = true
	s.out = l
	s.wave = nil
	return nil
}

func (s *SimLine) Read() gpio.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.levelAt(s.now)
	if n := len(s.events); n == 0 || s.events[n-1].Op != "read" {
		s.events = append(s.events, LineEvent{Op: "read", At: s.now})
	}
	s.now += time.Microsecond
	return l
}

func (s *SimLine) levelAt(t time.Duration) gpio.Level {
	if s.driven {
		return s.out
	}
	t -= s.waveStart
	for _, p := range s.wave {
		if t < p.Width {
			return p.Level
		}
		t -= p.Width
	}
	return gpio.High
}

// Now implements Clock.
func (s *SimLine) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Delay implements Clock by advancing virtual time.
func (s *SimLine) Delay(d time.Duration) {
	s.mu.Lock()
	s.now += d
	s.mu.Unlock()
}

// Events returns the line operations since the last start condition.
func (s *SimLine) Events() []LineEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LineEvent(nil), s.events...)
}

// Starts returns how many start conditions the host has driven.
func (s *SimLine) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// RandomFrames returns a frame source that drifts around 22°C and 50%RH.
func RandomFrames() func() Frame {
	var mu sync.Mutex
	temp, hum := 220, 500
	return func() Frame {
		mu.Lock()
		defer mu.Unlock()
		temp += rand.Intn(5) - 2
		hum += rand.Intn(7) - 3
		if hum < 0 {
			hum = 0
		}
		if hum > 1000 {
			hum = 1000
		}
		raw := uint16(temp)
		if temp < 0 {
			raw = uint16(-temp) | 0x8000
		}
		return NewFrame(uint16(hum), raw)
	}
}
