package dht22

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Acquire runs one full wire transaction and returns the raw frame. It does
// not validate the checksum and never retries.
func Acquire(line Line, clock Clock) (Frame, error) {
	var f Frame
	t := transaction{line: line, clock: clock}

	// start condition
	if err := line.Out(gpio.Low); err != nil {
		return f, fmt.Errorf("start low: %w", err)
	}
	clock.Delay(StartLow)
	if err := line.Out(gpio.High); err != nil {
		return f, fmt.Errorf("start release: %w", err)
	}
	clock.Delay(StartRelease)
	if err := line.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return f, fmt.Errorf("switch to input: %w", err)
	}

	// sensor response: ~80us low, ~80us high
	if _, ok := t.waitFor(gpio.Low, EdgeTimeout); !ok {
		return f, fmt.Errorf("%w: waiting for response low", ErrNoResponse)
	}
	if _, ok := t.waitFor(gpio.High, EdgeTimeout); !ok {
		return f, fmt.Errorf("%w: waiting for response high", ErrNoResponse)
	}

	for i := 0; i < FrameBits; i++ {
		bit, ok := t.readBit()
		if !ok {
			return f, &BitTimeoutError{Bit: i}
		}
		if bit {
			f[i/8] |= 1 << (7 - i%8)
		}
	}
	return f, nil
}

// Read acquires a frame and decodes it.
func Read(line Line, clock Clock) (Measurement, error) {
	f, err := Acquire(line, clock)
	if err != nil {
		return Measurement{}, err
	}
	return Decode(f)
}

type transaction struct {
	line  Line
	clock Clock
}

// waitFor spins until the line reads level and returns the time it was seen.
func (t transaction) waitFor(level gpio.Level, timeout time.Duration) (time.Duration, bool) {
	start := t.clock.Now()
	for {
		now := t.clock.Now()
		if t.line.Read() == level {
			return now, true
		}
		if now-start > timeout {
			return now, false
		}
	}
}

// readBit measures the high phase of one bit.
func (t transaction) readBit() (bool, bool) {
	if _, ok := t.waitFor(gpio.Low, EdgeTimeout); !ok {
		return false, false
	}
	rise, ok := t.waitFor(gpio.High, EdgeTimeout)
	if !ok {
		return false, false
	}
	fall, ok := t.waitFor(gpio.Low, EdgeTimeout)
	if !ok {
		return false, false
	}
	return fall-rise > BitThreshold, true
}
