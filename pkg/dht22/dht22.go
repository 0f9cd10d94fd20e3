// Package dht22 reads temperature and relative humidity from a DHT22 (AM2302)
// sensor over its single-wire protocol.
//
// The protocol is bit-banged on one open-drain GPIO line with an external
// pull-up:
//
//	host:   low >=1.1ms, release ~30us, switch to input
//	device: low ~80us, high ~80us, then 40 bits
//	bit:    low ~50us, high ~26us (0) or ~70us (1)
//
// The 40 bits form a 5-byte frame: humidity (2), temperature (2), checksum.
// Timing is measured by busy-waiting against a Clock so the calling goroutine
// is blocked for the whole transaction (a few milliseconds).
//
// Line and Clock are injected, which lets SimLine stand in for hardware.
package dht22

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Protocol timings.
const (
	StartLow     = 1100 * time.Microsecond
	StartRelease = 30 * time.Microsecond
	EdgeTimeout  = 100 * time.Microsecond
	// BitThreshold separates a 0 (~26us high) from a 1 (~70us high). A high
	// phase strictly longer than the threshold is a 1.
	BitThreshold = 40 * time.Microsecond

	FrameBits = 40
)

// Pin range accepted by Session.Init.
const (
	MinPin = 0
	MaxPin = 47
)

var (
	ErrInvalidPin     = errors.New("dht22: invalid pin")
	ErrHardwareConfig = errors.New("dht22: hardware configuration failed")
	ErrNotInitialized = errors.New("dht22: session not initialized")
	ErrNoResponse     = errors.New("dht22: no response from sensor")
	ErrBitTimeout     = errors.New("dht22: bit timeout")
	ErrChecksum       = errors.New("dht22: checksum mismatch")
)

// BitTimeoutError reports the bit index (0..39) whose edge never arrived.
type BitTimeoutError struct {
	Bit int
}

func (e *BitTimeoutError) Error() string {
	return fmt.Sprintf("dht22: timeout reading bit %d of byte %d", e.Bit%8, e.Bit/8)
}

func (e *BitTimeoutError) Is(target error) bool { return target == ErrBitTimeout }

// ChecksumError carries the computed and received checksum bytes.
type ChecksumError struct {
	Computed byte
	Received byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("dht22: checksum failed: calculated 0x%02X, received 0x%02X", e.Computed, e.Received)
}

func (e *ChecksumError) Is(target error) bool { return target == ErrChecksum }

// Line is the part of periph's gpio.PinIO the protocol needs. Any gpio.PinIO
// satisfies it.
type Line interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Out(l gpio.Level) error
	Read() gpio.Level
	String() string
}

// Clock is a monotonic time source with a busy-wait delay.
type Clock interface {
	// Now returns the time elapsed since an arbitrary fixed origin.
	Now() time.Duration
	// Delay spins for d without yielding the line to anyone else.
	Delay(d time.Duration)
}

// SystemClock is the wall Clock backed by Go's monotonic time.
type SystemClock struct {
	origin time.Time
}

func NewSystemClock() *SystemClock { return &SystemClock{origin: time.Now()} }

func (c *SystemClock) Now() time.Duration { return time.Since(c.origin) }

func (c *SystemClock) Delay(d time.Duration) {
	start := c.Now()
	for c.Now()-start < d {
	}
}
