package dht22

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Frame is the raw 5-byte payload of one transaction:
// humidity high, humidity low, temperature high, temperature low, checksum.
type Frame [5]byte

// NewFrame builds a frame from the raw 16-bit fields and fills in the checksum.
func NewFrame(rawHumidity, rawTemperature uint16) Frame {
	f := Frame{byte(rawHumidity >> 8), byte(rawHumidity), byte(rawTemperature >> 8), byte(rawTemperature)}
	f[4] = f.Checksum()
	return f
}

// Checksum returns the truncated 8-bit sum of the four data bytes.
func (f Frame) Checksum() byte {
	return f[0] + f[1] + f[2] + f[3]
}

func (f Frame) String() string {
	return fmt.Sprintf("%02X %02X %02X %02X %02X", f[0], f[1], f[2], f[3], f[4])
}

// Measurement is a checksum-validated frame. Values are in tenths of a unit
// on the wire; the accessors scale them.
type Measurement struct {
	RawHumidity    uint16
	RawTemperature uint16
}

// Decode validates the checksum and extracts the raw fields.
func Decode(f Frame) (Measurement, error) {
	if sum := f.Checksum(); sum != f[4] {
		return Measurement{}, &ChecksumError{Computed: sum, Received: f[4]}
	}
	return Measurement{
		RawHumidity:    uint16(f[0])<<8 | uint16(f[1]),
		RawTemperature: uint16(f[2])<<8 | uint16(f[3]),
	}, nil
}

// DeciRelHumidity returns tenths of %RH.
func (m Measurement) DeciRelHumidity() int32 { return int32(m.RawHumidity) }

// DeciCelsius returns tenths of °C. The temperature field is sign-magnitude:
// bit 15 is the sign.
func (m Measurement) DeciCelsius() int32 {
	mag := int32(m.RawTemperature & 0x7FFF)
	if m.RawTemperature&0x8000 != 0 {
		return -mag
	}
	return mag
}

// RelHumidity returns relative humidity in percent.
func (m Measurement) RelHumidity() float32 {
	return float32(m.RawHumidity) / 10.0
}

// Celsius returns the temperature in °C.
func (m Measurement) Celsius() float32 {
	if m.RawTemperature&0x8000 != 0 {
		return -float32(m.RawTemperature&0x7FFF) / 10.0
	}
	return float32(m.RawTemperature) / 10.0
}

// Env converts the measurement to periph physical units. Pressure is not
// measured and left zero.
func (m Measurement) Env() physic.Env {
	return physic.Env{
		Temperature: physic.ZeroCelsius + physic.Temperature(m.DeciCelsius())*100*physic.MilliKelvin,
		Humidity:    physic.RelativeHumidity(m.DeciRelHumidity()) * (physic.PercentRH / 10),
	}
}

func (m Measurement) String() string {
	return fmt.Sprintf("T=%.1f°C H=%.1f%%", m.Celsius(), m.RelHumidity())
}
