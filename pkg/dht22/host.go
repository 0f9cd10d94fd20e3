package dht22

import (
	"fmt"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// HostResolver initialises periph's host drivers once and looks the pin up
// by its GPIO number.
func HostResolver(pin int) (Line, error) {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	if hostErr != nil {
		return nil, fmt.Errorf("host init: %w", hostErr)
	}
	p := gpioreg.ByName(strconv.Itoa(pin))
	if p == nil {
		return nil, fmt.Errorf("gpio %d not found", pin)
	}
	return p, nil
}
