package console

import (
	"fmt"

	"github.com/ericogr/dht22-to-mqtt/pkg/output"
	"github.com/ericogr/dht22-to-mqtt/pkg/sensor"
)

type ConsoleOutput struct{}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(r sensor.Reading) error {
	e, ok := r.Environmental()
	if !ok {
		fmt.Printf("ts_ms=%d kind=%s valid=%t\n", r.TimestampMs, r.Kind, r.Valid)
		return nil
	}
	fmt.Printf("ts_ms=%d kind=%s temperature=%.1fC (%.1fF) humidity=%.1f%%\n",
		r.TimestampMs, r.Kind, e.TemperatureC, e.TemperatureF(), e.HumidityPct)
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
