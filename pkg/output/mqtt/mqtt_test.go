package mqtt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/dht22-to-mqtt/pkg/config"
	"github.com/ericogr/dht22-to-mqtt/pkg/dht22"
	"github.com/ericogr/dht22-to-mqtt/pkg/sensor"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	msgs         []message
	err          error
	disconnected bool
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.msgs = append(f.msgs, message{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{err: f.err}
}

func (f *fakeClient) Disconnect(uint) { f.disconnected = true }

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestDiscoveryPayloads(t *testing.T) {
	c := &fakeClient{}
	cfg := withDefaults(config.MQTTConfig{ClientID: "garage", DiscoveryTopic: "homeassistant/"})
	m := newWithClient(c, cfg, quiet)
	assert.Equal(t, "dht22/environmental", m.stateTopic)

	require.Len(t, c.msgs, 2)
	assert.Equal(t, "homeassistant/sensor/garage_temperature/config", c.msgs[0].topic)
	assert.Equal(t, "homeassistant/sensor/garage_humidity/config", c.msgs[1].topic)
	for _, msg := range c.msgs {
		assert.True(t, msg.retained)
	}

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(c.msgs[0].payload, &payload))
	assert.Equal(t, "DHT22 garage temperature", payload[keyName])
	assert.Equal(t, "dht22/environmental", payload[keyStateTopic])
	assert.Equal(t, "°C", payload[keyUnitOfMeasurement])
	assert.Equal(t, "{{ value_json.temperature }}", payload[keyValueTemplate])
	assert.Equal(t, "garage_temperature", payload[keyUniqueID])
}

func TestNoDiscoveryWithoutTopic(t *testing.T) {
	c := &fakeClient{}
	newWithClient(c, withDefaults(config.MQTTConfig{}), quiet)
	assert.Empty(t, c.msgs)
}

func TestPublishState(t *testing.T) {
	c := &fakeClient{}
	m := newWithClient(c, withDefaults(config.MQTTConfig{StateTopic: "garage/climate"}), quiet)
	r := sensor.Reading{
		Kind:        sensor.Environmental,
		TimestampMs: 7000,
		Valid:       true,
		Payload:     sensor.EnvironmentalData{TemperatureC: -10.3, HumidityPct: 45.7},
	}
	require.NoError(t, m.Publish(r))
	require.Len(t, c.msgs, 1)
	assert.Equal(t, "garage/climate", c.msgs[0].topic)
	assert.False(t, c.msgs[0].retained)

	var got StatePayload
	require.NoError(t, json.Unmarshal(c.msgs[0].payload, &got))
	assert.Equal(t, int16(-1030), got.TemperatureCenti)
	assert.Equal(t, uint16(4570), got.HumidityCenti)
	assert.Equal(t, uint64(7000), got.TimestampMs)

	// invalid readings are skipped
	require.NoError(t, m.Publish(sensor.Reading{Kind: sensor.Environmental}))
	assert.Len(t, c.msgs, 1)

	require.NoError(t, m.Close())
	assert.True(t, c.disconnected)
}

func TestStatePayloadCentiSaturates(t *testing.T) {
	tests := []struct {
		name      string
		rawHum    uint16
		rawTemp   uint16
		wantTemp  int16
		wantHum   uint16
		wantFloat float32
	}{
		{"nominal", 457, 0x8000 | 103, -1030, 4570, -10.3},
		{"hot and saturated", 7000, 4000, 32767, 65535, 400},
		{"deep negative", 0, 0x8000 | 4000, -32768, 0, -400},
		{"edge of int16", 1000, 3276, 32760, 10000, 327.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := dht22.Decode(dht22.NewFrame(tt.rawHum, tt.rawTemp))
			require.NoError(t, err)
			p := NewStatePayload(1, sensor.EnvironmentalData{TemperatureC: m.Celsius(), HumidityPct: m.RelHumidity()})
			assert.Equal(t, tt.wantTemp, p.TemperatureCenti)
			assert.Equal(t, tt.wantHum, p.HumidityCenti)
			assert.InDelta(t, tt.wantFloat, p.Temperature, 0.01)
		})
	}
}

func TestPublishError(t *testing.T) {
	c := &fakeClient{err: errors.New("not connected")}
	m := newWithClient(c, withDefaults(config.MQTTConfig{}), quiet)
	err := m.Publish(sensor.Reading{Kind: sensor.Environmental, Valid: true, Payload: sensor.EnvironmentalData{}})
	assert.EqualError(t, err, "not connected")
	assert.Error(t, m.PublishRaw("x", []byte("y"), true))

	// discovery failures are logged, not fatal
	c = &fakeClient{err: errors.New("not connected")}
	m = newWithClient(c, withDefaults(config.MQTTConfig{DiscoveryTopic: "homeassistant"}), quiet)
	assert.Len(t, c.msgs, 2)
	assert.NotNil(t, m)
}

func TestDefaultClientID(t *testing.T) {
	cfg := withDefaults(config.MQTTConfig{})
	assert.True(t, strings.HasPrefix(cfg.ClientID, DefaultClientIDPrefix))
	assert.Len(t, cfg.ClientID, len(DefaultClientIDPrefix)+8)
	assert.Equal(t, DefaultServer, cfg.Server)
}
