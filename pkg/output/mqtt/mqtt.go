package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ericogr/dht22-to-mqtt/pkg/config"
	"github.com/ericogr/dht22-to-mqtt/pkg/output"
	"github.com/ericogr/dht22-to-mqtt/pkg/sensor"
)

const (
	// defaults
	DefaultServer         = "tcp://localhost:1883"
	DefaultClientIDPrefix = "dht22-"
	DefaultStateTopic     = "dht22/%s"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	stateClassMeasurement  = "measurement"
)

// measurement describes one Home Assistant entity published per reading.
type measurement struct {
	field       string
	unit        string
	deviceClass string
}

var measurements = []measurement{
	{field: "temperature", unit: "°C", deviceClass: "temperature"},
	{field: "humidity", unit: "%", deviceClass: "humidity"},
}

// publisher is the part of mqtt.Client used here.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTOutput struct {
	client     publisher
	stateTopic string
	log        *slog.Logger
}

// StatePayload is the JSON document published on the state topic. The centi
// fields carry the 0.01 unit integers mesh-network attribute stores expect.
type StatePayload struct {
	Temperature      float32 `json:"temperature"`
	Humidity         float32 `json:"humidity"`
	TemperatureCenti int16   `json:"temperature_centi"`
	HumidityCenti    uint16  `json:"humidity_centi"`
	TimestampMs      uint64  `json:"timestamp_ms"`
}

func NewMQTT(cfg config.MQTTConfig, log *slog.Logger) (output.Output, error) {
	cfg = withDefaults(cfg)
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return newWithClient(client, cfg, log), nil
}

func withDefaults(cfg config.MQTTConfig) config.MQTTConfig {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientIDPrefix + uuid.NewString()[:8]
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	return cfg
}

func newWithClient(client publisher, cfg config.MQTTConfig, log *slog.Logger) *MQTTOutput {
	if log == nil {
		log = slog.Default()
	}
	m := &MQTTOutput{
		client:     client,
		stateTopic: formatStateTopic(cfg.StateTopic, sensor.Environmental),
		log:        log.With("component", "mqtt"),
	}

	// Publish Home Assistant discovery payloads if requested
	if cfg.DiscoveryTopic != "" {
		for _, ms := range measurements {
			topic := discoveryTopic(cfg, ms)
			payload := baseDiscoveryPayload(discoveryName(cfg, ms), m.stateTopic, discoveryUniqueID(cfg, ms), ms)
			if err := m.publishJSON(topic, true, payload); err != nil {
				m.log.Warn("mqtt discovery publish error", "topic", topic, "error", err)
			}
		}
	}
	return m
}

func (m *MQTTOutput) Publish(r sensor.Reading) error {
	e, ok := r.Environmental()
	if !ok {
		return nil
	}
	return m.publishJSON(m.stateTopic, false, NewStatePayload(r.TimestampMs, e))
}

// NewStatePayload builds the state document. Centi fields saturate at the
// bounds of their integer types; the float fields always carry the reading.
func NewStatePayload(ts uint64, e sensor.EnvironmentalData) StatePayload {
	return StatePayload{
		Temperature:      e.TemperatureC,
		Humidity:         e.HumidityPct,
		TemperatureCenti: int16(centi(e.TemperatureC, math.MinInt16, math.MaxInt16)),
		HumidityCenti:    uint16(centi(e.HumidityPct, 0, math.MaxUint16)),
		TimestampMs:      ts,
	}
}

// centi scales v to hundredths and clamps it to [lo, hi].
func centi(v float32, lo, hi float64) float64 {
	return math.Min(math.Max(math.Round(float64(v)*100), lo), hi)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

// helper: format a state topic for a sensor kind using an optional formatter
func formatStateTopic(base string, kind sensor.Kind) string {
	if strings.Contains(base, "%s") {
		return fmt.Sprintf(base, kind)
	}
	return base
}

// helper: Home Assistant config topic for one entity
func discoveryTopic(cfg config.MQTTConfig, ms measurement) string {
	prefix := strings.TrimSuffix(cfg.DiscoveryTopic, "/")
	return fmt.Sprintf("%s/sensor/%s/config", prefix, discoveryUniqueID(cfg, ms))
}

// helper: build a human-friendly discovery name for one entity
func discoveryName(cfg config.MQTTConfig, ms measurement) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("DHT22 %s", cfg.ClientID)
	}
	return fmt.Sprintf("%s %s", name, ms.field)
}

// helper: build a unique id for one entity
func discoveryUniqueID(cfg config.MQTTConfig, ms measurement) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	return fmt.Sprintf("%s_%s", uid, ms.field)
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, uniqueID string, ms measurement) map[string]interface{} {
	return map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   ms.unit,
		keyDeviceClass:         ms.deviceClass,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       fmt.Sprintf("{{ value_json.%s }}", ms.field),
		keyJSONAttributesTopic: stateTopic,
		keyUniqueID:            uniqueID,
	}
}

// helper: marshal and publish JSON payload
func (m *MQTTOutput) publishJSON(topic string, retained bool, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.PublishRaw(topic, b, retained)
}
