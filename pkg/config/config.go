package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ericogr/dht22-to-mqtt/pkg/dht22"
	"github.com/ericogr/dht22-to-mqtt/pkg/manager"
)

const (
	SensorReal       = "real"
	SensorSimulation = "simulation"

	OutputConsole = "console"
	OutputMQTT    = "mqtt"
	OutputKafka   = "kafka"
	OutputHistory = "history"
)

type MQTTConfig struct {
	Server            string `json:"server"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	ClientID          string `json:"client_id"`
	StateTopic        string `json:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id"`
}

type KafkaConfig struct {
	Brokers   []string `json:"brokers"`
	Topic     string   `json:"topic"`
	TimeoutMs int      `json:"timeout_ms,omitempty"`
}

type HistoryConfig struct {
	Path string `json:"path"`
}

type OutputConfig struct {
	Type       string         `json:"type"`
	IntervalMs int            `json:"interval_ms,omitempty"`
	MQTT       *MQTTConfig    `json:"mqtt,omitempty"`
	Kafka      *KafkaConfig   `json:"kafka,omitempty"`
	History    *HistoryConfig `json:"history,omitempty"`
}

type HTTPConfig struct {
	Listen string `json:"listen"`
}

type Config struct {
	SensorType     string         `json:"sensor_type"`
	Pin            int            `json:"pin"`
	IntervalMs     int            `json:"interval_ms"`
	StartupDelayMs int            `json:"startup_delay_ms"`
	LogLevel       string         `json:"log_level"`
	HTTP           HTTPConfig     `json:"http"`
	Outputs        []OutputConfig `json:"outputs"`
}

func DefaultConfig() Config {
	return Config{
		SensorType:     SensorReal,
		Pin:            4,
		IntervalMs:     60000,
		StartupDelayMs: 5000,
		LogLevel:       "info",
		Outputs:        []OutputConfig{{Type: OutputConsole}},
	}
}

// Load loads configuration from a JSON file (optional) and flags.
// Flags override values present in the JSON file.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("dht22-to-mqtt", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON config file")
	flagPin := fs.Int("pin", -1, "GPIO number of the DHT22 data line")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagInterval := fs.Int("interval-ms", -1, "Acquisition interval in ms")
	flagStartupDelay := fs.Int("startup-delay-ms", -1, "Delay before the first acquisition in ms")
	flagLogLevel := fs.String("log-level", "", "debug|info|warn|error")
	flagHTTP := fs.String("http-listen", "", "HTTP listen address for the status API (empty disables)")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt,kafka,history)")
	flagOutputIntervals := fs.String("output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagKafkaBrokers := fs.String("kafka-brokers", "", "Comma-separated Kafka brokers")
	flagKafkaTopic := fs.String("kafka-topic", "", "Kafka topic")
	flagHistoryPath := fs.String("history-path", "", "SQLite history database path")

	cfg := DefaultConfig()
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if *flagPin != -1 {
		cfg.Pin = *flagPin
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagStartupDelay != -1 {
		cfg.StartupDelayMs = *flagStartupDelay
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	if *flagHTTP != "" {
		cfg.HTTP.Listen = *flagHTTP
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	if *flagOutputIntervals != "" {
		intervals, err := parseKeyIntMap(*flagOutputIntervals)
		if err != nil {
			return cfg, fmt.Errorf("output-intervals: %w", err)
		}
		for i := range cfg.Outputs {
			if v, ok := intervals[cfg.Outputs[i].Type]; ok {
				cfg.Outputs[i].IntervalMs = v
			}
		}
	}
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		mc := cfg.output(OutputMQTT)
		if mc.MQTT == nil {
			mc.MQTT = &MQTTConfig{}
		}
		if *flagMQTTServer != "" {
			mc.MQTT.Server = *flagMQTTServer
		}
		if *flagMQTTUser != "" {
			mc.MQTT.Username = *flagMQTTUser
		}
		if *flagMQTTPass != "" {
			mc.MQTT.Password = *flagMQTTPass
		}
		if *flagClientID != "" {
			mc.MQTT.ClientID = *flagClientID
		}
		if *flagTopic != "" {
			mc.MQTT.StateTopic = *flagTopic
		}
	}
	if *flagKafkaBrokers != "" || *flagKafkaTopic != "" {
		kc := cfg.output(OutputKafka)
		if kc.Kafka == nil {
			kc.Kafka = &KafkaConfig{}
		}
		if *flagKafkaBrokers != "" {
			kc.Kafka.Brokers = parseCSV(*flagKafkaBrokers)
		}
		if *flagKafkaTopic != "" {
			kc.Kafka.Topic = *flagKafkaTopic
		}
	}
	if *flagHistoryPath != "" {
		hc := cfg.output(OutputHistory)
		if hc.History == nil {
			hc.History = &HistoryConfig{}
		}
		hc.History.Path = *flagHistoryPath
	}

	return cfg, cfg.Validate()
}

// output returns the first output of type t, appending one if missing.
func (c *Config) output(t string) *OutputConfig {
	for i := range c.Outputs {
		if c.Outputs[i].Type == t {
			return &c.Outputs[i]
		}
	}
	c.Outputs = append(c.Outputs, OutputConfig{Type: t})
	return &c.Outputs[len(c.Outputs)-1]
}

func (c Config) Validate() error {
	var errs []error
	switch c.SensorType {
	case SensorReal, SensorSimulation:
	default:
		errs = append(errs, fmt.Errorf("unknown sensor-type %q", c.SensorType))
	}
	if c.Pin < dht22.MinPin || c.Pin > dht22.MaxPin {
		errs = append(errs, fmt.Errorf("pin must be in %d..%d, got %d", dht22.MinPin, dht22.MaxPin, c.Pin))
	}
	if c.IntervalMs <= 0 {
		errs = append(errs, errors.New("interval-ms must be > 0"))
	}
	if c.StartupDelayMs < 0 {
		errs = append(errs, errors.New("startup-delay-ms must be >= 0"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Outputs) > manager.MaxObservers {
		errs = append(errs, fmt.Errorf("at most %d outputs supported, got %d", manager.MaxObservers, len(c.Outputs)))
	}
	for _, o := range c.Outputs {
		switch o.Type {
		case OutputConsole, OutputMQTT, OutputHistory:
		case OutputKafka:
			if o.Kafka == nil || len(o.Kafka.Brokers) == 0 {
				errs = append(errs, errors.New("kafka output requires brokers"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown output type %q", o.Type))
		}
		if o.IntervalMs < 0 {
			errs = append(errs, fmt.Errorf("%s: interval_ms must be >= 0", o.Type))
		}
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel. Empty means info.
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log-level: %w", err)
	}
	return l, nil
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseKeyIntMap parses "a=1,b=2".
func parseKeyIntMap(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid entry %q", p)
		}
		v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid value in %q: %w", p, err)
		}
		out[strings.TrimSpace(kv[0])] = v
	}
	return out, nil
}
