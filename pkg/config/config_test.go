package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseKeyIntMap(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]int
		ok   bool
	}{
		{"", map[string]int{}, true},
		{"console=1000,mqtt=5000", map[string]int{"console": 1000, "mqtt": 5000}, true},
		{" kafka = 8 , history=16", map[string]int{"kafka": 8, "history": 16}, true},
		{"bad", nil, false},
		{"console=x", nil, false},
	}
	for _, tt := range tests {
		got, err := parseKeyIntMap(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("parseKeyIntMap(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if tt.ok && !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("parseKeyIntMap(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" a, ,b,c ")
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Fatalf("parseCSV mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load([]string{
		"-pin", "17",
		"-sensor-type", "simulation",
		"-interval-ms", "2000",
		"-startup-delay-ms", "0",
		"-log-level", "debug",
		"-http-listen", ":9090",
		"-outputs", "console,MQTT,history",
		"-output-intervals", "mqtt=10000",
		"-mqtt-server", "tcp://broker:1883",
		"-mqtt-topic", "home/dht22",
		"-history-path", "/tmp/h.db",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Config{
		SensorType:     SensorSimulation,
		Pin:            17,
		IntervalMs:     2000,
		StartupDelayMs: 0,
		LogLevel:       "debug",
		HTTP:           HTTPConfig{Listen: ":9090"},
		Outputs: []OutputConfig{
			{Type: OutputConsole},
			{Type: OutputMQTT, IntervalMs: 10000, MQTT: &MQTTConfig{Server: "tcp://broker:1883", StateTopic: "home/dht22"}},
			{Type: OutputHistory, History: &HistoryConfig{Path: "/tmp/h.db"}},
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadKafkaFlagsAppendOutput(t *testing.T) {
	cfg, err := Load([]string{"-kafka-brokers", "k1:9092, k2:9092", "-kafka-topic", "env"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Outputs) != 2 || cfg.Outputs[1].Type != OutputKafka {
		t.Fatalf("outputs: %+v", cfg.Outputs)
	}
	if diff := cmp.Diff(&KafkaConfig{Brokers: []string{"k1:9092", "k2:9092"}, Topic: "env"}, cfg.Outputs[1].Kafka); diff != "" {
		t.Fatalf("kafka mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	js := `{"pin": 22, "interval_ms": 30000, "outputs": [{"type": "console", "interval_ms": 1000}]}`
	if err := os.WriteFile(path, []byte(js), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load([]string{"-config", path, "-interval-ms", "15000"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pin != 22 {
		t.Fatalf("pin from file: got %d", cfg.Pin)
	}
	if cfg.IntervalMs != 15000 {
		t.Fatalf("flag should override file, got %d", cfg.IntervalMs)
	}
	if cfg.StartupDelayMs != 5000 {
		t.Fatalf("default startup delay lost: %d", cfg.StartupDelayMs)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"zero interval", []string{"-interval-ms", "0"}, "interval-ms"},
		{"pin range", []string{"-pin", "48"}, "pin must be"},
		{"sensor type", []string{"-sensor-type", "fake"}, "sensor-type"},
		{"output type", []string{"-outputs", "console,stdout"}, "unknown output type"},
		{"too many", []string{"-outputs", "console,console,mqtt,history,history"}, "at most 4"},
		{"log level", []string{"-log-level", "loud"}, "log-level"},
		{"kafka brokers", []string{"-outputs", "kafka"}, "requires brokers"},
		{"bad intervals", []string{"-output-intervals", "console"}, "output-intervals"},
		{"missing file", []string{"-config", "/nonexistent/cfg.json"}, "read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
