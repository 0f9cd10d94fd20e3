package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericogr/dht22-to-mqtt/pkg/api"
	"github.com/ericogr/dht22-to-mqtt/pkg/config"
	"github.com/ericogr/dht22-to-mqtt/pkg/dht22"
	"github.com/ericogr/dht22-to-mqtt/pkg/manager"
	"github.com/ericogr/dht22-to-mqtt/pkg/metrics"
	"github.com/ericogr/dht22-to-mqtt/pkg/output"
	"github.com/ericogr/dht22-to-mqtt/pkg/output/console"
	"github.com/ericogr/dht22-to-mqtt/pkg/output/history"
	"github.com/ericogr/dht22-to-mqtt/pkg/output/kafka"
	"github.com/ericogr/dht22-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/dht22-to-mqtt/pkg/sensor"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// newSession returns a session on the host GPIO, or on a simulated line
// producing plausible frames when sensor_type is simulation.
func newSession(cfg config.Config, logger *slog.Logger) *dht22.Session {
	if cfg.SensorType != config.SensorSimulation {
		return dht22.NewSession(dht22.WithLogger(logger))
	}
	line := dht22.NewSimLine(dht22.RandomFrames())
	line.Name = fmt.Sprintf("sim%d", cfg.Pin)
	return dht22.NewSession(
		dht22.WithResolver(func(int) (dht22.Line, error) { return line, nil }),
		dht22.WithClock(line),
		dht22.WithLogger(logger),
	)
}

func run(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg)
	logger.Info("starting", "sensor_type", cfg.SensorType, "pin", cfg.Pin, "interval_ms", cfg.IntervalMs)

	session := newSession(cfg, logger)
	if err := session.Init(cfg.Pin); err != nil {
		return fmt.Errorf("sensor init: %w", err)
	}
	facade := sensor.NewFacade(session, logger)
	mt := metrics.New()

	mgr := manager.New(facade,
		manager.WithLogger(logger),
		manager.WithStartupDelay(time.Duration(cfg.StartupDelayMs)*time.Millisecond),
		manager.WithMetrics(mt),
	)

	entries, err := initOutputs(&cfg, cfg.IntervalMs, logger)
	if err != nil {
		return err
	}
	defer closeOutputs(entries, logger)
	for _, e := range entries {
		if err := mgr.Register(e); err != nil {
			return fmt.Errorf("register %s: %w", e.Name, err)
		}
	}

	if err := mgr.Start(ctx, time.Duration(cfg.IntervalMs)*time.Millisecond); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		if err := mgr.Stop(); err != nil && !errors.Is(err, manager.ErrNotRunning) {
			logger.Warn("stop", "error", err)
		}
	}()

	httpErr := make(chan error, 1)
	if cfg.HTTP.Listen != "" {
		srv := api.NewServer(mgr, facade, mt.Handler(), logger)
		if h := findHistory(entries); h != nil {
			srv.WithHistory(h)
		}
		go func() { httpErr <- srv.ListenAndServe(ctx, cfg.HTTP.Listen) }()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-httpErr:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	}
}

// initOutputs builds one throttled entry per configured output. Outputs
// without an explicit interval inherit defaultIntervalMs.
func initOutputs(cfg *config.Config, defaultIntervalMs int, logger *slog.Logger) ([]*output.Entry, error) {
	entries := make([]*output.Entry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		oc := &cfg.Outputs[i]
		if oc.IntervalMs == 0 {
			oc.IntervalMs = defaultIntervalMs
		}
		out, err := newOutput(*oc, logger)
		if err != nil {
			closeOutputs(entries, logger)
			return nil, fmt.Errorf("output %s: %w", oc.Type, err)
		}
		entries = append(entries, output.NewEntry(oc.Type, out, time.Duration(oc.IntervalMs)*time.Millisecond, logger))
	}
	return entries, nil
}

func newOutput(oc config.OutputConfig, logger *slog.Logger) (output.Output, error) {
	switch oc.Type {
	case config.OutputConsole:
		return console.NewConsole(), nil
	case config.OutputMQTT:
		var mc config.MQTTConfig
		if oc.MQTT != nil {
			mc = *oc.MQTT
		}
		return mqtt.NewMQTT(mc, logger)
	case config.OutputKafka:
		var kc config.KafkaConfig
		if oc.Kafka != nil {
			kc = *oc.Kafka
		}
		return kafka.NewKafka(kc)
	case config.OutputHistory:
		var path string
		if oc.History != nil {
			path = oc.History.Path
		}
		return history.NewDB(path)
	default:
		return nil, fmt.Errorf("unknown output type %q", oc.Type)
	}
}

// findHistory returns the first output that can answer history queries.
func findHistory(entries []*output.Entry) api.History {
	for _, e := range entries {
		if h, ok := e.Output.(api.History); ok {
			return h
		}
	}
	return nil
}

func closeOutputs(entries []*output.Entry, logger *slog.Logger) {
	for _, e := range entries {
		if err := e.Close(); err != nil {
			logger.Warn("close output", "output", e.Name, "error", err)
		}
	}
}
