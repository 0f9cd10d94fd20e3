package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ericogr/dht22-to-mqtt/pkg/config"
	"github.com/ericogr/dht22-to-mqtt/pkg/output"
	"github.com/ericogr/dht22-to-mqtt/pkg/sensor"
)

const (
	DefaultTopic        = "sensors.readings"
	DefaultWriteTimeout = 2 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOutput publishes each reading as a JSON message keyed by sensor kind.
type KafkaOutput struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafka(cfg config.KafkaConfig) (output.Output, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newWithWriter(w, time.Duration(cfg.TimeoutMs)*time.Millisecond), nil
}

func newWithWriter(w messageWriter, timeout time.Duration) *KafkaOutput {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &KafkaOutput{writer: w, timeout: timeout}
}

func (k *KafkaOutput) Publish(r sensor.Reading) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(r.Kind.String()), Value: b}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaOutput) Close() error { return k.writer.Close() }
