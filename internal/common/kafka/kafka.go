// Package kafka wraps segmentio/kafka-go for the domain events the
// wallet service publishes (deposits, withdrawals, buy-ins, transfers,
// rake collection) for the out-of-scope downstream consumers named in
// §1 (reconciliation, analytics).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/feltstack/pokerwallet/internal/common/config"
	"github.com/feltstack/pokerwallet/internal/common/logger"
)

type Producer struct {
	writer  *kafkago.Writer
	brokers []string
	logger  *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer, brokers: cfg.Brokers, logger: log}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Ping verifies the first broker in the configured list is reachable;
// the other brokers are not dialled.
func (p *Producer) Ping(ctx context.Context) error {
	conn, err := kafkago.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka unreachable: %w", err)
	}
	return conn.Close()
}

// PublishEvent marshals payload as JSON and writes it to topic, keyed by key.
func (p *Producer) PublishEvent(ctx context.Context, topic, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// UnmarshalEvent decodes a raw Kafka message value into dst.
func UnmarshalEvent(value []byte, dst interface{}) error {
	return json.Unmarshal(value, dst)
}
