// Package queue publishes observed progress records to downstream
// consumers over Kafka.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/pengKiina/trainwatch/internal/domain"
	loggerpkg "github.com/pengKiina/trainwatch/logger"
)

// messageWriter is the slice of kafka.Writer the publisher needs; tests
// fake it.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds producer configuration.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequireAll   bool
}

// KafkaPublisher forwards progress records to a Kafka topic.
type KafkaPublisher struct {
	writer    messageWriter
	logger    loggerpkg.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewKafkaPublisher builds a Kafka-backed Publisher.
func NewKafkaPublisher(cfg KafkaConfig, logr loggerpkg.Logger) (*KafkaPublisher, error) {
	if logr == nil {
		logr = loggerpkg.NewNop()
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers must be provided")
	}
	if cfg.Topic == "" {
		cfg.Topic = "training-progress"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = time.Second
	}

	requiredAcks := kafka.RequireOne
	if cfg.RequireAll {
		requiredAcks = kafka.RequireAll
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: requiredAcks,
		Balancer:     &kafka.LeastBytes{},
	}

	return &KafkaPublisher{writer: writer, logger: logr}, nil
}

// Publish encodes and produces the records.
func (p *KafkaPublisher) Publish(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	messages := make([]kafka.Message, len(records))
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal progress record: %w", err)
		}
		messages[i] = kafka.Message{Value: data, Time: time.Now()}
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("produce progress records: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		p.closeErr = p.writer.Close()
	})
	return p.closeErr
}

// NopPublisher is used when Kafka publishing is disabled.
type NopPublisher struct{}

// Publish discards the records.
func (NopPublisher) Publish(context.Context, []domain.Record) error { return nil }

// Close is a no-op.
func (NopPublisher) Close() error { return nil }
