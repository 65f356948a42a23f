package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/pollyhq/ratekeeper/internal/config"
	"github.com/pollyhq/ratekeeper/internal/domain/models"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

// EventProducer publishes throttle events to Kafka so downstream consumers
// (abuse detection, dashboards) see rejections without polling the audit
// database.
type EventProducer struct {
	writer *kafka.Writer
	log    logger.Logger
}

// NewEventProducer builds an async writer. Messages are keyed by client IP
// so one IP's events stay ordered within a partition.
func NewEventProducer(cfg config.KafkaConfig, log logger.Logger) *EventProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Async:        true,
	}
	return &EventProducer{writer: writer, log: log.WithComponent("kafka")}
}

// Publish sends one violation as a JSON message.
func (p *EventProducer) Publish(ctx context.Context, v models.Violation) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(v.IP),
		Value: payload,
		Time:  v.BlockedAt,
	})
}

// Close flushes and closes the writer.
func (p *EventProducer) Close() error {
	return p.writer.Close()
}
