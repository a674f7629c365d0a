package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"cargo-placement-backend/config"
)

// Writer defines the subset of kafka.Writer we need. This makes the publisher testable.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by cargo ID.
type KafkaPublisher struct {
	writer Writer
	log    logrus.FieldLogger
}

// NewKafkaPublisher creates a publisher backed by a real kafka writer.
func NewKafkaPublisher(brokers []string, topic string, log logrus.FieldLogger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:  kafka.TCP(brokers...),
		Topic: topic,
		// same key, same partition: per-cargo ordering
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewKafkaPublisherWithWriter(w, log)
}

// NewKafkaPublisherWithWriter allows injecting a test writer.
func NewKafkaPublisherWithWriter(w Writer, log logrus.FieldLogger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", e.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(e.CargoID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.WithError(err).WithField("event", e.Type).Error("kafka write failed")
		return fmt.Errorf("failed to publish event %s: %w", e.Type, err)
	}
	p.log.WithFields(logrus.Fields{"event": e.Type, "cargo": e.CargoID}).Debug("event published")
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher only logs events. It is used when no brokers are configured.
type LogPublisher struct {
	log logrus.FieldLogger
}

func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	entry := p.log.WithFields(logrus.Fields{
		"event": e.Type,
		"cargo": e.CargoID,
	})
	if e.UnitNumber != "" {
		entry = entry.WithField("unit", e.UnitNumber)
	}
	if e.Type == IntegrityAlarm {
		entry.WithField("discrepancies", len(e.Discrepancies)).Error(e.Message)
		return nil
	}
	entry.Info("event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// NewPublisher picks kafka when brokers are configured and the log publisher otherwise.
func NewPublisher(cfg config.EventsConfig, log logrus.FieldLogger) Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Info("no kafka brokers configured; events are logged only")
		return NewLogPublisher(log)
	}
	log.WithField("topic", cfg.KafkaTopic).Info("publishing events to kafka")
	return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
}
