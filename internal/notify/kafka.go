package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic keyed by account id.
type KafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

var _ Notifier = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates an asynchronous producer for topic.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Compression:  kafka.Zstd,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("event publish failed", slog.Int("messages", len(msgs)), slog.String("error", err.Error()))
			}
		},
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, accountID, eventType string, payload any) {
	value, err := json.Marshal(newEvent(accountID, eventType, payload))
	if err != nil {
		p.logger.Error("event payload", slog.String("event", eventType), slog.String("error", err.Error()))
		return
	}
	err = p.writer.WriteMessages(context.WithoutCancel(ctx), kafka.Message{
		Key:     []byte(accountID),
		Value:   value,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	})
	if err != nil {
		p.logger.Warn("event publish failed", slog.String("event", eventType), slog.String("error", err.Error()))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
