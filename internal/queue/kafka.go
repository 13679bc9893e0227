package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig addresses the order topic and consumer group.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Kafka is a Queue backed by a Kafka topic. Messages are keyed by account
// id so each account maps to one partition and is consumed in order.
// Offsets are committed only after a job was handled or exhausted.
type Kafka struct {
	writer messageWriter
	reader messageReader
	policy RetryPolicy
	logger *slog.Logger
}

var _ Queue = (*Kafka)(nil)

// NewKafka creates a producer and a consumer-group reader for cfg.Topic.
func NewKafka(cfg KafkaConfig, policy RetryPolicy, logger *slog.Logger) *Kafka {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,    // commits are explicit
	})
	return newKafka(writer, reader, policy, logger)
}

func newKafka(w messageWriter, r messageReader, policy RetryPolicy, logger *slog.Logger) *Kafka {
	return &Kafka{
		writer: w,
		reader: r,
		policy: policy.withDefaults(),
		logger: logger,
	}
}

func (q *Kafka) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	value, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	err = q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.AccountID),
		Value: value,
		Time:  job.EnqueuedAt,
	})
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Consume fetches, handles and commits one message at a time until ctx is
// cancelled or the reader is closed.
func (q *Kafka) Consume(ctx context.Context, h Handler) error {
	fetchFailures := 0
	for {
		m, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			fetchFailures++
			wait := q.policy.Backoff(fetchFailures)
			q.logger.Error("fetch failed", slog.String("error", err.Error()), slog.Duration("backoff", wait))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		fetchFailures = 0

		var job Job
		if err := json.Unmarshal(m.Value, &job); err != nil {
			q.logger.Error("dropping malformed job",
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
		} else if err := deliver(ctx, h, job, q.policy, q.logger); err != nil {
			// Left uncommitted for redelivery.
			return nil
		}

		if err := q.reader.CommitMessages(ctx, m); err != nil {
			q.logger.Warn("commit failed", slog.Int64("offset", m.Offset), slog.String("error", err.Error()))
		}
	}
}

func (q *Kafka) Close() error {
	return errors.Join(q.writer.Close(), q.reader.Close())
}
