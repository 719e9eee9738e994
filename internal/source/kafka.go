package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"courserag/internal/logger"
)

// Handler processes one document received from Kafka. A returned error
// leaves the message uncommitted.
type Handler func(ctx context.Context, doc Document) error

type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka consumes raw documents from a topic. The message key, when present,
// names the document.
type Kafka struct {
	reader messageReader
	logger *slog.Logger
}

func NewKafka(cfg KafkaConfig) *Kafka {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newKafka(r, cfg.Topic)
}

func newKafka(r messageReader, topic string) *Kafka {
	return &Kafka{
		reader: r,
		logger: logger.WithComponent("kafka-source").With("topic", topic),
	}
}

// Consume fetches messages and hands them to h until ctx is cancelled.
// Messages are committed only after h succeeds.
func (k *Kafka) Consume(ctx context.Context, h Handler) error {
	k.logger.Info("consumer started")
	defer k.reader.Close()
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				k.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			k.logger.Error("failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		name := string(msg.Key)
		if name == "" {
			name = fmt.Sprintf("%s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
		}
		k.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"name", name,
			"value_size", len(msg.Value),
		)
		if err := h(ctx, Document{Name: name, Text: string(msg.Value)}); err != nil {
			k.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			k.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes raw documents to a topic, keyed by name.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

func NewPublisher(cfg KafkaConfig) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return &Publisher{writer: w, logger: logger.WithComponent("kafka-publisher").With("topic", cfg.Topic)}
}

// Publish writes docs in a single call.
func (p *Publisher) Publish(ctx context.Context, docs ...Document) error {
	msgs := make([]kafka.Message, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, kafka.Message{Key: []byte(d.Name), Value: []byte(d.Text)})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("failed to publish documents", "count", len(msgs), "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("documents published", "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
