// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. Payloads are JSON; the consumer hands raw values to a
// MessageHandler and commits only what was handled or cannot ever be.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// ErrDecode marks a payload that will never decode; such messages are
// committed and skipped instead of retried.
var ErrDecode = errors.New("undecodable kafka message")

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// MessageReader is the subset of *kafka.Reader the consumer loop needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader  MessageReader
	logger  *slog.Logger
	handler MessageHandler
	retry   resilience.RetryConfig
}

// NewConsumer creates a group consumer for topic. A fresh group starts from
// the earliest offset so documents ingested before the indexer came up are
// not lost.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
	return NewConsumerWithReader(r, topic, handler)
}

// NewConsumerWithReader wires an existing reader, mainly for tests.
func NewConsumerWithReader(r MessageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Retryable: func(err error) bool {
				return !errors.Is(err, ErrDecode) && !errors.Is(err, context.Canceled)
			},
		},
	}
}

// WithRetry overrides the per-message retry policy.
func (c *Consumer) WithRetry(cfg resilience.RetryConfig) *Consumer {
	retryable := c.retry.Retryable
	c.retry = cfg
	if c.retry.Retryable == nil {
		c.retry.Retryable = retryable
	}
	return c
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return c.reader.Close()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		if !c.process(ctx, msg) {
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// process reports whether msg should be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	err := resilience.Retry(ctx, "kafka-handle", c.retry, func() error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrDecode):
		c.logger.Warn("skipping undecodable message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return true
	default:
		c.logger.Error("failed to process message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return false
	}
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a Kafka message value into T. Failures wrap ErrDecode.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return result, nil
}
