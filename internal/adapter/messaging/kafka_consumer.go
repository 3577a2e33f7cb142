package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/patyfb04/play-inventory/internal/observability"
	"github.com/patyfb04/play-inventory/internal/retry"
)

const (
	HeaderMessageID         = "message-id"
	HeaderEventType         = "event-type"
	HeaderOriginalTopic     = "dlt-original-topic"
	HeaderOriginalPartition = "dlt-original-partition"
	HeaderOriginalOffset    = "dlt-original-offset"
	HeaderExceptionMessage  = "dlt-exception-message"

	DefaultMaxRedeliveries   = 5
	DefaultRedeliveryBackoff = 500 * time.Millisecond

	maxRedeliveryBackoff = 30 * time.Second
	redeliveryJitter     = 0.5
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConsumerConfig struct {
	MaxRedeliveries   int
	RedeliveryBackoff time.Duration
}

// KafkaConsumer feeds GrantItems messages into the grant engine. Offsets are
// committed only once a message is applied or parked on the dead-letter
// topic, so a crash in between leads to redelivery.
type KafkaConsumer struct {
	reader  MessageReader
	dlt     MessageWriter
	grants  GrantConsumer
	logger  observability.Logger
	metrics *observability.Metrics
	cfg     KafkaConsumerConfig

	redelivery retry.Policy
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

func NewKafkaConsumer(
	reader MessageReader,
	dlt MessageWriter,
	grants GrantConsumer,
	logger observability.Logger,
	metrics *observability.Metrics,
	cfg KafkaConsumerConfig,
) *KafkaConsumer {
	if cfg.MaxRedeliveries < 0 {
		cfg.MaxRedeliveries = 0
	}
	if cfg.RedeliveryBackoff <= 0 {
		cfg.RedeliveryBackoff = DefaultRedeliveryBackoff
	}
	return &KafkaConsumer{
		reader:  reader,
		dlt:     dlt,
		grants:  grants,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		redelivery: retry.Policy{
			Initial:    cfg.RedeliveryBackoff,
			Max:        maxRedeliveryBackoff,
			MaxRetries: cfg.MaxRedeliveries,
			Jitter:     redeliveryJitter,
		},
	}
}

// Run consumes until ctx is cancelled.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.logger.Info("kafka grant consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("kafka grant consumer shutting down")
				return nil
			}
			c.logger.Error("could not fetch message", zap.Error(err))
			if err := sleepContext(ctx, time.Second); err != nil {
				return nil
			}
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

// process returns an error only when the message could be neither applied
// nor parked, in which case the offset must not be committed.
func (c *KafkaConsumer) process(ctx context.Context, msg kafka.Message) error {
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, kafkaHeaderCarrier{headers: &msg.Headers})
	messageID := kafkaMessageID(msg)
	log := c.logger.With(
		zap.String("message_id", messageID),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var (
		attempts    int
		disposition Disposition
	)
	err := backoff.RetryNotify(func() error {
		attempts++
		var err error
		disposition, err = handleGrant(msgCtx, c.grants, msg.Value, messageID)
		switch disposition {
		case Ack:
			return nil
		case DeadLetter:
			return backoff.Permanent(err)
		}
		return err
	}, c.redelivery.BackOff(ctx), func(err error, delay time.Duration) {
		log.Warn("grant failed, redelivering",
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	})

	switch {
	case disposition == Ack:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case disposition == DeadLetter:
		log.Error("grant rejected, moving to dead-letter topic", zap.Error(err))
	default:
		log.Error("grant redeliveries exhausted, moving to dead-letter topic",
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}
	return c.deadLetter(ctx, msg, err)
}

func (c *KafkaConsumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	if c.metrics != nil {
		c.metrics.DeadLetteredMessages.WithLabelValues("kafka").Inc()
	}

	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderExceptionMessage, Value: []byte(reason)},
	)

	if err := c.dlt.WriteMessages(ctx, kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}); err != nil {
		return fmt.Errorf("write to dead-letter topic: %w", errors.Join(err, cause))
	}
	return nil
}

// kafkaMessageID prefers the producer supplied id and falls back to the
// message position, which is stable across redeliveries.
func kafkaMessageID(msg kafka.Message) string {
	if id := headerValue(msg.Headers, HeaderMessageID); id != "" {
		return id
	}
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
