package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/patyfb04/play-inventory/internal/core/domain"
	"github.com/patyfb04/play-inventory/internal/observability"
)

// AMQPConsumer feeds GrantItems deliveries into the grant engine with manual
// acknowledgement. Transient failures are requeued; everything else goes to
// the queue's dead-letter exchange.
type AMQPConsumer struct {
	conn    *amqp.Connection
	cfg     AMQPConfig
	grants  GrantConsumer
	logger  observability.Logger
	metrics *observability.Metrics
}

func NewAMQPConsumer(conn *amqp.Connection, cfg AMQPConfig, grants GrantConsumer, logger observability.Logger, metrics *observability.Metrics) *AMQPConsumer {
	return &AMQPConsumer{
		conn:    conn,
		cfg:     cfg,
		grants:  grants,
		logger:  logger,
		metrics: metrics,
	}
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if c.cfg.Prefetch > 0 {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	deliveries, err := ch.Consume(
		c.cfg.Queue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", c.cfg.Queue, err)
	}

	c.logger.Info("amqp grant consumer started", zap.String("queue", c.cfg.Queue))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("amqp grant consumer shutting down")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("amqp delivery channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *AMQPConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With(zap.String("message_id", d.MessageId), zap.Uint64("delivery_tag", d.DeliveryTag))

	disposition, err := DeadLetter, fmt.Errorf("%w: missing message id", domain.ErrInvalidCommand)
	if d.MessageId != "" {
		disposition, err = handleGrant(ctx, c.grants, d.Body, d.MessageId)
	}

	var ackErr error
	switch disposition {
	case Ack:
		ackErr = d.Ack(false)
	case Retry:
		log.Warn("grant failed, requeueing", zap.Error(err))
		ackErr = d.Nack(false, true)
	case DeadLetter:
		log.Error("grant rejected, dead-lettering", zap.Error(err))
		if c.metrics != nil {
			c.metrics.DeadLetteredMessages.WithLabelValues("amqp").Inc()
		}
		ackErr = d.Nack(false, false)
	}
	if ackErr != nil {
		log.Error("failed to settle delivery", zap.String("disposition", disposition.String()), zap.Error(ackErr))
	}
}
