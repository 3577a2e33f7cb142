package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/patyfb04/play-inventory/internal/core/domain"
)

// AMQPPublisher publishes events with publisher confirms: Publish returns
// only after the broker acknowledged the message. Publishes are serialized
// on one channel so confirms arrive in order.
type AMQPPublisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
	confirms chan amqp.Confirmation
	lastTag  uint64
}

func NewAMQPPublisher(conn *amqp.Connection, exchange string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	return &AMQPPublisher{
		ch:       ch,
		exchange: exchange,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.EventType(), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.Publish(
		p.exchange,
		event.EventType(), // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Type:         event.EventType(),
			Headers: amqp.Table{
				"partition_key": event.PartitionKey(),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType(), err)
	}
	p.lastTag++
	tag := p.lastTag

	// confirms of earlier publishes abandoned by a cancelled ctx may still
	// be queued ahead of ours
	for {
		select {
		case confirm, ok := <-p.confirms:
			if !ok {
				return errors.New("amqp channel closed before confirm")
			}
			if confirm.DeliveryTag < tag {
				continue
			}
			if !confirm.Ack {
				return fmt.Errorf("broker nacked %s", event.EventType())
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}
