package messaging

import (
	"fmt"

	"github.com/streadway/amqp"
)

type AMQPConfig struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
	Prefetch   int
}

// deadLetterExchange receives messages rejected without requeue.
func (c AMQPConfig) deadLetterExchange() string {
	return c.Exchange + ".dlx"
}

// DialAMQP opens a connection and declares the topology shared by the
// consumer and the publisher: a topic exchange, the grants queue bound to it
// and a dead-letter exchange with its queue.
func DialAMQP(cfg AMQPConfig) (*amqp.Connection, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := declareTopology(ch, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func declareTopology(ch *amqp.Channel, cfg AMQPConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.deadLetterExchange(), "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	dlq, err := ch.QueueDeclare(cfg.Queue+".dead-letter", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(dlq.Name, "", cfg.deadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": cfg.deadLetterExchange(),
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s to %s: %w", q.Name, cfg.RoutingKey, err)
	}
	return nil
}
