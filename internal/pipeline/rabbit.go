package internal

import (
	"fmt"

	"github.com/queryinside/pipeline/shared/streaming"
	amqp "github.com/rabbitmq/amqp091-go"
)

func newRabbitConnection(url string) (*amqp.Connection, error) {
	return amqp.Dial(url)
}

func initRabbit(ch *amqp.Channel, cfg Config) error {
	q, err := streaming.DeclareTopicQueue(ch, cfg.Queue)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	// The default exchange needs no declaration or binding.
	if cfg.Exchange == "" {
		return nil
	}

	err = streaming.DeclareTopicExchange(ch, cfg.Exchange)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	err = ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil)
	if err != nil {
		return fmt.Errorf("failed to bind %s to %s: %w", q.Name, cfg.Exchange, err)
	}

	return nil
}
