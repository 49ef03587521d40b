package internal

import (
	"context"
	"time"

	"github.com/queryinside/pipeline/shared/streaming"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Publisher enqueues envelopes for the consumer. It holds its own
// connection and channel; AMQP channels are not safe to share with the
// consumer loop.
type Publisher struct {
	cfg  Config
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(cfg Config) (*Publisher, error) {
	conn, err := newRabbitConnection(cfg.RabbitURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := initRabbit(ch, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	return &Publisher{
		cfg:  cfg,
		conn: conn,
		ch:   ch,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, envelope *streaming.Envelope) error {
	body, err := envelope.Marshal()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(ctx,
		p.cfg.Exchange,            // exchange
		p.cfg.PublishRoutingKey(), // routing key
		false,                     // mandatory
		false,                     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Priority:     5,
			Timestamp:    time.Now(),
			AppId:        "queryinside.pipeline",
			Headers: amqp.Table{
				"topic_id": envelope.TopicID,
				"service":  string(envelope.Service),
			},
			Body: body,
		})
}

func (p *Publisher) Close() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
