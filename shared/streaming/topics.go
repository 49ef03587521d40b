package streaming

import amqp "github.com/rabbitmq/amqp091-go"

const ExchangeTopicsType = "direct"

// Failed messages sit on the queue for a day at most.
const messageTTLMillis = 86400000

func DeclareTopicQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl": int64(messageTTLMillis),
		},
	)
}

func DeclareTopicExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,               // name
		ExchangeTopicsType, // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	)
}
