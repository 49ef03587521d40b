package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

const EventAnalytics = "ANALYTICS"
const EventExport = "EXPORT"

// EventEnvelope is the record shape published to downstream Kafka topics
// whenever a pipeline handler produces a result worth broadcasting.
type EventEnvelope struct {
	EventType     string    `json:"event_type"`
	Service       string    `json:"service"`
	TopicID       string    `json:"topic_id"`
	IntegrationID string    `json:"integration_id"`
	Timestamp     time.Time `json:"timestamp"`
	Data          any       `json:"data"`
}

func (envelope EventEnvelope) Marshal() ([]byte, error) {
	return json.Marshal(envelope)
}

func PublishEvent(ctx context.Context, client *kgo.Client, event *EventEnvelope, topic string) error {
	b, err := event.Marshal()
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(event.IntegrationID),
		Value: b,
	}

	result := client.ProduceSync(ctx, record)

	return result.FirstErr()
}
