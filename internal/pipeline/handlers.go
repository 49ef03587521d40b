package internal

import (
	"context"
	"errors"
	"time"

	"github.com/queryinside/pipeline/pkg/events"
	"github.com/queryinside/pipeline/shared/streaming"
	"github.com/twmb/franz-go/pkg/kgo"
)

var (
	errNoStore    = errors.New("log store is not configured")
	errNoKafka    = errors.New("kafka client is not configured")
	errNoExporter = errors.New("export bucket is not configured")
)

// Handlers bundles the service handlers and their backing clients.
type Handlers struct {
	store       *LogStore
	kafka       *kgo.Client
	exporter    *Exporter
	eventsTopic string
}

func NewHandlers(store *LogStore, kafka *kgo.Client, exporter *Exporter, eventsTopic string) *Handlers {
	return &Handlers{
		store:       store,
		kafka:       kafka,
		exporter:    exporter,
		eventsTopic: eventsTopic,
	}
}

// Routes builds the full service routing table.
func (h *Handlers) Routes() []Route {
	return []Route{
		{Name: "Query Handler", Service: streaming.ServiceQuery, Handler: h.Query},
		{Name: "Analytics Handler", Service: streaming.ServiceAnalytics, Handler: h.Analytics},
		{Name: "Export Handler", Service: streaming.ServiceExport, Handler: h.Export},
	}
}

func (h *Handlers) fetch(ctx context.Context, envelope *streaming.Envelope) ([]LogRow, error) {
	if h.store == nil {
		return nil, errNoStore
	}

	q := LogQuery{
		IntegrationID: envelope.IntegrationID,
		DateFrom:      envelope.DateFrom,
		DateTo:        envelope.DateTo,
	}
	if lastID, ok := envelope.Parameters["last_id"].(string); ok {
		q.LastID = lastID
	}

	return h.store.FetchLogs(ctx, q)
}

// Query fetches the integration's log rows and reports how far the
// cursor advanced.
func (h *Handlers) Query(ctx context.Context, envelope *streaming.Envelope) (any, error) {
	rows, err := h.fetch(ctx, envelope)
	if err != nil {
		return nil, err
	}

	lastID := ""
	if len(rows) > 0 {
		lastID = rows[len(rows)-1].ID
	}

	return map[string]any{
		"rows":    len(rows),
		"last_id": lastID,
	}, nil
}

// Analytics aggregates the integration's log rows and publishes the
// aggregate downstream as a Kafka event.
func (h *Handlers) Analytics(ctx context.Context, envelope *streaming.Envelope) (any, error) {
	if h.kafka == nil {
		return nil, errNoKafka
	}

	rows, err := h.fetch(ctx, envelope)
	if err != nil {
		return nil, err
	}

	var bytesSeen int
	for _, row := range rows {
		bytesSeen += len(row.RawData)
	}

	aggregate := map[string]any{
		"rows":      len(rows),
		"raw_bytes": bytesSeen,
		"date_from": envelope.DateFrom,
		"date_to":   envelope.DateTo,
	}

	event := &events.EventEnvelope{
		EventType:     events.EventAnalytics,
		Service:       string(envelope.Service),
		TopicID:       envelope.TopicID,
		IntegrationID: envelope.IntegrationID,
		Timestamp:     time.Now(),
		Data:          aggregate,
	}
	if err := events.PublishEvent(ctx, h.kafka, event, h.eventsTopic); err != nil {
		return nil, err
	}

	return aggregate, nil
}

// Export bundles the integration's log rows into a compressed object
// on S3.
func (h *Handlers) Export(ctx context.Context, envelope *streaming.Envelope) (any, error) {
	if h.exporter == nil {
		return nil, errNoExporter
	}

	rows, err := h.fetch(ctx, envelope)
	if err != nil {
		return nil, err
	}

	key, rawSize, compressedSize, err := h.exporter.Upload(ctx, envelope.IntegrationID, envelope.TopicID, rows)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"key":             key,
		"rows":            len(rows),
		"raw_bytes":       rawSize,
		"compressed_size": compressedSize,
	}, nil
}
