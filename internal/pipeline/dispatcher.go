package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/queryinside/pipeline/shared/streaming"
	zlog "github.com/rs/zerolog/log"
)

type OutcomeKind string

const (
	OutcomeSuccess      OutcomeKind = "success"
	OutcomeHandlerError OutcomeKind = "handler_error"
	OutcomeRoutingError OutcomeKind = "routing_error"
)

// Outcome classifies one dispatched envelope. Handler failures are
// recoverable and recorded; routing failures are permanent.
type Outcome struct {
	Kind          OutcomeKind `json:"kind"`
	Service       string      `json:"service"`
	TopicID       string      `json:"topic_id,omitempty"`
	IntegrationID string      `json:"integration_id,omitempty"`
	Error         string      `json:"error,omitempty"`
	Result        any         `json:"result,omitempty"`
	DurationMS    int64       `json:"duration_ms"`
}

func (o Outcome) Failed() bool {
	return o.Kind != OutcomeSuccess
}

// Dispatcher resolves envelopes to handlers and contains their
// failures. It never lets a handler error or panic escape; every
// envelope comes back as an Outcome.
type Dispatcher struct {
	registry *Registry
	status   *Status
	health   *Health
	hub      *Hub
	timeout  time.Duration
}

func NewDispatcher(registry *Registry, status *Status, health *Health, hub *Hub, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		status:   status,
		health:   health,
		hub:      hub,
		timeout:  timeout,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, envelope *streaming.Envelope) Outcome {
	log := zlog.With().
		Str("service", string(envelope.Service)).
		Str("integration", envelope.IntegrationID).
		Logger()
	if envelope.TopicID != "" {
		log = log.With().Str("topic", envelope.TopicID).Logger()
	}

	outcome := Outcome{
		Service:       string(envelope.Service),
		TopicID:       envelope.TopicID,
		IntegrationID: envelope.IntegrationID,
	}

	route, err := d.registry.Resolve(envelope.Service)
	if err != nil {
		log.Error().Err(err).Msg("no handler for service")
		d.status.RecordRoutingError(err)
		d.health.Dropped.Inc()
		outcome.Kind = OutcomeRoutingError
		outcome.Error = err.Error()
		d.broadcast(outcome)
		return outcome
	}

	start := time.Now()
	result, err := d.invoke(ctx, route, envelope)
	outcome.DurationMS = time.Since(start).Milliseconds()

	if err != nil {
		log.Error().Err(err).Msgf("failed to handle envelope with %s", route.Name)
		d.status.RecordHandlerError(string(envelope.Service), err)
		d.health.Failed.WithLabelValues(string(envelope.Service)).Inc()
		outcome.Kind = OutcomeHandlerError
		outcome.Error = err.Error()
		d.broadcast(outcome)
		return outcome
	}

	log.Info().Msgf("handled envelope with %s", route.Name)
	d.status.RecordSuccess(string(envelope.Service))
	d.health.Processed.WithLabelValues(string(envelope.Service)).Inc()
	outcome.Kind = OutcomeSuccess
	outcome.Result = result
	d.broadcast(outcome)
	return outcome
}

// invoke runs the handler under the dispatch timeout and converts
// panics into handler errors so the consumer loop keeps going.
func (d *Dispatcher) invoke(ctx context.Context, route Route, envelope *streaming.Envelope) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", route.Name, r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return route.Handler(ctx, envelope)
}

func (d *Dispatcher) broadcast(outcome Outcome) {
	if d.hub != nil {
		d.hub.Broadcast(outcome)
	}
}
