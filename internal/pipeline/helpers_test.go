package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/queryinside/pipeline/shared/streaming"
)

// Prometheus collectors register globally, so every test shares one
// Health instance.
var (
	testHealthOnce sync.Once
	testHealth     *Health
)

func newTestHealth() *Health {
	testHealthOnce.Do(func() {
		testHealth = NewHealth()
	})
	return testHealth
}

var errHandlerBoom = errors.New("boom")

// newTestRegistry registers a handler per service: qi succeeds,
// analytics fails, export panics.
func newTestRegistry(t *testing.T, invoked map[streaming.ServiceType]*int) *Registry {
	t.Helper()

	count := func(service streaming.ServiceType) {
		if invoked != nil {
			if n, ok := invoked[service]; ok {
				*n++
			}
		}
	}

	registry, err := NewRegistry([]Route{
		{
			Name:    "Query Handler",
			Service: streaming.ServiceQuery,
			Handler: func(ctx context.Context, envelope *streaming.Envelope) (any, error) {
				count(streaming.ServiceQuery)
				return map[string]any{"rows": 0}, nil
			},
		},
		{
			Name:    "Analytics Handler",
			Service: streaming.ServiceAnalytics,
			Handler: func(ctx context.Context, envelope *streaming.Envelope) (any, error) {
				count(streaming.ServiceAnalytics)
				return nil, errHandlerBoom
			},
		},
		{
			Name:    "Export Handler",
			Service: streaming.ServiceExport,
			Handler: func(ctx context.Context, envelope *streaming.Envelope) (any, error) {
				count(streaming.ServiceExport)
				panic("export handler exploded")
			},
		},
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	return registry
}

func queryEnvelope() *streaming.Envelope {
	return &streaming.Envelope{
		TopicID:       "topic-1",
		IntegrationID: "abc",
		Service:       streaming.ServiceQuery,
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never held")
}
