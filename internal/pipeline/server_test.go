package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/queryinside/pipeline/shared/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLifecycle struct {
	state    ConsumerState
	restarts int
	err      error
}

func (s *stubLifecycle) State() ConsumerState { return s.state }

func (s *stubLifecycle) Restart() error {
	s.restarts++
	if s.err != nil {
		return s.err
	}
	s.state = StateRunning
	return nil
}

type stubPublisher struct {
	published []*streaming.Envelope
	err       error
}

func (s *stubPublisher) Publish(ctx context.Context, envelope *streaming.Envelope) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, envelope)
	return nil
}

type serverFixture struct {
	server    *Server
	status    *Status
	consumer  *stubLifecycle
	publisher *stubPublisher
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()

	status := NewStatus()
	consumer := &stubLifecycle{state: StateRunning}
	pub := &stubPublisher{}
	dispatcher := newTestDispatcher(t, status, nil)

	return &serverFixture{
		server:    NewServer(status, consumer, pub, dispatcher, nil),
		status:    status,
		consumer:  consumer,
		publisher: pub,
	}
}

func (f *serverFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	decoded := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not json: %v: %s", err, rec.Body.String())
	}

	return rec, decoded
}

func TestHealthEndpoint(t *testing.T) {
	f := newTestServer(t)

	rec, body := f.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, serviceName, body["name"])
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, string(StateRunning), body["consumer"])
}

func TestPublishTopic(t *testing.T) {
	f := newTestServer(t)

	rec, body := f.do(t, http.MethodPost, "/publish-topic",
		`{"integration_id":"abc","service_type":"qi","date_from":"2026-01-01","date_to":"2026-02-01"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "published", body["status"])
	assert.NotEmpty(t, body["topic_id"])

	require.Len(t, f.publisher.published, 1)
	envelope := f.publisher.published[0]
	assert.Equal(t, "abc", envelope.IntegrationID)
	assert.Equal(t, streaming.ServiceQuery, envelope.Service)
	assert.Equal(t, body["topic_id"], envelope.TopicID)
	assert.False(t, envelope.PublishedAt.IsZero())
}

func TestPublishTopicRejectsUnknownService(t *testing.T) {
	f := newTestServer(t)

	rec, body := f.do(t, http.MethodPost, "/publish-topic",
		`{"integration_id":"abc","service_type":"bogus"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["detail"], "bogus")
	assert.Empty(t, f.publisher.published)
}

func TestPublishTopicRejectsMalformedBody(t *testing.T) {
	f := newTestServer(t)

	rec, _ := f.do(t, http.MethodPost, "/publish-topic", `{{{`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.publisher.published)
}

func TestMessageCountAfterDispatch(t *testing.T) {
	f := newTestServer(t)

	// Scenario: one qi envelope flows through dispatch successfully.
	f.server.dispatcher.Dispatch(context.Background(), queryEnvelope())

	rec, body := f.do(t, http.MethodGet, "/message-count", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["messages_processed"])
}

func TestServiceStats(t *testing.T) {
	f := newTestServer(t)

	f.server.dispatcher.Dispatch(context.Background(), queryEnvelope())
	f.server.dispatcher.Dispatch(context.Background(), &streaming.Envelope{
		IntegrationID: "abc",
		Service:       streaming.ServiceAnalytics,
	})
	f.server.dispatcher.Dispatch(context.Background(), &streaming.Envelope{
		IntegrationID: "abc",
		Service:       streaming.ServiceType("bogus"),
	})

	rec, body := f.do(t, http.MethodGet, "/service-stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	services := body["services"].(map[string]any)
	qi := services["qi"].(map[string]any)
	analytics := services["analytics"].(map[string]any)

	assert.Equal(t, float64(1), qi["success"])
	assert.Equal(t, float64(0), qi["error"])
	assert.Equal(t, float64(1), analytics["error"])
	assert.Equal(t, float64(1), body["unknown"])

	// Permanent routing failures never count toward the total.
	_, countBody := f.do(t, http.MethodGet, "/message-count", "")
	assert.Equal(t, float64(2), countBody["messages_processed"])
}

func TestConsumerStatusEndpoint(t *testing.T) {
	f := newTestServer(t)
	f.status.SetState(StateRunning)
	f.status.MarkStarted()
	f.status.SetLastError(errors.New("transient wobble"))

	time.Sleep(20 * time.Millisecond)

	rec, body := f.do(t, http.MethodGet, "/consumer-status", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(StateRunning), body["state"])
	assert.Equal(t, "transient wobble", body["last_error"])
	assert.Greater(t, body["uptime_seconds"], float64(0))
}

func TestRestartConsumerEndpoint(t *testing.T) {
	f := newTestServer(t)
	f.consumer.state = StateErrored

	rec, body := f.do(t, http.MethodPost, "/restart-consumer", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.consumer.restarts)
	assert.Equal(t, string(StateRunning), body["state"])
}

func TestRestartConsumerEndpointFailure(t *testing.T) {
	f := newTestServer(t)
	f.consumer.err = errors.New("broker unreachable")

	rec, body := f.do(t, http.MethodPost, "/restart-consumer", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["detail"], "broker unreachable")
}

func TestTriggerServiceDirectDispatch(t *testing.T) {
	f := newTestServer(t)

	rec, body := f.do(t, http.MethodPost, "/service/qi", `{"integration_id":"abc"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(OutcomeSuccess), body["kind"])
	assert.Equal(t, "qi", body["service"])

	snapshot := f.status.Snapshot()
	assert.Equal(t, int64(1), snapshot.Success["qi"])
}

func TestTriggerServiceHandlerFailure(t *testing.T) {
	f := newTestServer(t)

	rec, body := f.do(t, http.MethodPost, "/service/analytics", `{"integration_id":"abc"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(OutcomeHandlerError), body["kind"])
}

func TestTriggerServiceUnknownTag(t *testing.T) {
	f := newTestServer(t)

	rec, body := f.do(t, http.MethodPost, "/service/bogus", `{"integration_id":"abc"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["detail"], "bogus")
}
