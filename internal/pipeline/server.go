package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/queryinside/pipeline/shared/streaming"
	zlog "github.com/rs/zerolog/log"
)

const serviceName = "Data Pipeline Consumer API"

// TopicRequest is the body accepted by the publish and trigger
// endpoints.
type TopicRequest struct {
	IntegrationID string         `json:"integration_id"`
	Service       string         `json:"service_type"`
	DateFrom      string         `json:"date_from,omitempty"`
	DateTo        string         `json:"date_to,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
}

type TopicResponse struct {
	Message     string    `json:"message"`
	TopicID     string    `json:"topic_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type publisher interface {
	Publish(ctx context.Context, envelope *streaming.Envelope) error
}

type lifecycle interface {
	State() ConsumerState
	Restart() error
}

// Server exposes the pipeline's HTTP surface: publishing, status
// reads, the restart lever, and synchronous service triggers.
type Server struct {
	status     *Status
	consumer   lifecycle
	publisher  publisher
	dispatcher *Dispatcher
	hub        *Hub
	router     chi.Router
}

func NewServer(status *Status, consumer lifecycle, pub publisher, dispatcher *Dispatcher, hub *Hub) *Server {
	s := &Server{
		status:     status,
		consumer:   consumer,
		publisher:  pub,
		dispatcher: dispatcher,
		hub:        hub,
	}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Post("/publish-topic", s.handlePublishTopic)
	r.Get("/message-count", s.handleMessageCount)
	r.Get("/service-stats", s.handleServiceStats)
	r.Get("/consumer-status", s.handleConsumerStatus)
	r.Post("/restart-consumer", s.handleRestartConsumer)
	r.Post("/service/{service}", s.handleTriggerService)
	r.Handle("/metrics", promhttp.Handler())
	if hub != nil {
		r.Get("/ws", hub.ServeHTTP)
	}
	s.router = r

	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     serviceName,
		"status":   "healthy",
		"consumer": s.consumer.State(),
	})
}

func (s *Server) handlePublishTopic(w http.ResponseWriter, r *http.Request) {
	var req TopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	envelope := req.envelope()
	envelope.TopicID = uuid.NewString()
	envelope.PublishedAt = time.Now()

	if err := envelope.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.publisher.Publish(r.Context(), envelope); err != nil {
		zlog.Error().Err(err).Msg("failed to publish topic")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, TopicResponse{
		Message:     "Topic published successfully",
		TopicID:     envelope.TopicID,
		Status:      "published",
		SubmittedAt: envelope.PublishedAt,
	})
}

func (s *Server) handleMessageCount(w http.ResponseWriter, r *http.Request) {
	snapshot := s.status.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"messages_processed": snapshot.TotalProcessed,
		"status":             "active",
	})
}

func (s *Server) handleServiceStats(w http.ResponseWriter, r *http.Request) {
	snapshot := s.status.Snapshot()

	stats := map[string]map[string]int64{}
	for _, service := range streaming.ServiceTypes {
		stats[string(service)] = map[string]int64{
			"success": snapshot.Success[string(service)],
			"error":   snapshot.Errors[string(service)],
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"services":  stats,
		"unknown":   snapshot.Errors[BucketUnknown],
		"malformed": snapshot.Errors[BucketMalformed],
	})
}

func (s *Server) handleConsumerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

func (s *Server) handleRestartConsumer(w http.ResponseWriter, r *http.Request) {
	if err := s.consumer.Restart(); err != nil {
		zlog.Error().Err(err).Msg("failed to restart consumer")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Consumer restarted",
		"state":   s.consumer.State(),
	})
}

// handleTriggerService bypasses the queue and dispatches a synthesized
// envelope synchronously. Operational testing only.
func (s *Server) handleTriggerService(w http.ResponseWriter, r *http.Request) {
	service := streaming.ServiceType(chi.URLParam(r, "service"))
	if !service.Valid() {
		writeError(w, http.StatusBadRequest, (&streaming.UnknownServiceError{Service: string(service)}).Error())
		return
	}

	var req TopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	envelope := req.envelope()
	envelope.Service = service
	envelope.TopicID = uuid.NewString()

	if err := envelope.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome := s.dispatcher.Dispatch(r.Context(), envelope)

	code := http.StatusOK
	if outcome.Failed() {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, outcome)
}

func (req TopicRequest) envelope() *streaming.Envelope {
	return &streaming.Envelope{
		IntegrationID: req.IntegrationID,
		Service:       streaming.ServiceType(req.Service),
		Parameters:    req.Parameters,
		DateFrom:      req.DateFrom,
		DateTo:        req.DateTo,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
