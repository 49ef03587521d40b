package streaming

import (
	"encoding/json"
	"fmt"
	"time"
)

// ServiceType selects which handler processes an envelope.
type ServiceType string

const (
	ServiceQuery     ServiceType = "qi"
	ServiceAnalytics ServiceType = "analytics"
	ServiceExport    ServiceType = "export"
)

// ServiceTypes lists every service the pipeline can dispatch to.
var ServiceTypes = []ServiceType{ServiceQuery, ServiceAnalytics, ServiceExport}

func (s ServiceType) Valid() bool {
	switch s {
	case ServiceQuery, ServiceAnalytics, ServiceExport:
		return true
	}
	return false
}

func (s ServiceType) String() string {
	return string(s)
}

// Envelope is the unit of work flowing through the topic queue.
type Envelope struct {
	TopicID       string         `json:"topic_id,omitempty"`
	IntegrationID string         `json:"integration_id"`
	Service       ServiceType    `json:"service_type"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	DateFrom      string         `json:"date_from,omitempty"`
	DateTo        string         `json:"date_to,omitempty"`
	PublishedAt   time.Time      `json:"published_at,omitempty"`
}

func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Validate checks the envelope carries everything the dispatcher needs.
func (e *Envelope) Validate() error {
	if e.IntegrationID == "" {
		return fmt.Errorf("envelope: %w", ErrMissingIntegrationID)
	}
	if e.Service == "" {
		return fmt.Errorf("envelope: %w", ErrMissingService)
	}
	if !e.Service.Valid() {
		return &UnknownServiceError{Service: string(e.Service)}
	}
	return nil
}

// ParseEnvelope decodes and validates a raw queue delivery.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	envelope := &Envelope{}
	if err := json.Unmarshal(raw, envelope); err != nil {
		return nil, fmt.Errorf("envelope: decode: %w", err)
	}
	if err := envelope.Validate(); err != nil {
		return nil, err
	}
	return envelope, nil
}
