package internal

import (
	"sync"
	"time"
)

// ConsumerState is the lifecycle state of the consumer loop.
type ConsumerState string

const (
	StateStopped  ConsumerState = "stopped"
	StateStarting ConsumerState = "starting"
	StateRunning  ConsumerState = "running"
	StateStopping ConsumerState = "stopping"
	StateErrored  ConsumerState = "errored"
)

// Error buckets for failures that never reach a handler.
const (
	BucketUnknown   = "unknown"
	BucketMalformed = "malformed"
)

// Status holds the process-wide counters and consumer lifecycle state.
// The consumer loop and dispatcher are the only writers; the HTTP layer
// reads through Snapshot. Every access goes through the mutex.
type Status struct {
	mu sync.Mutex

	totalProcessed int64
	success        map[string]int64
	errors         map[string]int64

	state     ConsumerState
	lastError string
	startedAt time.Time
}

func NewStatus() *Status {
	return &Status{
		success: map[string]int64{},
		errors:  map[string]int64{},
		state:   StateStopped,
	}
}

func (s *Status) RecordSuccess(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.success[service]++
	s.totalProcessed++
}

// RecordHandlerError counts a failed handler invocation. The message is
// still consumed, so it counts toward the processed total.
func (s *Status) RecordHandlerError(service string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors[service]++
	s.totalProcessed++
	s.lastError = err.Error()
}

// RecordRoutingError counts an envelope naming an unregistered service.
// Permanent failures never count toward the processed total.
func (s *Status) RecordRoutingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors[BucketUnknown]++
	s.lastError = err.Error()
}

// RecordParseError counts a delivery the envelope model rejected.
func (s *Status) RecordParseError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors[BucketMalformed]++
	s.lastError = err.Error()
}

func (s *Status) SetState(state ConsumerState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
}

func (s *Status) State() ConsumerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Status) SetLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = err.Error()
}

func (s *Status) MarkStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startedAt = time.Now()
}

// ResetLifecycle clears the lifecycle fields on restart. Historical
// counters survive restarts.
func (s *Status) ResetLifecycle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateStopped
	s.lastError = ""
	s.startedAt = time.Time{}
}

// Snapshot is a point-in-time copy of the pipeline status, safe for
// concurrent readers.
type Snapshot struct {
	TotalProcessed int64            `json:"messages_processed"`
	Success        map[string]int64 `json:"success"`
	Errors         map[string]int64 `json:"errors"`
	State          ConsumerState    `json:"state"`
	LastError      string           `json:"last_error,omitempty"`
	StartedAt      time.Time        `json:"started_at,omitzero"`
	UptimeSeconds  float64          `json:"uptime_seconds"`
}

func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	success := make(map[string]int64, len(s.success))
	for k, v := range s.success {
		success[k] = v
	}
	errs := make(map[string]int64, len(s.errors))
	for k, v := range s.errors {
		errs[k] = v
	}

	var uptime float64
	if !s.startedAt.IsZero() && s.state == StateRunning {
		uptime = time.Since(s.startedAt).Seconds()
	}

	return Snapshot{
		TotalProcessed: s.totalProcessed,
		Success:        success,
		Errors:         errs,
		State:          s.state,
		LastError:      s.lastError,
		StartedAt:      s.startedAt,
		UptimeSeconds:  uptime,
	}
}
