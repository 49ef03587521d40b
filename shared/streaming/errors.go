package streaming

import (
	"errors"
	"fmt"
)

var (
	ErrMissingIntegrationID = errors.New("missing integration_id")
	ErrMissingService       = errors.New("missing service_type")
)

// UnknownServiceError marks an envelope naming a service the pipeline
// has no handler for. Permanent, never retried.
type UnknownServiceError struct {
	Service string
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("unknown service type %q", e.Service)
}
