package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/queryinside/pipeline/shared/streaming"
)

var ErrUnknownService = errors.New("no handler registered for service")

// HandlerFunc processes one envelope and returns a handler-defined
// result payload. Handlers must respect the context deadline on any
// external I/O.
type HandlerFunc func(ctx context.Context, envelope *streaming.Envelope) (any, error)

type Route struct {
	Name    string
	Service streaming.ServiceType
	Handler HandlerFunc
}

// Registry maps service types to handlers. It is built once at startup
// and read-only afterwards; picking up new handlers requires a restart.
type Registry struct {
	routes map[streaming.ServiceType]Route
}

func NewRegistry(routes []Route) (*Registry, error) {
	m := make(map[streaming.ServiceType]Route, len(routes))
	for _, route := range routes {
		if !route.Service.Valid() {
			return nil, fmt.Errorf("route %s: %w", route.Name, &streaming.UnknownServiceError{Service: string(route.Service)})
		}
		if _, ok := m[route.Service]; ok {
			return nil, fmt.Errorf("route %s: duplicate handler for %s", route.Name, route.Service)
		}
		m[route.Service] = route
	}
	return &Registry{routes: m}, nil
}

func (r *Registry) Resolve(service streaming.ServiceType) (Route, error) {
	route, ok := r.routes[service]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return route, nil
}
