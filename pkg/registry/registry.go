// Package registry maps activity-type strings to the domain callbacks invoked
// when a request reaches a terminal state. Domain modules register their
// handler at process start; the engine looks handlers up only at terminal
// transitions and calls exactly one callback, exactly once, per transition.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ActivityHandler is the domain module's completion contract. The engine never
// inspects domain data; it only reports the outcome keyed by activity ID.
type ActivityHandler interface {
	OnApproved(ctx context.Context, activityID, approvedBy string) error
	OnRejected(ctx context.Context, activityID, rejectedBy, reason string) error
	OnCancelled(ctx context.Context, activityID, cancelledBy, reason string) error
}

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[string]ActivityHandler
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		handlers: make(map[string]ActivityHandler),
	}
}

// Register binds a handler to an activity type. Registering the same type
// twice is a wiring mistake and fails.
func (r *Registry) Register(activityType string, handler ActivityHandler) error {
	if activityType == "" {
		return fmt.Errorf("activity type is required")
	}

	if handler == nil {
		return fmt.Errorf("handler for activity type %q is nil", activityType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[activityType]; exists {
		return fmt.Errorf("handler for activity type %q already registered", activityType)
	}

	r.handlers[activityType] = handler
	r.logger.Info("Registered activity handler", "activity_type", activityType)

	return nil
}

// GetHandler returns the handler for an activity type.
func (r *Registry) GetHandler(activityType string) (ActivityHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[activityType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for activity type %q", activityType)
	}

	return handler, nil
}

// HasHandler reports whether a handler is registered for the activity type.
func (r *Registry) HasHandler(activityType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.handlers[activityType]

	return ok
}

// ActivityTypes returns the registered activity types.
func (r *Registry) ActivityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for activityType := range r.handlers {
		types = append(types, activityType)
	}

	return types
}

// HealthCheck reports registry readiness for the API health endpoint.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.handlers) == 0 {
		return "No activity handlers registered", false
	}

	return fmt.Sprintf("%d activity handler(s) registered", len(r.handlers)), true
}
