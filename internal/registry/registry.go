// Package registry is the dispatch table from a step's type tag to the
// handler quadruple (validate, snapshot, apply, compensate) that knows how
// to drive that step against the live host.
//
// Adapted from the teacher's agent registry (a mutex-protected map with
// Register/lookup helpers); the Redis-backed agent bookkeeping doesn't
// transfer since handlers are in-process function values, not
// network-discoverable peers, so this registry stays purely in-memory.
package registry

import (
	"context"
	"fmt"
	"sync"

	"optiinfra/pkginstall/internal/model"
)

// Handler is the extensibility seam: one implementation per step type.
type Handler interface {
	// Validate checks step_data's shape. Must be pure; no side effects.
	Validate(data []byte) error

	// Snapshot captures enough pre-image to undo a subsequent successful
	// Apply. Must include an "absent before" marker when appropriate.
	Snapshot(ctx context.Context, data []byte) ([]byte, error)

	// Apply attempts to achieve the target state described by data.
	Apply(ctx context.Context, data []byte) error

	// Compensate restores the captured pre-state. Must tolerate partial
	// application: if the change never took effect, it is a no-op success.
	Compensate(ctx context.Context, data, snapshot []byte) error
}

// Registry maps a step type tag to its Handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.StepType]Handler
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[model.StepType]Handler)}
}

// Register adds or replaces the handler for a step type.
func (r *Registry) Register(t model.StepType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Get returns the handler for a step type, or an error for unknown tags.
func (r *Registry) Get(t model.StepType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("no handler registered for step type %q", t)
	}
	return h, nil
}

// Types returns the set of registered step types, for validate/list-template
// use.
func (r *Registry) Types() []model.StepType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]model.StepType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
