// Package dispatch maps event types to their processing logic.
// The registry is populated at startup and immutable afterwards; an event
// type with no handler is not an error, the pipeline records it as
// unhandled and still acknowledges the delivery.
package dispatch

import (
	"context"
	"errors"

	"github.com/cbwinslow/crawl4ai/internal/domain"
)

// ErrNoHandler is returned by Dispatch for event types outside the
// registered set. Callers treat it as a soft outcome, not a failure.
var ErrNoHandler = errors.New("dispatch: no handler registered for event type")

// Handler processes one delivery's payload. Process may perform external
// side effects and may fail transiently; retries are the caller's concern.
type Handler interface {
	Process(ctx context.Context, d domain.Delivery) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, d domain.Delivery) error

func (f HandlerFunc) Process(ctx context.Context, d domain.Delivery) error {
	return f(ctx, d)
}

type Registry struct {
	handlers map[domain.EventType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.EventType]Handler)}
}

// Register binds h to event type t, replacing any previous binding.
// Not safe to call once the pipeline is serving.
func (r *Registry) Register(t domain.EventType, h Handler) {
	r.handlers[t] = h
}

// Lookup returns the handler for t, if one is registered.
func (r *Registry) Lookup(t domain.EventType) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// Dispatch routes d to its handler. Returns ErrNoHandler for unregistered
// event types.
func (r *Registry) Dispatch(ctx context.Context, d domain.Delivery) error {
	h, ok := r.handlers[d.Event]
	if !ok {
		return ErrNoHandler
	}
	return h.Process(ctx, d)
}
