// internal/events/handler.go
package events

import (
	"context"
)

// Handler processes position events. Should not block for long.
type Handler interface {
	Handle(ctx context.Context, event PositionEvent) error
}

// HandlerFunc is an adapter to allow the use of ordinary functions as event handlers.
type HandlerFunc func(ctx context.Context, event PositionEvent) error

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event PositionEvent) error {
	return f(ctx, event)
}

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(event PositionEvent) error
}

// Subscription represents a subscription to events.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id  string
	bus *Bus
	typ Type
}

func (s *subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id, s.typ)
}
