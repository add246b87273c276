// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrBusClosed  = errors.New("event bus is shut down")
	ErrBufferFull = errors.New("event channel full")
)

// Bus delivers position events to subscribers on a single background
// goroutine, in publish order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type]map[string]Handler
	closed   bool

	logger     *zap.Logger
	queue      chan PositionEvent
	bufferSize int
	done       chan struct{}
}

// NewBus creates a new event bus and starts its dispatcher.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	b := &Bus{
		handlers:   make(map[Type]map[string]Handler),
		logger:     logger.Named("event_bus"),
		queue:      make(chan PositionEvent, bufferSize),
		bufferSize: bufferSize,
		done:       make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(typ Type, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	if b.handlers[typ] == nil {
		b.handlers[typ] = make(map[string]Handler)
	}
	b.handlers[typ][id] = handler

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(typ)),
		zap.String("subscription_id", id))

	return &subscription{id: id, bus: b, typ: typ}
}

// SubscribeAll registers fn for both opened and closed events.
func (b *Bus) SubscribeAll(fn func(context.Context, PositionEvent) error) []Subscription {
	return []Subscription{
		b.Subscribe(PositionOpened, HandlerFunc(fn)),
		b.Subscribe(PositionClosed, HandlerFunc(fn)),
	}
}

// Publish queues an event without blocking the caller.
func (b *Bus) Publish(event PositionEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.queue <- event:
		return nil
	default:
		b.logger.Warn("Event channel full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("position", event.PositionID))
		return ErrBufferFull
	}
}

// deliver runs every handler of the event type and joins their errors.
func (b *Bus) deliver(ctx context.Context, event PositionEvent) error {
	b.mu.RLock()
	handlers := make(map[string]Handler, len(b.handlers[event.Type]))
	for id, h := range b.handlers[event.Type] {
		handlers[id] = h
	}
	b.mu.RUnlock()

	var errs []error
	for id, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil {
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type)),
				zap.String("handler_id", id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("handlers failed: %w", errors.Join(errs...))
	}
	return nil
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for event := range b.queue {
		_ = b.deliver(context.Background(), event)
	}
}

func (b *Bus) unsubscribe(id string, typ Type) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[typ]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, typ)
		}
	}
}

// Shutdown stops accepting events and waits until the queued ones are delivered.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		b.logger.Info("Event bus shutdown complete")
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout", zap.Int("pending_events", len(b.queue)))
		return ctx.Err()
	}
}

// Pending returns the number of queued, undelivered events.
func (b *Bus) Pending() int {
	return len(b.queue)
}
