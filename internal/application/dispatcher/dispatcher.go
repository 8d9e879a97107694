package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/edusuite/school-billing/internal/domain/event"
)

// ErrClosed is returned when dispatching on a closed dispatcher.
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher fans billing events out to registered handlers. Services fire
// events after their unit of work commits; subscribers (receipt issuance,
// the notification outbox) react without the services knowing about them.
type Dispatcher interface {
	// Subscribe registers a handler under an auto-generated name.
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler under an explicit name so it can
	// be listed and unsubscribed.
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// Unsubscribe removes a handler by name.
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs the handlers in subscription order and stops at the
	// first failure, returning it wrapped with the handler's name.
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs every handler in its own goroutine. Failures are
	// logged, never returned; Close waits for in-flight handlers.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns the registrations for an event type, without
	// the handler functions.
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close marks the dispatcher closed and waits for async handlers.
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// subscription pairs a handler with the name it was registered under.
type subscription struct {
	name string
	fn   Handler
}

type billingDispatcher struct {
	mu       sync.RWMutex
	registry map[event.Type][]subscription
	closed   bool
	logger   Logger

	inflight sync.WaitGroup
}

// Option configures the dispatcher
type Option func(*billingDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *billingDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &billingDispatcher{
		registry: make(map[event.Type][]subscription),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *billingDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.add(eventType, "", handler)
}

func (d *billingDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.add(eventType, name, handler)
}

func (d *billingDispatcher) add(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if name == "" {
		name = fmt.Sprintf("handler-%d", len(d.registry[eventType]))
	}
	d.registry[eventType] = append(d.registry[eventType], subscription{name: name, fn: handler})

	if d.logger != nil {
		d.logger.Info("Handler registered",
			"event_type", eventType,
			"handler_name", name,
		)
	}
}

func (d *billingDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.registry[eventType]
	kept := subs[:0]
	for _, sub := range subs {
		if sub.name != name {
			kept = append(kept, sub)
		}
	}
	d.registry[eventType] = kept
}

// snapshot copies the subscriptions for one event type so handlers run
// outside the lock and a handler may itself subscribe or unsubscribe.
func (d *billingDispatcher) snapshot(eventType event.Type) ([]subscription, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, false
	}
	subs := make([]subscription, len(d.registry[eventType]))
	copy(subs, d.registry[eventType])
	return subs, true
}

func (d *billingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	subs, open := d.snapshot(evt.Type)
	if !open {
		return ErrClosed
	}

	for _, sub := range subs {
		if err := d.run(ctx, evt, sub); err != nil {
			if d.logger != nil {
				d.logger.Error("Handler failed",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"invoice_ref", evt.InvoiceReference,
					"handler_name", sub.name,
					"error", err,
				)
			}
			return fmt.Errorf("handler %s failed: %w", sub.name, err)
		}
	}
	return nil
}

func (d *billingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	subs, open := d.snapshot(evt.Type)
	if !open {
		if d.logger != nil {
			d.logger.Error("Dropping async event on closed dispatcher",
				"event_type", evt.Type,
				"event_id", evt.ID,
			)
		}
		return
	}

	for _, sub := range subs {
		d.inflight.Add(1)
		go func(sub subscription) {
			defer d.inflight.Done()
			if err := d.run(ctx, evt, sub); err != nil && d.logger != nil {
				d.logger.Error("Async handler failed",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"invoice_ref", evt.InvoiceReference,
					"handler_name", sub.name,
					"error", err,
				)
			}
		}(sub)
	}
}

func (d *billingDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]HandlerInfo, 0, len(d.registry[eventType]))
	for _, sub := range d.registry[eventType] {
		infos = append(infos, HandlerInfo{Name: sub.name, EventType: eventType})
	}
	return infos
}

func (d *billingDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	d.mu.Unlock()

	d.inflight.Wait()
	return nil
}

// run executes one handler, converting a panic into an error so a broken
// subscriber cannot take the dispatching service down with it.
func (d *billingDispatcher) run(ctx context.Context, evt *event.Event, sub subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.fn(ctx, evt)
}
