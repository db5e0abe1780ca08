package events

import (
	"fmt"
	"sync"
)

// Handler receives one decoded event. Handlers must be idempotent against
// duplicate delivery; the transport is at-least-once.
type Handler func(Event)

type registration struct {
	id uint64
	fn Handler
}

// Router fans instrument events out to subscribers keyed by event type.
//
// It keeps no per-subscriber state between messages. Delivery happens on
// the caller's goroutine; handlers for one type run in registration order.
//
// Thread Safety: all methods are safe for concurrent use. Handlers may
// subscribe or unsubscribe from inside a delivery; the change applies to
// the next message.
type Router struct {
	mu       sync.RWMutex
	handlers map[Type][]registration
	nextID   uint64
	logger   Logger
}

// NewRouter creates an empty router. A nil logger discards output.
func NewRouter(logger Logger) *Router {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Router{
		handlers: make(map[Type][]registration),
		logger:   logger,
	}
}

// Subscribe registers h for events of type t.
//
// The returned function removes exactly this registration; calling it more
// than once is harmless.
func (r *Router) Subscribe(t Type, h Handler) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.handlers[t] = append(r.handlers[t], registration{id: id, fn: h})

	return func() { r.unsubscribe(t, id) }
}

func (r *Router) unsubscribe(t Type, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.handlers[t]
	for i, reg := range regs {
		if reg.id == id {
			r.handlers[t] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(r.handlers[t]) == 0 {
		delete(r.handlers, t)
	}
}

// SubscriberCount returns the number of handlers registered for t.
func (r *Router) SubscriberCount(t Type) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[t])
}

// Dispatch decodes raw as an event of type t and delivers it.
//
// A payload that fails validation is logged and dropped; the error is
// returned for the caller's benefit only.
func (r *Router) Dispatch(t Type, raw []byte) error {
	e, err := Decode(t, raw)
	if err != nil {
		r.logger.Warn("dropping undecodable event", "type", string(t), "error", err)
		return err
	}
	r.Publish(e)
	return nil
}

// Publish delivers an already decoded event to every current subscriber
// for its type.
func (r *Router) Publish(e Event) {
	r.mu.RLock()
	regs := r.handlers[e.Type()]
	handlers := make([]Handler, len(regs))
	for i, reg := range regs {
		handlers[i] = reg.fn
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		r.deliver(h, e)
	}
}

// deliver runs one handler. A panicking handler must not prevent the
// remaining subscribers from seeing the event.
func (r *Router) deliver(h Handler, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event handler panic recovered",
				"type", string(e.Type()),
				"instrument_id", e.Instrument(),
				"panic", fmt.Sprint(rec),
			)
		}
	}()
	h(e)
}
