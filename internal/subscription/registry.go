// Package subscription is the reusable per-service subscription layer
// (C5/C6): it maps topics to business handlers, sets up the underlying
// Bus subscriptions, and owns the ack-on-success policy.
package subscription

import (
	"context"

	eberrors "github.com/aire-platform/eventbus/internal/errors"
)

// BusinessHandler processes a single message's payload. A returned error
// counts as failure: the message is left unacknowledged. messageID is the
// broker-assigned ID, provided for logging and idempotency checks.
type BusinessHandler func(ctx context.Context, messageID string, payload map[string]any) error

// mode distinguishes how a handler should be dispatched.
type mode int

const (
	modeSync mode = iota
	modeAsync
)

type registration struct {
	handler BusinessHandler
	mode    mode
}

// HandlerSpec pairs a BusinessHandler with its dispatch mode, letting
// callers that build a handler map up front (e.g. service.Hooks) state
// sync-vs-async per topic without reaching into Registry internals.
type HandlerSpec struct {
	Handler BusinessHandler
	Async   bool
}

// RegisterSpec registers handler according to spec.Async.
func (r *Registry) RegisterSpec(topic string, spec HandlerSpec) {
	if spec.Async {
		r.RegisterAsync(topic, spec.Handler)
		return
	}
	r.RegisterSync(topic, spec.Handler)
}

// Registry maps topics to registered handlers, falling back to a default
// handler when one is set. Lookup order is: exact topic match, then
// default, then NoHandlerError — there is no third fallback.
type Registry struct {
	handlers map[string]registration
	def      *registration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// RegisterSync registers a handler that runs inline on the subscription's
// goroutine: the next message for this topic waits for it to return.
func (r *Registry) RegisterSync(topic string, handler BusinessHandler) {
	r.handlers[topic] = registration{handler: handler, mode: modeSync}
}

// RegisterAsync registers a handler dispatched onto its own goroutine per
// message, so a slow handler does not block the topic's read loop.
func (r *Registry) RegisterAsync(topic string, handler BusinessHandler) {
	r.handlers[topic] = registration{handler: handler, mode: modeAsync}
}

// RegisterManySync is a convenience for bulk sync registration.
func (r *Registry) RegisterManySync(handlers map[string]BusinessHandler) {
	for topic, h := range handlers {
		r.RegisterSync(topic, h)
	}
}

// SetDefault registers the handler invoked for any topic with no exact
// match.
func (r *Registry) SetDefault(handler BusinessHandler) {
	r.def = &registration{handler: handler, mode: modeSync}
}

// SetDefaultAsync registers an async default handler.
func (r *Registry) SetDefaultAsync(handler BusinessHandler) {
	r.def = &registration{handler: handler, mode: modeAsync}
}

// Topics returns every topic with an explicitly registered handler (the
// default handler, if any, is not included since it isn't tied to one
// topic).
func (r *Registry) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// Get resolves topic to its registered handler under the same lookup rule
// as internal dispatch: exact match, then the default handler if set,
// then NoHandlerError.
func (r *Registry) Get(topic string) (BusinessHandler, error) {
	reg, err := r.lookup(topic)
	if err != nil {
		return nil, err
	}
	return reg.handler, nil
}

// All returns every explicitly registered topic→handler binding. The
// default handler, if any, is not included since it isn't keyed by topic.
func (r *Registry) All() map[string]BusinessHandler {
	out := make(map[string]BusinessHandler, len(r.handlers))
	for topic, reg := range r.handlers {
		out[topic] = reg.handler
	}
	return out
}

// Unregister removes topic's binding, if any. Unregistering a topic with
// no binding is a no-op.
func (r *Registry) Unregister(topic string) {
	delete(r.handlers, topic)
}

// Clear removes every topic binding and the default handler.
func (r *Registry) Clear() {
	r.handlers = make(map[string]registration)
	r.def = nil
}

// lookup resolves topic to its registration: exact match, then default,
// then NoHandlerError.
func (r *Registry) lookup(topic string) (registration, error) {
	if reg, ok := r.handlers[topic]; ok {
		return reg, nil
	}
	if r.def != nil {
		return *r.def, nil
	}
	return registration{}, eberrors.NoHandler(topic)
}
