// Package eventbus is the Redis Streams transport (C3/C4): a Bus interface
// publishers and subscribers program against, and a Redis-backed
// implementation providing at-least-once delivery via consumer groups.
package eventbus

import (
	"context"
	"errors"

	"github.com/aire-platform/eventbus/internal/envelope"
)

// Handler processes one envelope delivered off a subscription, identified
// by the broker-assigned messageID (not the envelope's own EventID, which
// is independent of stream position). The Bus itself never acknowledges a
// message on a Handler's behalf: acking on success is the subscription
// layer's responsibility (see internal/subscription), so there is exactly
// one place in the system that ever calls Acknowledge.
//
// A Handler that dispatches work to another goroutine and returns before
// that work finishes should return ErrAsyncDispatched: it tells the caller
// that acknowledgement is being handled elsewhere (typically via an
// explicit Acknowledge call once the background work completes) rather
// than signaling a processing failure.
type Handler func(ctx context.Context, messageID string, env *envelope.Envelope) error

// ErrAsyncDispatched is a sentinel a Handler returns to signal that it
// handed work off to another goroutine, so its outcome — and therefore
// its ack — isn't known yet.
var ErrAsyncDispatched = errors.New("eventbus: handled asynchronously")

// Bus is the transport every publisher and subscriber in this system
// depends on. A Bus owns no business logic and never acks on its own —
// it moves envelopes reliably and leaves ack-on-success policy entirely
// to its caller.
type Bus interface {
	// Publish serializes env and appends it to the stream for topic,
	// returning the broker-assigned message ID.
	Publish(ctx context.Context, topic string, env *envelope.Envelope) (string, error)

	// Subscribe creates consumerGroup on topic's stream if it does not
	// already exist, then blocks reading and dispatching messages to
	// handler until ctx is cancelled. Subscribe always returns nil on
	// clean cancellation; it never returns nil while still running.
	//
	// Calling Subscribe again for the same (topic, consumerGroup,
	// consumerName) triple stops and joins the existing worker for that
	// triple before the new one starts reading, so exactly one worker is
	// ever active per triple.
	Subscribe(ctx context.Context, topic, consumerGroup, consumerName string, handler Handler) error

	// Acknowledge marks messageID as processed within consumerGroup on
	// topic's stream, removing it from the group's pending entries list.
	Acknowledge(ctx context.Context, topic, consumerGroup, messageID string) error

	// Stop joins every subscription goroutine started through this Bus
	// and releases underlying connections. It blocks until all
	// goroutines have actually exited.
	Stop(ctx context.Context) error
}
