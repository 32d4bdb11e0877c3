package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aire-platform/eventbus/internal/envelope"
	eberrors "github.com/aire-platform/eventbus/internal/errors"
	"github.com/aire-platform/eventbus/internal/logging"
	"github.com/aire-platform/eventbus/internal/metrics"
)

const (
	// payloadField is the Redis stream field the serialized envelope is
	// stored under.
	payloadField = "payload"

	// streamFirstID consumes a consumer group from the start of the
	// stream, used when debug mode resets a group's cursor.
	streamFirstID = "0-0"

	// streamNextID requests only entries not yet delivered to any
	// consumer in the group.
	streamNextID = ">"

	defaultBlockMillis = 2000
	defaultBatchSize   = 10
)

const busyGroupPrefix = "BUSYGROUP"

// RedisBus is the Bus implementation backing production deployments: every
// topic maps to one Redis stream, and every Subscribe call runs its own
// goroutine performing a blocking XREADGROUP loop.
type RedisBus struct {
	client       *redis.Client
	validator    *ContractValidator
	streamPrefix string
	maxLen       int64
	log          logging.Logger

	wg sync.WaitGroup

	subsMu sync.Mutex
	subs   map[string]*subscriptionHandle
}

// subscriptionHandle lets a later Subscribe call for the same
// (topic, consumerGroup, consumerName) triple stop and join the worker
// currently holding that triple before starting its own.
type subscriptionHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBus builds a RedisBus. validator may be nil, in which case
// Publish skips contract validation entirely.
func NewRedisBus(client *redis.Client, validator *ContractValidator, streamPrefix string, maxLen int64, log logging.Logger) *RedisBus {
	return &RedisBus{
		client:       client,
		validator:    validator,
		streamPrefix: streamPrefix,
		maxLen:       maxLen,
		log:          log,
		subs:         make(map[string]*subscriptionHandle),
	}
}

func (b *RedisBus) streamKey(topic string) string {
	return envelope.BuildTopicKey(b.streamPrefix, topic)
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, topic string, env *envelope.Envelope) (string, error) {
	if err := b.validator.Validate(topic, env.ActualPayload); err != nil {
		return "", err
	}

	data, err := envelope.Serialize(env)
	if err != nil {
		return "", err
	}

	stream := b.streamKey(topic)
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{payloadField: data},
	}

	id, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		metrics.PublishErrorsTotal.WithLabelValues(topic).Inc()
		return "", eberrors.Publish(fmt.Errorf("stream %s: %w", stream, err))
	}

	metrics.EventsPublishedTotal.WithLabelValues(topic).Inc()
	b.log.With("topic", topic).With("message_id", id).Debug("published event")
	return id, nil
}

// Subscribe implements Bus. It creates the consumer group (tolerating
// BUSYGROUP, since two subscribers racing to create the same group is
// routine), stops and joins any existing worker for the same
// (topic, consumerGroup, consumerName) triple, then loops reading and
// dispatching messages until ctx is cancelled. The adapter never acks a
// message itself — that is entirely the caller's responsibility via
// Acknowledge, whether reached through a Handler's own success path or an
// async completion later.
func (b *RedisBus) Subscribe(ctx context.Context, topic, consumerGroup, consumerName string, handler Handler) error {
	stream := b.streamKey(topic)

	// "$" starts a newly created group at the stream's current end.
	if err := b.ensureGroup(ctx, stream, consumerGroup, "$"); err != nil {
		return err
	}

	key := subscriptionKey(topic, consumerGroup, consumerName)
	b.quiesce(key)

	subCtx, cancel := context.WithCancel(ctx)
	handle := &subscriptionHandle{cancel: cancel, done: make(chan struct{})}

	b.subsMu.Lock()
	b.subs[key] = handle
	b.subsMu.Unlock()

	b.wg.Add(1)
	defer func() {
		b.wg.Done()
		cancel()
		close(handle.done)
		b.subsMu.Lock()
		if b.subs[key] == handle {
			delete(b.subs, key)
		}
		b.subsMu.Unlock()
	}()

	log := b.log.With("topic", topic).With("consumer_group", consumerGroup).With("consumer", consumerName)
	log.Info("subscription started")

	metrics.ActiveSubscriptions.WithLabelValues(consumerGroup).Inc()
	defer metrics.ActiveSubscriptions.WithLabelValues(consumerGroup).Dec()

	for {
		streams, err := b.client.XReadGroup(subCtx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: consumerName,
			Streams:  []string{stream, streamNextID},
			Count:    defaultBatchSize,
			Block:    defaultBlockMillis,
		}).Result()

		if subCtx.Err() != nil {
			log.Info("subscription stopped")
			return nil
		}

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			log.Errorf("failed to read from stream, retrying", err)
			select {
			case <-subCtx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, message := range s.Messages {
				b.process(subCtx, stream, message, handler, log)
			}
		}
	}
}

// subscriptionKey canonicalizes a (topic, consumerGroup, consumerName)
// triple for the subs map. NUL cannot appear in any of the three
// components (they come from configuration and topic names, never raw
// user input), so this never collides across different triples.
func subscriptionKey(topic, consumerGroup, consumerName string) string {
	return topic + "\x00" + consumerGroup + "\x00" + consumerName
}

// quiesce stops and joins the worker currently registered under key, if
// any, before returning. This guarantees at most one active worker per
// triple at a time: Subscribe only registers its own handle after quiesce
// returns.
func (b *RedisBus) quiesce(key string) {
	b.subsMu.Lock()
	old, ok := b.subs[key]
	b.subsMu.Unlock()
	if !ok {
		return
	}
	old.cancel()
	<-old.done
}

func (b *RedisBus) process(ctx context.Context, stream string, message redis.XMessage, handler Handler, log logging.Logger) {
	topic := topicFromStream(stream, b.streamPrefix)

	raw, ok := message.Values[payloadField].(string)
	if !ok {
		log.With("message_id", message.ID).Warn("message missing payload field, dropping")
		return
	}

	env, err := envelope.Parse([]byte(raw))
	if err != nil {
		log.With("message_id", message.ID).Errorf("failed to parse envelope, dropping", err)
		return
	}

	timer := metrics.NewTimer()
	err = handler(ctx, message.ID, env)
	timer.ObserveTopic(topic)

	if err != nil {
		if errors.Is(err, ErrAsyncDispatched) {
			return
		}
		metrics.EventsConsumedTotal.WithLabelValues(topic, "failed").Inc()
		log.With("message_id", message.ID).Errorf("handler failed, leaving unacknowledged", err)
		return
	}

	metrics.EventsConsumedTotal.WithLabelValues(topic, "succeeded").Inc()
}

// topicFromStream recovers the bare topic name from a stream key, undoing
// BuildTopicKey, so consumption metrics carry the same "topic" label
// Publish uses rather than the prefixed stream key.
func topicFromStream(stream, prefix string) string {
	return strings.TrimPrefix(strings.TrimPrefix(stream, prefix), ":")
}

// Acknowledge implements Bus.
func (b *RedisBus) Acknowledge(ctx context.Context, topic, consumerGroup, messageID string) error {
	stream := b.streamKey(topic)
	if err := b.client.XAck(ctx, stream, consumerGroup, messageID).Err(); err != nil {
		return eberrors.Acknowledge(fmt.Errorf("stream %s: %w", stream, err))
	}
	return nil
}

// Stop implements Bus: it cancels every running subscription, waits for
// each Subscribe goroutine to observe the cancellation and return, then
// closes the underlying client.
func (b *RedisBus) Stop(ctx context.Context) error {
	b.subsMu.Lock()
	for _, handle := range b.subs {
		handle.cancel()
	}
	b.subsMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return b.client.Close()
}

// ensureGroup creates consumerGroup on stream starting at startID,
// tolerating the case where it already exists.
func (b *RedisBus) ensureGroup(ctx context.Context, stream, consumerGroup, startID string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, consumerGroup, startID).Err()
	if err == nil || isBusyGroup(err) {
		return nil
	}
	return eberrors.ConsumerGroup(fmt.Errorf("group %s on %s: %w", consumerGroup, stream, err))
}

// ResetGroup destroys and recreates consumerGroup on topic's stream from
// the beginning. Intended for debug-mode subscriptions that want to
// replay history on every process start rather than resume a stored
// cursor.
func (b *RedisBus) ResetGroup(ctx context.Context, topic, consumerGroup string) error {
	stream := b.streamKey(topic)
	if err := b.client.XGroupDestroy(ctx, stream, consumerGroup).Err(); err != nil && !isNoSuchKey(err) {
		return eberrors.ConsumerGroup(fmt.Errorf("destroying group %s on %s: %w", consumerGroup, stream, err))
	}
	return b.ensureGroup(ctx, stream, consumerGroup, streamFirstID)
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), busyGroupPrefix)
}

func isNoSuchKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such key")
}
