package subscription_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aire-platform/eventbus/internal/envelope"
	"github.com/aire-platform/eventbus/internal/eventbus"
	"github.com/aire-platform/eventbus/internal/logging"
	"github.com/aire-platform/eventbus/internal/subscription"
)

// fakeBus is a minimal in-process eventbus.Bus double used to observe how
// Manager dispatches and acknowledges, without a real broker.
type fakeBus struct {
	mu            sync.Mutex
	acked         []string
	subscriptions map[string]eventbus.Handler
}

func newFakeBus() *fakeBus {
	return &fakeBus{subscriptions: make(map[string]eventbus.Handler)}
}

func (f *fakeBus) Publish(ctx context.Context, topic string, env *envelope.Envelope) (string, error) {
	return "1-0", nil
}

func (f *fakeBus) Subscribe(ctx context.Context, topic, consumerGroup, consumerName string, handler eventbus.Handler) error {
	f.mu.Lock()
	f.subscriptions[topic] = handler
	f.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (f *fakeBus) Acknowledge(ctx context.Context, topic, consumerGroup, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, messageID)
	return nil
}

func (f *fakeBus) Stop(ctx context.Context) error { return nil }

func (f *fakeBus) deliver(t *testing.T, ctx context.Context, topic, messageID string, env *envelope.Envelope) error {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.subscriptions[topic]
	f.mu.Unlock()
	require.True(t, ok, "topic %s was never subscribed", topic)
	return handler(ctx, messageID, env)
}

func TestSetupSubscriptions_NoHandlers_ReturnsNilWithoutSubscribing(t *testing.T) {
	bus := newFakeBus()
	mgr := subscription.NewManager(bus, subscription.NewRegistry(), "group", "consumer", "svc", false, logging.New(logging.Config{}))

	require.NoError(t, mgr.SetupSubscriptions(context.Background()))
	assert.Empty(t, bus.subscriptions)
}

func TestSetupSubscriptions_SyncHandler_AcksOnSuccess(t *testing.T) {
	registry := subscription.NewRegistry()
	var called bool
	registry.RegisterSync("user_message_raw", func(ctx context.Context, messageID string, payload map[string]any) error {
		called = true
		return nil
	})

	bus := newFakeBus()
	mgr := subscription.NewManager(bus, registry, "group", "consumer", "svc", false, logging.New(logging.Config{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.SetupSubscriptions(ctx))
	time.Sleep(20 * time.Millisecond)

	env := envelope.Build(map[string]any{}, "input", envelope.BuildParams{})
	err := bus.deliver(t, ctx, "user_message_raw", "1-0", env)

	assert.NoError(t, err)
	assert.True(t, called)

	bus.mu.Lock()
	acked := bus.acked
	bus.mu.Unlock()
	assert.Equal(t, []string{"1-0"}, acked, "subscription manager, not the bus, is responsible for acking sync handler successes")
}

func TestSetupSubscriptions_SyncHandler_FailurePropagatesError(t *testing.T) {
	registry := subscription.NewRegistry()
	registry.RegisterSync("user_message_raw", func(ctx context.Context, messageID string, payload map[string]any) error {
		return assert.AnError
	})

	bus := newFakeBus()
	mgr := subscription.NewManager(bus, registry, "group", "consumer", "svc", false, logging.New(logging.Config{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.SetupSubscriptions(ctx))
	time.Sleep(20 * time.Millisecond)

	env := envelope.Build(map[string]any{}, "input", envelope.BuildParams{})
	err := bus.deliver(t, ctx, "user_message_raw", "1-0", env)
	assert.Error(t, err)

	bus.mu.Lock()
	acked := bus.acked
	bus.mu.Unlock()
	assert.Empty(t, acked)
}

func TestSetupSubscriptions_AsyncHandler_SuppressesBusAckAndAcksExplicitlyLater(t *testing.T) {
	registry := subscription.NewRegistry()
	done := make(chan struct{})
	registry.RegisterAsync("user_message_raw", func(ctx context.Context, messageID string, payload map[string]any) error {
		close(done)
		return nil
	})

	bus := newFakeBus()
	mgr := subscription.NewManager(bus, registry, "group", "consumer", "svc", false, logging.New(logging.Config{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.SetupSubscriptions(ctx))
	time.Sleep(20 * time.Millisecond)

	env := envelope.Build(map[string]any{}, "input", envelope.BuildParams{})
	err := bus.deliver(t, ctx, "user_message_raw", "42-0", env)
	assert.ErrorIs(t, err, eventbus.ErrAsyncDispatched)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler was never invoked")
	}

	assert.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.acked) == 1 && bus.acked[0] == "42-0"
	}, time.Second, 10*time.Millisecond)
}

func TestDebugMode_ResetsConsumerGroupsOnRedisBus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close(); mr.Close() })

	bus := eventbus.NewRedisBus(client, nil, "ai-re", 10000, logging.New(logging.Config{}))
	ctx := context.Background()

	env := envelope.Build(map[string]any{}, "input", envelope.BuildParams{EventType: "user_message_raw"})
	_, err := bus.Publish(ctx, "user_message_raw", env)
	require.NoError(t, err)

	registry := subscription.NewRegistry()
	registry.RegisterSync("user_message_raw", noopHandler)
	mgr := subscription.NewManager(bus, registry, "test-group", "consumer", "svc", true, logging.New(logging.Config{}))

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.SetupSubscriptions(subCtx))
	time.Sleep(100 * time.Millisecond)

	groups, err := client.XInfoGroups(ctx, "ai-re:user_message_raw").Result()
	require.NoError(t, err)
	require.Len(t, groups, 1)
}
