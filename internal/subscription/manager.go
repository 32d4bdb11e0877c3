package subscription

import (
	"context"
	"fmt"
	"sync"

	"github.com/aire-platform/eventbus/internal/envelope"
	"github.com/aire-platform/eventbus/internal/eventbus"
	"github.com/aire-platform/eventbus/internal/logging"
)

// groupResetter is implemented by Bus adapters that can reset a consumer
// group's cursor back to the start of the stream. RedisBus implements it;
// Manager degrades gracefully when the underlying Bus does not.
type groupResetter interface {
	ResetGroup(ctx context.Context, topic, consumerGroup string) error
}

// Manager is the per-service subscription layer (C5): it owns the topic
// registry, wires each registered topic into the underlying Bus, and
// enforces the ack-on-success policy so individual services never touch
// XACK directly.
type Manager struct {
	bus           eventbus.Bus
	registry      *Registry
	consumerGroup string
	consumerName  string
	debugMode     bool
	serviceName   string
	log           logging.Logger

	syncMu  sync.Mutex
	asyncMu sync.Mutex
	wg      sync.WaitGroup
}

// NewManager builds a Manager bound to bus, dispatching to handlers
// registered on registry under the given consumer group. consumerName is
// the base consumer identity; each topic's subscription runs as
// "<consumerName>-<topic>" so fan-out across topics doesn't collide within
// the group.
func NewManager(bus eventbus.Bus, registry *Registry, consumerGroup, consumerName, serviceName string, debugMode bool, log logging.Logger) *Manager {
	return &Manager{
		bus:           bus,
		registry:      registry,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
		debugMode:     debugMode,
		serviceName:   serviceName,
		log:           log.With("service", serviceName),
	}
}

// SetupSubscriptions resets consumer groups (if debug mode is on and the
// Bus supports it), then starts one subscription goroutine per registered
// topic. It returns once every goroutine has been launched; it does not
// wait for them to finish, since they run until ctx is cancelled.
func (m *Manager) SetupSubscriptions(ctx context.Context) error {
	topics := m.registry.Topics()
	if len(topics) == 0 {
		m.log.Warn("no topic handlers registered, nothing to subscribe to")
		return nil
	}

	m.resetForDebug(ctx, topics)

	for _, topic := range topics {
		reg, err := m.registry.lookup(topic)
		if err != nil {
			return err
		}

		consumerName := fmt.Sprintf("%s-%s", m.consumerName, topic)
		wrapped := m.wrapHandler(topic, reg)

		m.wg.Add(1)
		go func(topic, consumerName string) {
			defer m.wg.Done()
			if err := m.bus.Subscribe(ctx, topic, m.consumerGroup, consumerName, wrapped); err != nil {
				m.log.With("topic", topic).Errorf("subscription loop exited with error", err)
			}
		}(topic, consumerName)

		m.log.With("topic", topic).Debug("subscription set up")
	}

	return nil
}

// RegisteredTopics returns every topic this Manager has a handler for.
func (m *Manager) RegisteredTopics() []string {
	return m.registry.Topics()
}

// Wait blocks until every subscription goroutine started by
// SetupSubscriptions has returned. Callers typically cancel the context
// passed to SetupSubscriptions first.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) resetForDebug(ctx context.Context, topics []string) {
	if !m.debugMode {
		return
	}

	resetter, ok := m.bus.(groupResetter)
	if !ok {
		m.log.Warn("debug mode enabled but bus does not support resetting consumer groups")
		return
	}

	m.log.Info("debug mode: resetting consumer groups")
	for _, topic := range topics {
		if err := resetter.ResetGroup(ctx, topic, m.consumerGroup); err != nil {
			m.log.With("topic", topic).Debug("could not reset consumer group, it may not exist yet")
		}
	}
}

// wrapHandler adapts a BusinessHandler into the eventbus.Handler contract,
// dispatching synchronously or asynchronously per the registration's mode
// and taking care of the ack-on-success policy either way.
func (m *Manager) wrapHandler(topic string, reg registration) eventbus.Handler {
	if reg.mode == modeAsync {
		return func(ctx context.Context, messageID string, env *envelope.Envelope) error {
			go m.runAsync(ctx, topic, messageID, reg.handler, env)
			return eventbus.ErrAsyncDispatched
		}
	}

	return func(ctx context.Context, messageID string, env *envelope.Envelope) error {
		return m.runSync(ctx, topic, messageID, reg.handler, env)
	}
}

func (m *Manager) runSync(ctx context.Context, topic, messageID string, handler BusinessHandler, env *envelope.Envelope) error {
	log := m.log.With("topic", topic).With("message_id", messageID)

	if err := handler(ctx, messageID, env.ActualPayload); err != nil {
		log.Errorf("sync handler failed, leaving unacknowledged", err)
		return err
	}

	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	if err := m.bus.Acknowledge(ctx, topic, m.consumerGroup, messageID); err != nil {
		log.Errorf("failed to acknowledge sync handler result", err)
		return err
	}
	log.Debug("sync handler succeeded")
	return nil
}

func (m *Manager) runAsync(ctx context.Context, topic, messageID string, handler BusinessHandler, env *envelope.Envelope) {
	log := m.log.With("topic", topic).With("message_id", messageID)

	if err := handler(ctx, messageID, env.ActualPayload); err != nil {
		log.Errorf("async handler failed, leaving unacknowledged", err)
		return
	}

	m.asyncMu.Lock()
	defer m.asyncMu.Unlock()
	if err := m.bus.Acknowledge(ctx, topic, m.consumerGroup, messageID); err != nil {
		log.Errorf("failed to acknowledge async handler result", err)
		return
	}
	log.Debug("async handler succeeded")
}
