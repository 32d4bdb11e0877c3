// Package service is the reusable service-lifecycle skeleton (C8): it
// sequences configuration loading, event bus construction, business
// component initialization, and subscription setup the same way for every
// microservice in the system, so each service only implements the three
// Hooks methods that are actually specific to it.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/aire-platform/eventbus/internal/config"
	"github.com/aire-platform/eventbus/internal/eventbus"
	"github.com/aire-platform/eventbus/internal/logging"
	"github.com/aire-platform/eventbus/internal/subscription"
)

// Hooks is what a concrete service implements. Manager calls these in a
// fixed order during Start; none of them are called concurrently with
// each other.
type Hooks interface {
	// ServiceName identifies the service for configuration lookup and
	// logging.
	ServiceName() string

	// InitializeBusinessComponents sets up whatever the service's own
	// logic needs (clients, caches, model handles) before subscriptions
	// start delivering messages. bus is the event bus Manager already
	// constructed from configuration, handed down so business components
	// that need to publish don't have to build their own.
	InitializeBusinessComponents(ctx context.Context, bus eventbus.Bus) error

	// MessageHandlers returns the full set of handlers this service
	// knows how to run, keyed by topic. Manager only subscribes to the
	// topics named in the service's own configuration; a topic present
	// here but not configured for subscription is simply never wired up.
	MessageHandlers() map[string]subscription.HandlerSpec
}

// overrides holds the optional consumer_group/consumer_name/debug_mode
// values a caller can pin before Start, taking precedence over whatever
// the configuration file says.
type overrides struct {
	consumerGroup *string
	consumerName  *string
	debugMode     *bool
}

// Manager runs one service's lifecycle against the shared event bus
// infrastructure.
type Manager struct {
	hooks      Hooks
	fullConfig config.Map
	busFactory *eventbus.Registry
	log        logging.Logger

	mu        sync.Mutex
	overrides overrides
	running   bool

	bus    eventbus.Bus
	subMgr *subscription.Manager
}

// New builds a Manager. fullConfig is the entire loaded configuration
// tree (as returned by config.Load); Manager extracts the service's own
// section and the shared event_bus/logging sections itself via
// config.ForService.
func New(hooks Hooks, fullConfig config.Map, busFactory *eventbus.Registry, log logging.Logger) *Manager {
	return &Manager{
		hooks:      hooks,
		fullConfig: fullConfig,
		busFactory: busFactory,
		log:        log,
	}
}

// SetConsumerConfig overrides the consumer group, consumer name, and/or
// debug mode that would otherwise come from configuration. Pass nil for
// any value that should still come from configuration.
func (m *Manager) SetConsumerConfig(consumerGroup, consumerName *string, debugMode *bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if consumerGroup != nil {
		m.overrides.consumerGroup = consumerGroup
	}
	if consumerName != nil {
		m.overrides.consumerName = consumerName
	}
	if debugMode != nil {
		m.overrides.debugMode = debugMode
	}
}

// Start sequences configuration, event bus construction, business
// component initialization, and subscription setup, in that order. On any
// failure it returns the error without partially tearing down what
// already succeeded — callers should treat a failed Start as fatal and
// exit.
func (m *Manager) Start(ctx context.Context) error {
	serviceName := m.hooks.ServiceName()
	log := m.log.With("service", serviceName)

	svcCfg := config.ForService(m.fullConfig, serviceName)

	eventBusCfg, ok := asConfigMap(svcCfg["event_bus"])
	if !ok || len(eventBusCfg) == 0 {
		return fmt.Errorf("service %s: event bus configuration is required", serviceName)
	}

	bus, err := m.busFactory.Create(eventBusCfg, serviceName, "", log)
	if err != nil {
		return fmt.Errorf("service %s: failed to initialize event bus: %w", serviceName, err)
	}
	log.Debug("initialized event bus")

	if err := m.hooks.InitializeBusinessComponents(ctx, bus); err != nil {
		return fmt.Errorf("service %s: failed to initialize business components: %w", serviceName, err)
	}

	subCfg := m.subscriptionConfig(svcCfg, serviceName)
	log.With("topics", subCfg.inputTopics).With("debug_mode", subCfg.debugMode).Debug("setting up subscriptions")

	registry := subscription.NewRegistry()
	handlers := m.hooks.MessageHandlers()
	for _, topic := range subCfg.inputTopics {
		spec, ok := handlers[topic]
		if !ok {
			log.With("topic", topic).Warn("no handler found for topic")
			continue
		}
		registry.RegisterSpec(topic, spec)
	}

	subMgr := subscription.NewManager(bus, registry, subCfg.consumerGroup, subCfg.consumerName, serviceName, subCfg.debugMode, log)
	if err := subMgr.SetupSubscriptions(ctx); err != nil {
		return fmt.Errorf("service %s: failed to set up subscriptions: %w", serviceName, err)
	}

	m.mu.Lock()
	m.bus = bus
	m.subMgr = subMgr
	m.running = true
	m.mu.Unlock()

	log.Debug("service started successfully")
	return nil
}

// Stop marks the service as no longer running and joins every
// subscription goroutine via the underlying Bus's Stop.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.running = false
	bus := m.bus
	m.mu.Unlock()

	if bus == nil {
		return nil
	}

	m.log.With("service", m.hooks.ServiceName()).Debug("stopping service")
	return bus.Stop(ctx)
}

// IsRunning reports whether Start has completed successfully and Stop has
// not yet been called.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SubscribedTopics returns the topics this service actually wired up a
// subscription for.
func (m *Manager) SubscribedTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subMgr == nil {
		return nil
	}
	return m.subMgr.RegisteredTopics()
}

type subscriptionConfig struct {
	inputTopics   []string
	consumerGroup string
	consumerName  string
	debugMode     bool
}

func (m *Manager) subscriptionConfig(svcCfg config.Map, serviceName string) subscriptionConfig {
	m.mu.Lock()
	defer m.mu.Unlock()

	topicsSection, _ := asConfigMap(svcCfg["topics"])
	inputTopics := stringSlice(topicsSection["subscribe"])

	consumerGroup := fmt.Sprintf("%s-group", serviceName)
	if v, ok := svcCfg["consumer_group"].(string); ok && v != "" {
		consumerGroup = v
	}
	if m.overrides.consumerGroup != nil {
		consumerGroup = *m.overrides.consumerGroup
	}

	consumerName := fmt.Sprintf("%s-worker", serviceName)
	if v, ok := svcCfg["consumer_name"].(string); ok && v != "" {
		consumerName = v
	}
	if m.overrides.consumerName != nil {
		consumerName = *m.overrides.consumerName
	}

	debugMode, _ := svcCfg["debug_mode"].(bool)
	if m.overrides.debugMode != nil {
		debugMode = *m.overrides.debugMode
	}

	return subscriptionConfig{
		inputTopics:   inputTopics,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
		debugMode:     debugMode,
	}
}

func asConfigMap(v any) (config.Map, bool) {
	switch t := v.(type) {
	case config.Map:
		return t, true
	case map[string]any:
		return config.Map(t), true
	default:
		return nil, false
	}
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
