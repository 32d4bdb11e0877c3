package eventbus

import (
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aire-platform/eventbus/internal/config"
	"github.com/aire-platform/eventbus/internal/logging"
)

// Factory builds a Bus from a service's event_bus configuration section.
type Factory interface {
	CreateBus(cfg config.Map, serviceName string, log logging.Logger) (Bus, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(cfg config.Map, serviceName string, log logging.Logger) (Bus, error)

func (f FactoryFunc) CreateBus(cfg config.Map, serviceName string, log logging.Logger) (Bus, error) {
	return f(cfg, serviceName, log)
}

// Registry maps a bus type identifier ("redis") to the Factory that builds
// it, and can auto-detect the type from a configuration section when the
// caller doesn't pin one down.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a Registry with the redis factory already registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("redis", FactoryFunc(createRedisBus))
	return r
}

// Register adds or replaces the factory for busType.
func (r *Registry) Register(busType string, factory Factory) {
	r.factories[busType] = factory
}

// Create builds a Bus for serviceName using busType's factory, or the
// auto-detected type when busType is empty.
func (r *Registry) Create(cfg config.Map, serviceName, busType string, log logging.Logger) (Bus, error) {
	if busType == "" {
		busType = r.detectBusType(cfg, log)
	}
	factory, ok := r.factories[busType]
	if !ok {
		return nil, fmt.Errorf("no factory registered for event bus type: %s", busType)
	}
	return factory.CreateBus(cfg, serviceName, log)
}

// detectBusType mirrors the original's detection order: an explicit
// "redis" section wins, then a connection_url with a redis/rediss scheme,
// and otherwise it falls back to redis with a warning rather than erroring.
func (r *Registry) detectBusType(cfg config.Map, log logging.Logger) string {
	if _, ok := cfg["redis"]; ok {
		return "redis"
	}

	if raw, ok := cfg["connection_url"].(string); ok && raw != "" {
		if parsed, err := url.Parse(raw); err == nil {
			switch parsed.Scheme {
			case "redis", "rediss":
				return "redis"
			}
		}
	}

	log.Warn("could not auto-detect event bus type from configuration, defaulting to redis")
	return "redis"
}

func createRedisBus(cfg config.Map, serviceName string, log logging.Logger) (Bus, error) {
	var redisCfg map[string]any
	switch t := cfg["redis"].(type) {
	case map[string]any:
		redisCfg = t
	case config.Map:
		redisCfg = t
	}

	host := stringOr(redisCfg["host"], "localhost")
	port := intOr(redisCfg["port"], 6379)
	db := intOr(redisCfg["db"], 0)
	password := stringOr(redisCfg["password"], "")
	streamPrefix := stringOr(cfg["stream_prefix"], "ai-re")
	maxLen := int64(intOr(cfg["max_stream_len"], 10000))

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	var validator *ContractValidator
	if dir := stringOr(cfg["contracts_dir"], ""); dir != "" {
		v, err := NewContractValidator(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize contract validator: %w", err)
		}
		validator = v
	}

	log.With("service", serviceName).With("host", host).With("port", port).
		Debug("created redis event bus")

	return NewRedisBus(client, validator, streamPrefix, maxLen, log), nil
}

func stringOr(v any, fallback string) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}

func intOr(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	default:
		return fallback
	}
}
