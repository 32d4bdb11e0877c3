package eventbus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aire-platform/eventbus/internal/config"
	"github.com/aire-platform/eventbus/internal/eventbus"
	"github.com/aire-platform/eventbus/internal/logging"
)

func TestCreate_RedisSectionPresent_BuildsRedisBus(t *testing.T) {
	r := eventbus.NewRegistry()
	cfg := config.Map{
		"redis": map[string]any{"host": "localhost", "port": 6379},
	}

	bus, err := r.Create(cfg, "nlu", "", logging.New(logging.Config{}))
	require.NoError(t, err)
	assert.NotNil(t, bus)
}

func TestCreate_ConnectionURLWithRedisScheme_BuildsRedisBus(t *testing.T) {
	r := eventbus.NewRegistry()
	cfg := config.Map{"connection_url": "redis://localhost:6379/0"}

	bus, err := r.Create(cfg, "nlu", "", logging.New(logging.Config{}))
	require.NoError(t, err)
	assert.NotNil(t, bus)
}

func TestCreate_NoDetectableType_DefaultsToRedis(t *testing.T) {
	r := eventbus.NewRegistry()

	bus, err := r.Create(config.Map{}, "nlu", "", logging.New(logging.Config{}))
	require.NoError(t, err)
	assert.NotNil(t, bus)
}

func TestCreate_UnknownExplicitType_ReturnsError(t *testing.T) {
	r := eventbus.NewRegistry()
	_, err := r.Create(config.Map{}, "nlu", "kafka", logging.New(logging.Config{}))
	assert.Error(t, err)
}

func TestCreate_MissingContractsDir_YieldsZeroSchemasNoError(t *testing.T) {
	r := eventbus.NewRegistry()
	cfg := config.Map{
		"redis":         map[string]any{"host": "localhost", "port": 6379},
		"contracts_dir": "/does/not/exist",
	}

	_, err := r.Create(cfg, "nlu", "redis", logging.New(logging.Config{}))
	require.NoError(t, err, "glob on a missing directory yields zero matches, not an error")
}
