package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aire-platform/eventbus/internal/config"
	"github.com/aire-platform/eventbus/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_MissingFile_ReturnsEmptyMapNoError(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), logging.New(logging.Config{}))
	require.NoError(t, err)
	assert.Empty(t, cfg)
}

func TestLoad_ResolvesEnvVar_NoDefault(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis.internal")
	path := writeYAML(t, "event_bus:\n  redis:\n    host: ${REDIS_HOST}\n")

	cfg, err := config.Load(path, logging.New(logging.Config{}))
	require.NoError(t, err)

	bus := cfg["event_bus"].(config.Map)
	redis := bus["redis"].(config.Map)
	assert.Equal(t, "redis.internal", redis["host"])
}

func TestLoad_ResolvesEnvVar_FallsBackToDefault(t *testing.T) {
	os.Unsetenv("REDIS_PORT")
	path := writeYAML(t, "event_bus:\n  redis:\n    port: ${REDIS_PORT:6379}\n")

	cfg, err := config.Load(path, logging.New(logging.Config{}))
	require.NoError(t, err)

	bus := cfg["event_bus"].(config.Map)
	redis := bus["redis"].(config.Map)
	assert.Equal(t, 6379, redis["port"])
}

func TestLoad_ResolvesEnvVar_DashDefaultFormAlsoWorks(t *testing.T) {
	os.Unsetenv("DEBUG_MODE")
	path := writeYAML(t, "service:\n  debug_mode: ${DEBUG_MODE:-false}\n")

	cfg, err := config.Load(path, logging.New(logging.Config{}))
	require.NoError(t, err)

	service := cfg["service"].(config.Map)
	assert.Equal(t, false, service["debug_mode"])
}

func TestLoad_CoercesBooleanCaseInsensitively(t *testing.T) {
	path := writeYAML(t, "service:\n  debug_mode: \"True\"\n")

	cfg, err := config.Load(path, logging.New(logging.Config{}))
	require.NoError(t, err)

	service := cfg["service"].(config.Map)
	assert.Equal(t, true, service["debug_mode"])
}

func TestLoad_LeavesNonScalarStringsAlone(t *testing.T) {
	path := writeYAML(t, "service:\n  name: nlu-service\n")

	cfg, err := config.Load(path, logging.New(logging.Config{}))
	require.NoError(t, err)

	service := cfg["service"].(config.Map)
	assert.Equal(t, "nlu-service", service["name"])
}

func TestForService_MergesParentSections_ServiceKeysWin(t *testing.T) {
	path := writeYAML(t, ""+
		"event_bus:\n"+
		"  redis:\n"+
		"    host: shared-host\n"+
		"    port: 6379\n"+
		"logging:\n"+
		"  level: info\n"+
		"nlu:\n"+
		"  consumer_group: nlu_group\n"+
		"  event_bus:\n"+
		"    redis:\n"+
		"      host: nlu-only-host\n")

	cfg, err := config.Load(path, logging.New(logging.Config{}))
	require.NoError(t, err)

	svc := config.ForService(cfg, "nlu")
	assert.Equal(t, "nlu_group", svc["consumer_group"])

	bus := svc["event_bus"].(map[string]any)
	redis := bus["redis"].(config.Map)
	assert.Equal(t, "nlu-only-host", redis["host"], "service-level override wins")

	logSection := svc["logging"].(map[string]any)
	assert.Equal(t, "info", logSection["level"], "parent logging section is inherited")
}

func TestForService_UnknownService_StillGetsParentSections(t *testing.T) {
	path := writeYAML(t, "event_bus:\n  redis:\n    host: shared-host\n")

	cfg, err := config.Load(path, logging.New(logging.Config{}))
	require.NoError(t, err)

	svc := config.ForService(cfg, "unknown")
	bus := svc["event_bus"].(map[string]any)
	assert.Equal(t, "shared-host", bus["redis"].(config.Map)["host"])
}
