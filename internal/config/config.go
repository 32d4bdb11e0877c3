// Package config loads the hierarchical YAML configuration tree (C9),
// substitutes ${VAR}/${VAR:default}/${VAR:-default} environment references
// into every string leaf, and coerces digit-only strings to int and
// true/false (case-insensitive) to bool.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	eberrors "github.com/aire-platform/eventbus/internal/errors"
	"github.com/aire-platform/eventbus/internal/logging"
)

// Map is the generic configuration tree: a YAML document decoded into
// nested maps, slices, and scalars.
type Map map[string]any

// envVarPattern matches ${VAR}, ${VAR:default}, and ${VAR:-default}. The
// leading '-' after the colon is accepted but has no distinct meaning here
// (unlike POSIX parameter expansion, there is no "set but empty" case to
// distinguish): both forms fall back to the same default when VAR is
// unset.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::(-?)([^}]*))?\}`)

// Load reads and parses a YAML file from path, returning an empty Map (with
// a warning, not an error) if the file does not exist.
func Load(path string, log logging.Logger) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("config file not found, using empty configuration")
			return Map{}, nil
		}
		return nil, eberrors.Config(err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eberrors.Config(err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	return resolveMap(raw), nil
}

func resolveMap(m map[string]any) Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = resolveValue(v)
	}
	return out
}

func resolveValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return resolveMap(t)
	case string:
		return coerce(resolveEnvVars(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = resolveValue(item)
		}
		return out
	default:
		return v
	}
}

func resolveEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		varName, def := groups[1], groups[3]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return def
	})
}

// coerce converts digit-only strings to int and case-insensitive
// true/false to bool; anything else stays a string.
func coerce(s string) any {
	if s != "" && isDigits(s) {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ForService returns the sub-map for serviceName, merged with the
// top-level event_bus and logging sections (the service's own keys win on
// conflict).
func ForService(cfg Map, serviceName string) Map {
	service, _ := cfg[serviceName].(map[string]any)
	if service == nil {
		if m, ok := cfg[serviceName].(Map); ok {
			service = m
		}
	}
	out := make(Map, len(service)+2)
	for k, v := range service {
		out[k] = v
	}

	mergeParentSection(out, cfg, "event_bus")
	mergeParentSection(out, cfg, "logging")

	return out
}

// mergeParentSection copies cfg[section] into out[section] only for keys
// the service didn't already set itself.
func mergeParentSection(out Map, cfg Map, section string) {
	parent := asMap(cfg[section])
	if parent == nil {
		return
	}
	existing := asMap(out[section])
	merged := make(map[string]any, len(parent)+len(existing))
	for k, v := range parent {
		merged[k] = v
	}
	for k, v := range existing {
		merged[k] = v
	}
	out[section] = merged
}

func asMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case Map:
		return t
	default:
		return nil
	}
}
