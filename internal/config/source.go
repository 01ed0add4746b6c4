package config

import (
	"os"
	"strconv"
	"strings"
)

// Source supplies named settings that the physics scene reads once while initialising.
type Source interface {
	Contains(name string) bool
	GetString(name, fallback string) string
	GetBool(name string, fallback bool) bool
	GetFloat(name string, fallback float64) float64
	GetInt(name string, fallback int) int
}

// MapSource is an in-memory Source keyed case-insensitively.
type MapSource map[string]string

// NewMapSource copies the provided settings into a MapSource.
func NewMapSource(values map[string]string) MapSource {
	source := make(MapSource, len(values))
	for key, value := range values {
		source[strings.ToLower(key)] = value
	}
	return source
}

func (m MapSource) lookup(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	value, ok := m[strings.ToLower(name)]
	return strings.TrimSpace(value), ok
}

// Contains reports whether the setting is present.
func (m MapSource) Contains(name string) bool {
	_, ok := m.lookup(name)
	return ok
}

// GetString returns the raw setting or the fallback.
func (m MapSource) GetString(name, fallback string) string {
	return lookupString(m.lookup, name, fallback)
}

// GetBool parses the setting as a boolean.
func (m MapSource) GetBool(name string, fallback bool) bool {
	return lookupBool(m.lookup, name, fallback)
}

// GetFloat parses the setting as a float.
func (m MapSource) GetFloat(name string, fallback float64) float64 {
	return lookupFloat(m.lookup, name, fallback)
}

// GetInt parses the setting as an integer.
func (m MapSource) GetInt(name string, fallback int) int {
	return lookupInt(m.lookup, name, fallback)
}

// EnvSource reads settings from environment variables named Prefix + upper-cased setting name.
type EnvSource struct {
	Prefix string
}

// DefaultEnvPrefix is used by the daemon for simulator settings such as PHYSICS_SIM_GRAVITY.
const DefaultEnvPrefix = "PHYSICS_SIM_"

func (e EnvSource) lookup(name string) (string, bool) {
	value, ok := os.LookupEnv(e.Prefix + strings.ToUpper(name))
	return strings.TrimSpace(value), ok
}

// Contains reports whether the environment variable is set.
func (e EnvSource) Contains(name string) bool {
	_, ok := e.lookup(name)
	return ok
}

// GetString returns the raw setting or the fallback.
func (e EnvSource) GetString(name, fallback string) string {
	return lookupString(e.lookup, name, fallback)
}

// GetBool parses the setting as a boolean.
func (e EnvSource) GetBool(name string, fallback bool) bool {
	return lookupBool(e.lookup, name, fallback)
}

// GetFloat parses the setting as a float.
func (e EnvSource) GetFloat(name string, fallback float64) float64 {
	return lookupFloat(e.lookup, name, fallback)
}

// GetInt parses the setting as an integer.
func (e EnvSource) GetInt(name string, fallback int) int {
	return lookupInt(e.lookup, name, fallback)
}

type lookupFunc func(name string) (string, bool)

func lookupString(lookup lookupFunc, name, fallback string) string {
	if value, ok := lookup(name); ok && value != "" {
		return value
	}
	return fallback
}

// Malformed values fall back silently; the settings come from hand-edited files.
func lookupBool(lookup lookupFunc, name string, fallback bool) bool {
	value, ok := lookup(name)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func lookupFloat(lookup lookupFunc, name string, fallback float64) float64 {
	value, ok := lookup(name)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func lookupInt(lookup lookupFunc, name string, fallback int) int {
	value, ok := lookup(name)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// Layered consults its sources in order; the first one containing a setting wins.
type Layered []Source

func (l Layered) pick(name string) Source {
	for _, source := range l {
		if source != nil && source.Contains(name) {
			return source
		}
	}
	return nil
}

// Contains reports whether any layer holds the setting.
func (l Layered) Contains(name string) bool {
	return l.pick(name) != nil
}

// GetString returns the setting from the first layer holding it.
func (l Layered) GetString(name, fallback string) string {
	if source := l.pick(name); source != nil {
		return source.GetString(name, fallback)
	}
	return fallback
}

// GetBool returns the setting from the first layer holding it.
func (l Layered) GetBool(name string, fallback bool) bool {
	if source := l.pick(name); source != nil {
		return source.GetBool(name, fallback)
	}
	return fallback
}

// GetFloat returns the setting from the first layer holding it.
func (l Layered) GetFloat(name string, fallback float64) float64 {
	if source := l.pick(name); source != nil {
		return source.GetFloat(name, fallback)
	}
	return fallback
}

// GetInt returns the setting from the first layer holding it.
func (l Layered) GetInt(name string, fallback int) int {
	if source := l.pick(name); source != nil {
		return source.GetInt(name, fallback)
	}
	return fallback
}
