package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"regionsim/physics/internal/logging"
)

// ErrUnknownEngine is returned when no registered backend matches the configured name.
var ErrUnknownEngine = errors.New("no physics engine backend for name")

// Factory builds a backend. It receives the full configured name, version suffix included.
type Factory func(name string, logger *logging.Logger) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend selectable under the given prefix.
func Register(prefix string, factory Factory) {
	if factory == nil {
		panic("engine: nil factory for " + prefix)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(prefix)] = factory
}

// Registered lists every registered prefix in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prefix returns the part of an engine name that selects the backend:
// everything before the first hyphen, lower-cased.
func Prefix(name string) string {
	name = strings.TrimSpace(name)
	if idx := strings.Index(name, "-"); idx >= 0 {
		name = name[:idx]
	}
	return strings.ToLower(name)
}

// Select builds the backend registered for the name's prefix.
func Select(name string, logger *logging.Logger) (Engine, error) {
	prefix := Prefix(name)
	registryMu.RLock()
	factory, ok := registry[prefix]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnknownEngine, name, strings.Join(Registered(), ", "))
	}
	eng, err := factory(name, logger)
	if err != nil {
		return nil, fmt.Errorf("create engine %q: %w", name, err)
	}
	return eng, nil
}
