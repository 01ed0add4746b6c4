// Package params holds the registry of named simulation tunables.
package params

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"regionsim/physics/internal/config"
)

// ErrNotFound is returned when a parameter name is not registered.
var ErrNotFound = errors.New("parameter not found")

// Boolean parameters travel as floats so they fit the engine parameter block.
const (
	NumericTrue  = 1.0
	NumericFalse = 0.0
)

// BoolParam encodes a boolean as a numeric parameter value.
func BoolParam(b bool) float64 {
	if b {
		return NumericTrue
	}
	return NumericFalse
}

// ParamBool decodes a numeric parameter value; any non-zero value is true.
func ParamBool(v float64) bool {
	return v != NumericFalse
}

// ObjectSetter applies a value to one object handle. The handle may not name a
// resident object (terrain handles, objects removed mid-frame).
type ObjectSetter func(handle uint32, value float64)

// Definition describes one tunable.
type Definition struct {
	Name        string
	Description string
	Default     float64
	Getter      func() float64
	Setter      func(value float64)
	// OnObject is optional; scene-wide parameters leave it nil.
	OnObject ObjectSetter
}

// Target selects which objects a parameter change reaches.
type Target struct {
	kind   targetKind
	handle uint32
}

type targetKind uint8

const (
	targetNone targetKind = iota
	targetAll
	targetObject
)

var (
	// ApplyToNone changes only the default value.
	ApplyToNone = Target{kind: targetNone}
	// ApplyToAll changes the default and every live object.
	ApplyToAll = Target{kind: targetAll}
)

// ObjectTarget changes one specific object.
func ObjectTarget(handle uint32) Target {
	return Target{kind: targetObject, handle: handle}
}

// IsNone reports whether the target is default-only.
func (t Target) IsNone() bool { return t.kind == targetNone }

// IsAll reports whether the target reaches every live object.
func (t Target) IsAll() bool { return t.kind == targetAll }

// Handle returns the object handle for a specific-object target.
func (t Target) Handle() (uint32, bool) {
	return t.handle, t.kind == targetObject
}

func (t Target) String() string {
	switch t.kind {
	case targetAll:
		return "all"
	case targetObject:
		return strconv.FormatUint(uint64(t.handle), 10)
	default:
		return "none"
	}
}

// ParseTarget accepts "none", "all" or a decimal object handle. Empty means none.
func ParseTarget(raw string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none", "default":
		return ApplyToNone, nil
	case "all":
		return ApplyToAll, nil
	}
	handle, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return ApplyToNone, fmt.Errorf("invalid parameter target %q", raw)
	}
	return ObjectTarget(uint32(handle)), nil
}

// Table is a case-insensitive registry of parameter definitions.
type Table struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewTable constructs an empty table.
func NewTable() *Table {
	return &Table{defs: make(map[string]Definition)}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a definition. Names must be unique ignoring case.
func (t *Table) Register(def Definition) error {
	if t == nil {
		return errors.New("parameter table is nil")
	}
	k := key(def.Name)
	if k == "" {
		return errors.New("parameter name must not be empty")
	}
	if def.Getter == nil || def.Setter == nil {
		return fmt.Errorf("parameter %q requires a getter and a setter", def.Name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.defs[k]; exists {
		return fmt.Errorf("parameter %q already registered", def.Name)
	}
	t.defs[k] = def
	return nil
}

// Lookup returns the definition registered under the name.
func (t *Table) Lookup(name string) (Definition, bool) {
	if t == nil {
		return Definition{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	def, ok := t.defs[key(name)]
	return def, ok
}

// Names lists every registered name in sorted order.
func (t *Table) Names() []string {
	defs := t.List()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// List returns every definition sorted by name.
func (t *Table) List() []Definition {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defs := make([]Definition, 0, len(t.defs))
	for _, def := range t.defs {
		defs = append(defs, def)
	}
	t.mu.RUnlock()
	sort.Slice(defs, func(i, j int) bool { return key(defs[i].Name) < key(defs[j].Name) })
	return defs
}

// Get reads the current value. Unknown names report false.
func (t *Table) Get(name string) (float64, bool) {
	def, ok := t.Lookup(name)
	if !ok {
		return 0, false
	}
	return def.Getter(), true
}

// Set writes the default value through the setter.
func (t *Table) Set(name string, value float64) error {
	def, ok := t.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	def.Setter(value)
	return nil
}

// SetDefaults applies every definition's default value.
func (t *Table) SetDefaults() {
	for _, def := range t.List() {
		def.Setter(def.Default)
	}
}

// ApplyConfiguration overrides every parameter present in the source and
// returns the names that were applied.
func (t *Table) ApplyConfiguration(source config.Source) []string {
	if source == nil {
		return nil
	}
	var applied []string
	for _, def := range t.List() {
		if !source.Contains(def.Name) {
			continue
		}
		def.Setter(source.GetFloat(def.Name, def.Getter()))
		applied = append(applied, def.Name)
	}
	return applied
}
