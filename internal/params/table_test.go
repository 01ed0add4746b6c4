package params

import (
	"errors"
	"testing"

	"regionsim/physics/internal/config"
)

func newTestTable(t *testing.T) (*Table, *float64, *float64) {
	t.Helper()
	gravity := 0.0
	friction := 0.0
	table := NewTable()
	if err := table.Register(Definition{
		Name:    "Gravity",
		Default: -9.8,
		Getter:  func() float64 { return gravity },
		Setter:  func(v float64) { gravity = v },
	}); err != nil {
		t.Fatalf("register gravity: %v", err)
	}
	if err := table.Register(Definition{
		Name:     "DefaultFriction",
		Default:  0.2,
		Getter:   func() float64 { return friction },
		Setter:   func(v float64) { friction = v },
		OnObject: func(uint32, float64) {},
	}); err != nil {
		t.Fatalf("register friction: %v", err)
	}
	return table, &gravity, &friction
}

func TestRegisterRejectsDuplicatesIgnoringCase(t *testing.T) {
	table, _, _ := newTestTable(t)
	err := table.Register(Definition{
		Name:   "gravity",
		Getter: func() float64 { return 0 },
		Setter: func(float64) {},
	})
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := table.Register(Definition{Name: "Broken"}); err == nil {
		t.Fatal("expected missing accessors to fail")
	}
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	table, _, _ := newTestTable(t)
	if _, ok := table.Get("Gravityy"); ok {
		t.Fatal("expected typo to be reported as not found")
	}
	if err := table.Set("Gravityy", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetDefaultsAndConfiguration(t *testing.T) {
	table, gravity, friction := newTestTable(t)
	table.SetDefaults()
	if *gravity != -9.8 || *friction != 0.2 {
		t.Fatalf("defaults not applied: gravity=%v friction=%v", *gravity, *friction)
	}

	applied := table.ApplyConfiguration(config.NewMapSource(map[string]string{
		"GRAVITY": "-1.5",
		"Other":   "3",
	}))
	if len(applied) != 1 || applied[0] != "Gravity" {
		t.Fatalf("unexpected applied set %v", applied)
	}
	if value, ok := table.Get("gravity"); !ok || value != -1.5 {
		t.Fatalf("expected configured gravity, got %v (%v)", value, ok)
	}
}

func TestNamesAreSorted(t *testing.T) {
	table, _, _ := newTestTable(t)
	names := table.Names()
	if len(names) != 2 || names[0] != "DefaultFriction" || names[1] != "Gravity" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestParseTarget(t *testing.T) {
	cases := map[string]Target{
		"":     ApplyToNone,
		"none": ApplyToNone,
		"ALL":  ApplyToAll,
		"42":   ObjectTarget(42),
	}
	for raw, want := range cases {
		got, err := ParseTarget(raw)
		if err != nil {
			t.Fatalf("ParseTarget(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseTarget(%q) = %v, want %v", raw, got, want)
		}
	}
	if _, err := ParseTarget("everyone"); err == nil {
		t.Fatal("expected invalid target to fail")
	}
	if handle, ok := ObjectTarget(9).Handle(); !ok || handle != 9 {
		t.Fatalf("unexpected handle %d/%v", handle, ok)
	}
}

func TestBoolParamRoundTrip(t *testing.T) {
	if BoolParam(true) != NumericTrue || BoolParam(false) != NumericFalse {
		t.Fatal("unexpected bool encoding")
	}
	if !ParamBool(0.5) || ParamBool(0) {
		t.Fatal("unexpected bool decoding")
	}
}
