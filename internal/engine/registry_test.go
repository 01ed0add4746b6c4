package engine

import (
	"errors"
	"math"
	"testing"

	"regionsim/physics/internal/logging"
)

type namedEngine struct {
	Engine
	name string
}

func (n namedEngine) Name() string { return n.name }

func TestPrefixStopsAtFirstHyphen(t *testing.T) {
	cases := map[string]string{
		"basic-1.0":       "basic",
		"BulletUnmanaged": "bulletunmanaged",
		" Test-a-b ":      "test",
		"":                "",
	}
	for name, want := range cases {
		if got := Prefix(name); got != want {
			t.Fatalf("Prefix(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSelectPassesFullNameToFactory(t *testing.T) {
	Register("registrytest", func(name string, _ *logging.Logger) (Engine, error) {
		return namedEngine{name: name}, nil
	})
	eng, err := Select("RegistryTest-2.1", logging.NewTestLogger())
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if eng.Name() != "RegistryTest-2.1" {
		t.Fatalf("unexpected engine name %q", eng.Name())
	}
}

func TestSelectUnknownEngine(t *testing.T) {
	_, err := Select("nonexistent-9", logging.NewTestLogger())
	if !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestSelectWrapsFactoryFailure(t *testing.T) {
	boom := errors.New("no native library")
	Register("brokentest", func(string, *logging.Logger) (Engine, error) { return nil, boom })
	if _, err := Select("brokentest", nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped factory error, got %v", err)
	}
}

func TestHeightfieldBilinearSample(t *testing.T) {
	field := Heightfield{
		SizeX:   2,
		SizeY:   2,
		Heights: []float64{0, 2, 4, 6},
	}
	if err := field.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if got := field.HeightAt(0.5, 0.5); math.Abs(got-3) > 1e-9 {
		t.Fatalf("expected centre height 3, got %v", got)
	}
	if got := field.HeightAt(-10, -10); got != 0 {
		t.Fatalf("expected clamped corner height 0, got %v", got)
	}
	lo, hi := field.Bounds()
	if lo != 0 || hi != 6 {
		t.Fatalf("unexpected bounds %v..%v", lo, hi)
	}
}

func TestHeightfieldValidateRejectsMismatch(t *testing.T) {
	field := Heightfield{SizeX: 3, SizeY: 3, Heights: make([]float64, 4)}
	if err := field.Validate(); err == nil {
		t.Fatal("expected sample count mismatch to fail")
	}
}
