package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PHYSICS_REGION", "PHYSICS_HTTP_ADDR", "PHYSICS_STEP_HZ", "PHYSICS_DUMP_WINDOW",
		"PHYSICS_DUMP_BURST", "PHYSICS_GRPC_AUTH_MODE", "PHYSICS_GRPC_SHARED_SECRET",
		"PHYSICS_PARAM_SNAPSHOT_INTERVAL", "PHYSICS_DEMO_OBJECTS", "PHYSICS_LOG_MAX_SIZE_MB",
		"PHYSICS_LOG_COMPRESS", "PHYSICS_CONSOLE_TUNE_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.RegionName != DefaultRegionName {
		t.Fatalf("expected default region %q, got %q", DefaultRegionName, cfg.RegionName)
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Fatalf("expected default http addr %q, got %q", DefaultHTTPAddr, cfg.HTTPAddr)
	}
	if cfg.StepHz != DefaultStepHz {
		t.Fatalf("expected default step rate %v, got %v", DefaultStepHz, cfg.StepHz)
	}
	if cfg.GRPCAuthMode != GRPCAuthModeNone {
		t.Fatalf("expected grpc auth mode none, got %q", cfg.GRPCAuthMode)
	}
	if cfg.Logging.MaxSizeMB != DefaultLogMaxSizeMB || !cfg.Logging.Compress {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PHYSICS_REGION", "sandbox")
	t.Setenv("PHYSICS_STEP_HZ", "45.5")
	t.Setenv("PHYSICS_DUMP_WINDOW", "30s")
	t.Setenv("PHYSICS_DUMP_BURST", "3")
	t.Setenv("PHYSICS_GRPC_AUTH_MODE", "shared_secret")
	t.Setenv("PHYSICS_GRPC_SHARED_SECRET", "hunter2")
	t.Setenv("PHYSICS_DEMO_OBJECTS", "4")
	t.Setenv("PHYSICS_CONSOLE_TUNE_INTERVAL", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.RegionName != "sandbox" {
		t.Fatalf("unexpected region %q", cfg.RegionName)
	}
	if cfg.StepHz != 45.5 {
		t.Fatalf("unexpected step rate %v", cfg.StepHz)
	}
	if cfg.DumpWindow != 30*time.Second || cfg.DumpBurst != 3 {
		t.Fatalf("unexpected dump limits %v/%d", cfg.DumpWindow, cfg.DumpBurst)
	}
	if cfg.GRPCAuthMode != GRPCAuthModeSharedSecret || cfg.GRPCSharedSecret != "hunter2" {
		t.Fatalf("unexpected grpc auth %q/%q", cfg.GRPCAuthMode, cfg.GRPCSharedSecret)
	}
	if cfg.DemoObjects != 4 {
		t.Fatalf("unexpected demo objects %d", cfg.DemoObjects)
	}
	if cfg.ConsoleTuneInterval != 0 {
		t.Fatalf("expected the console limit disabled, got %v", cfg.ConsoleTuneInterval)
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("PHYSICS_STEP_HZ", "-1")
	t.Setenv("PHYSICS_DUMP_WINDOW", "soon")
	t.Setenv("PHYSICS_GRPC_AUTH_MODE", "shared_secret")
	t.Setenv("PHYSICS_LOG_COMPRESS", "perhaps")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, fragment := range []string{"PHYSICS_STEP_HZ", "PHYSICS_DUMP_WINDOW", "PHYSICS_GRPC_SHARED_SECRET", "PHYSICS_LOG_COMPRESS"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected error to mention %s, got %v", fragment, err)
		}
	}
}

func TestMapSourceIsCaseInsensitive(t *testing.T) {
	source := NewMapSource(map[string]string{
		"PhysicsEngine":         "basic-1.0",
		"PhysicsLoggingEnabled": "true",
		"Gravity":               "-3.5",
		"MaxSubSteps":           "12",
		"Broken":                "nope",
	})
	if !source.Contains("physicsengine") {
		t.Fatal("expected lookup to ignore case")
	}
	if got := source.GetString("PHYSICSENGINE", "x"); got != "basic-1.0" {
		t.Fatalf("unexpected engine %q", got)
	}
	if !source.GetBool("physicsLoggingEnabled", false) {
		t.Fatal("expected bool setting to parse")
	}
	if got := source.GetFloat("gravity", 0); got != -3.5 {
		t.Fatalf("unexpected gravity %v", got)
	}
	if got := source.GetInt("maxsubsteps", 0); got != 12 {
		t.Fatalf("unexpected substeps %d", got)
	}
	if got := source.GetFloat("broken", 7); got != 7 {
		t.Fatalf("expected fallback for malformed value, got %v", got)
	}
}

func TestEnvSourceUsesPrefix(t *testing.T) {
	t.Setenv("PHYSICS_SIM_GRAVITY", "-1.25")
	source := EnvSource{Prefix: DefaultEnvPrefix}
	if !source.Contains("Gravity") {
		t.Fatal("expected prefixed variable to be visible")
	}
	if got := source.GetFloat("Gravity", 0); got != -1.25 {
		t.Fatalf("unexpected gravity %v", got)
	}
	if source.Contains("NotSet") {
		t.Fatal("did not expect unset variable")
	}
}

func TestLayeredSourcePrefersEarlierLayers(t *testing.T) {
	t.Setenv("PHYSICS_SIM_GRAVITY", "-1.25")
	t.Setenv("PHYSICS_SIM_MAXSUBSTEPS", "4")
	source := Layered{
		NewMapSource(map[string]string{"Gravity": "-2"}),
		EnvSource{Prefix: DefaultEnvPrefix},
	}
	if got := source.GetFloat("gravity", 0); got != -2 {
		t.Fatalf("expected the first layer to win, got %v", got)
	}
	if got := source.GetInt("MaxSubSteps", 0); got != 4 {
		t.Fatalf("expected fallthrough to the env layer, got %d", got)
	}
	if source.Contains("Missing") || source.GetString("Missing", "x") != "x" {
		t.Fatal("expected the fallback for an absent setting")
	}
}
