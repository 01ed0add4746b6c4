package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultRegionName identifies the region when no override is provided.
	DefaultRegionName = "region"
	// DefaultHTTPAddr is where the operational HTTP endpoints and the console listen.
	DefaultHTTPAddr = ":9370"
	// DefaultGRPCAddr is where the parameter service listens. Empty disables gRPC.
	DefaultGRPCAddr = ":9371"
	// DefaultStepHz is the external frame rate driving Simulate.
	DefaultStepHz = 55.0

	// DefaultDumpWindow bounds how frequently physical dumps may be requested.
	DefaultDumpWindow = time.Minute
	// DefaultDumpBurst sets how many dump requests may be made per window.
	DefaultDumpBurst = 1

	// DefaultConsoleTuneInterval spaces out parameter changes from one console connection.
	DefaultConsoleTuneInterval = 250 * time.Millisecond

	// DefaultLogLevel controls verbosity for daemon logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "physics.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultParamSnapshotInterval controls how often operator parameter overrides are persisted.
	DefaultParamSnapshotInterval = 30 * time.Second
)

// GRPC authentication modes.
const (
	GRPCAuthModeNone         = "none"
	GRPCAuthModeSharedSecret = "shared_secret"
)

// Config captures all runtime tunables for the physics daemon.
type Config struct {
	RegionName            string
	HTTPAddr              string
	GRPCAddr              string
	StepHz                float64
	AdminToken            string
	DumpWindow            time.Duration
	DumpBurst             int
	ConsoleSecret         string
	ConsoleTuneInterval   time.Duration
	GRPCAuthMode          string
	GRPCSharedSecret      string
	ParamSnapshotPath     string
	ParamSnapshotInterval time.Duration
	DemoObjects           int
	Logging               LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the daemon configuration from environment variables, applying defaults
// and returning one error that lists every invalid override.
func Load() (*Config, error) {
	cfg := &Config{
		RegionName:            getString("PHYSICS_REGION", DefaultRegionName),
		HTTPAddr:              getString("PHYSICS_HTTP_ADDR", DefaultHTTPAddr),
		GRPCAddr:              DefaultGRPCAddr,
		StepHz:                DefaultStepHz,
		AdminToken:            strings.TrimSpace(os.Getenv("PHYSICS_ADMIN_TOKEN")),
		DumpWindow:            DefaultDumpWindow,
		DumpBurst:             DefaultDumpBurst,
		ConsoleSecret:         strings.TrimSpace(os.Getenv("PHYSICS_CONSOLE_SECRET")),
		ConsoleTuneInterval:   DefaultConsoleTuneInterval,
		GRPCAuthMode:          strings.ToLower(getString("PHYSICS_GRPC_AUTH_MODE", GRPCAuthModeNone)),
		GRPCSharedSecret:      strings.TrimSpace(os.Getenv("PHYSICS_GRPC_SHARED_SECRET")),
		ParamSnapshotPath:     strings.TrimSpace(os.Getenv("PHYSICS_PARAM_SNAPSHOT_PATH")),
		ParamSnapshotInterval: DefaultParamSnapshotInterval,
		Logging: LoggingConfig{
			Level:      getString("PHYSICS_LOG_LEVEL", DefaultLogLevel),
			Path:       getString("PHYSICS_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}
	if raw, ok := os.LookupEnv("PHYSICS_GRPC_ADDR"); ok {
		cfg.GRPCAddr = strings.TrimSpace(raw)
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("PHYSICS_STEP_HZ")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PHYSICS_STEP_HZ must be a positive number, got %q", raw))
		} else {
			cfg.StepHz = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PHYSICS_DUMP_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("PHYSICS_DUMP_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.DumpWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PHYSICS_DUMP_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PHYSICS_DUMP_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.DumpBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PHYSICS_CONSOLE_TUNE_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("PHYSICS_CONSOLE_TUNE_INTERVAL must be a non-negative duration, got %q", raw))
		} else {
			cfg.ConsoleTuneInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PHYSICS_PARAM_SNAPSHOT_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("PHYSICS_PARAM_SNAPSHOT_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.ParamSnapshotInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PHYSICS_DEMO_OBJECTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("PHYSICS_DEMO_OBJECTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.DemoObjects = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PHYSICS_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PHYSICS_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PHYSICS_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("PHYSICS_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PHYSICS_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("PHYSICS_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PHYSICS_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("PHYSICS_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	switch cfg.GRPCAuthMode {
	case GRPCAuthModeNone:
	case GRPCAuthModeSharedSecret:
		if cfg.GRPCSharedSecret == "" {
			problems = append(problems, "PHYSICS_GRPC_SHARED_SECRET is required when PHYSICS_GRPC_AUTH_MODE=shared_secret")
		}
	default:
		problems = append(problems, fmt.Sprintf("PHYSICS_GRPC_AUTH_MODE must be %q or %q, got %q", GRPCAuthModeNone, GRPCAuthModeSharedSecret, cfg.GRPCAuthMode))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
