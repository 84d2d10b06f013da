// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the YMM service.
type Config struct {
	Port            string
	GRPCPort        string
	DatabaseURL     string
	RedisURL        string
	CacheBackend    string // "redis" | "memory"
	UpstreamBaseURL string // fmt template taking the store hash
	SessionSecret   string
	WarmupSchedule  string // cron spec; empty disables warm-up
	Tuning          Tuning
}

// Tuning groups the engine knobs that may be overridden from YAML.
type Tuning struct {
	Walker WalkerTuning `yaml:"walker"`
	Cache  CacheTuning  `yaml:"cache"`
	Search SearchTuning `yaml:"search"`
}

type WalkerTuning struct {
	PageSize       int           `yaml:"page_size"`
	MaxPages       int           `yaml:"max_pages"`
	EnrichInterval time.Duration `yaml:"enrich_interval"`
	PageTimeout    time.Duration `yaml:"page_timeout"`
	EnrichTimeout  time.Duration `yaml:"enrich_timeout"`
}

// WalkBudget is how long a full catalog walk may take when every page
// request runs to its timeout and every product is enriched at the gate's
// pace. An enrichment call that stalls up to EnrichTimeout can still push a
// walk past it.
func (w WalkerTuning) WalkBudget() time.Duration {
	pages := time.Duration(w.MaxPages)
	return pages*w.PageTimeout + pages*time.Duration(w.PageSize)*w.EnrichInterval
}

type CacheTuning struct {
	ListTTL      time.Duration `yaml:"list_ttl"`
	AggregateTTL time.Duration `yaml:"aggregate_ttl"`
}

type SearchTuning struct {
	YearsAhead        int `yaml:"years_ahead"`
	VehicleYearsAhead int `yaml:"vehicle_years_ahead"`
}

// DefaultTuning returns the values the engine runs with when no tuning file is given.
func DefaultTuning() Tuning {
	return Tuning{
		Walker: WalkerTuning{
			PageSize:       50,
			MaxPages:       20,
			EnrichInterval: 100 * time.Millisecond,
			PageTimeout:    30 * time.Second,
			EnrichTimeout:  10 * time.Second,
		},
		Cache: CacheTuning{
			ListTTL:      300 * time.Second,
			AggregateTTL: 3600 * time.Second,
		},
		Search: SearchTuning{
			YearsAhead:        2,
			VehicleYearsAhead: 5,
		},
	}
}

// Load reads environment variables and returns a validated Config.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	backend := os.Getenv("CACHE_BACKEND")
	if backend == "" {
		backend = "redis"
	}
	if backend != "redis" && backend != "memory" {
		return nil, fmt.Errorf("CACHE_BACKEND must be redis or memory, got %q", backend)
	}

	redisURL := os.Getenv("REDIS_URL")
	if backend == "redis" && redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when CACHE_BACKEND=redis")
	}

	port := os.Getenv("YMM_PORT")
	if port == "" {
		port = "8083"
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("YMM_PORT must be numeric, got %q", port)
	}

	grpcPort := os.Getenv("YMM_GRPC_PORT")
	if grpcPort == "" {
		grpcPort = "9083"
	}

	baseURL := os.Getenv("UPSTREAM_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.bigcommerce.com/stores/%s/v3"
	}

	tuning := DefaultTuning()
	if path := os.Getenv("YMM_TUNING_FILE"); path != "" {
		if err := LoadTuning(path, &tuning); err != nil {
			return nil, err
		}
	}

	return &Config{
		Port:            port,
		GRPCPort:        grpcPort,
		DatabaseURL:     dbURL,
		RedisURL:        redisURL,
		CacheBackend:    backend,
		UpstreamBaseURL: baseURL,
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		WarmupSchedule:  os.Getenv("WARMUP_SCHEDULE"),
		Tuning:          tuning,
	}, nil
}

// LoadTuning overlays the YAML file at path onto t. Keys absent from the
// file keep their current value.
func LoadTuning(path string, t *Tuning) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(raw, t); err != nil {
		return fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	if t.Walker.PageSize < 1 || t.Walker.MaxPages < 1 {
		return fmt.Errorf("walker.page_size and walker.max_pages must be positive")
	}
	return nil
}
