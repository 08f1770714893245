package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/rcookie777/pizza-api/pkg/index"
)

// Config is the runtime configuration read from the environment
type Config struct {
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogJSON  bool

	StoreBackend string `validate:"oneof=memory badger postgres supabase"`
	DataDir      string
	MaxMemoryMB  int64 `validate:"gte=0"`

	DatabaseURL            string `validate:"required_if=StoreBackend postgres"`
	SupabaseURL            string `validate:"required_if=StoreBackend supabase"`
	SupabaseServiceRoleKey string `validate:"required_if=StoreBackend supabase"`

	// CatalogFile overrides the built-in establishment list when set
	CatalogFile string

	Index       index.Config
	BaselineLag time.Duration `validate:"gte=0"`

	RollupInterval time.Duration `validate:"gt=0"`
	RollupLookback time.Duration `validate:"gt=0"`

	// Retention of raw measurements (0 = keep forever)
	Retention time.Duration `validate:"gte=0"`

	CORSOrigins []string
}

// Load reads a .env file if present and then the environment.
// Variables already set in the environment win over .env values.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}

	cfg := &Config{
		Port:                   e.str("PORT", DefaultPort),
		LogLevel:               strings.ToLower(e.str("LOG_LEVEL", DefaultLogLevel)),
		LogJSON:                e.bool("LOG_JSON", false),
		StoreBackend:           strings.ToLower(e.str("STORAGE_BACKEND", DefaultStoreBackend)),
		DataDir:                e.str("DATA_DIR", DefaultDataDir),
		MaxMemoryMB:            e.int64("BADGER_MAX_MEMORY_MB", DefaultMaxMemoryMB),
		DatabaseURL:            e.str("DATABASE_URL", ""),
		SupabaseURL:            e.str("SUPABASE_URL", ""),
		SupabaseServiceRoleKey: e.str("SUPABASE_SERVICE_ROLE_KEY", ""),
		CatalogFile:            e.str("CATALOG_FILE", ""),
		Index: index.Config{
			Scale: index.Scale{
				Base:   e.float("INDEX_SCALE_BASE", index.DefaultScaleBase),
				Factor: e.float("INDEX_SCALE_FACTOR", index.DefaultScaleFactor),
			},
			FreshnessWindow: e.duration("INDEX_FRESHNESS", index.DefaultFreshnessWindow),
		},
		BaselineLag:    e.duration("INDEX_BASELINE_LAG", DefaultBaselineLag),
		RollupInterval: e.duration("ROLLUP_INTERVAL", DefaultRollupInterval),
		RollupLookback: e.duration("ROLLUP_LOOKBACK", DefaultRollupLookback),
		Retention:      e.duration("RETENTION", 0),
		CORSOrigins:    e.list("CORS_ORIGINS", []string{"*"}),
	}

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Index.Scale.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Index.FreshnessWindow <= 0 {
		return nil, fmt.Errorf("invalid config: INDEX_FRESHNESS must be positive")
	}

	return cfg, nil
}

// env reads typed values and collects parse errors
type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func (e *env) int64(key string, def int64) int64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return f
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

func (e *env) list(key string, def []string) []string {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
