package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcookie777/pizza-api/pkg/index"
)

func lookup(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookup(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, BackendBadger, cfg.StoreBackend)
	assert.Equal(t, index.DefaultConfig(), cfg.Index)
	assert.Equal(t, 24*time.Hour, cfg.BaselineLag)
	assert.Equal(t, 15*time.Minute, cfg.RollupInterval)
	assert.Equal(t, 48*time.Hour, cfg.RollupLookback)
	assert.Zero(t, cfg.Retention)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"PORT":               "9090",
		"STORAGE_BACKEND":    "Memory",
		"INDEX_SCALE_BASE":   "0",
		"INDEX_SCALE_FACTOR": "1",
		"INDEX_FRESHNESS":    "45m",
		"RETENTION":          "720h",
		"CORS_ORIGINS":       "https://a.example, https://b.example",
		"LOG_JSON":           "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, index.Scale{Base: 0, Factor: 1}, cfg.Index.Scale)
	assert.Equal(t, 45*time.Minute, cfg.Index.FreshnessWindow)
	assert.Equal(t, 720*time.Hour, cfg.Retention)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.LogJSON)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{name: "bad duration", vars: map[string]string{"INDEX_FRESHNESS": "soon"}},
		{name: "bad float", vars: map[string]string{"INDEX_SCALE_FACTOR": "lots"}},
		{name: "non-positive factor", vars: map[string]string{"INDEX_SCALE_FACTOR": "0"}},
		{name: "unknown backend", vars: map[string]string{"STORAGE_BACKEND": "mongo"}},
		{name: "postgres without dsn", vars: map[string]string{"STORAGE_BACKEND": "postgres"}},
		{name: "supabase without key", vars: map[string]string{"STORAGE_BACKEND": "supabase", "SUPABASE_URL": "https://x.supabase.co"}},
		{name: "zero rollup interval", vars: map[string]string{"ROLLUP_INTERVAL": "0s"}},
		{name: "bad port", vars: map[string]string{"PORT": "http"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(lookup(tt.vars))
			assert.Error(t, err)
		})
	}
}
