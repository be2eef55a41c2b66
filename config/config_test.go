package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 300, cfg.RateLimitRequests)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 3, cfg.WorkerConcurrency)
	assert.Equal(t, 100, cfg.RetentionWindow)
	require.NoError(t, cfg.Validate())
}

func TestNew_AppliesOptions(t *testing.T) {
	cfg := New(
		WithDataDir("/data/docvec"),
		WithEmbeddingModel("custom-model"),
		WithRateLimit(30*time.Second, 10),
		WithWorkerConcurrency(8),
	)

	assert.Equal(t, "/data/docvec", cfg.DataDir)
	assert.Equal(t, "custom-model", cfg.EmbeddingModel)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 10, cfg.RateLimitRequests)
	assert.Equal(t, 8, cfg.WorkerConcurrency)
}

func TestNormalize_AddsV1Suffix(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{"bare host", "http://localhost:11434", "http://localhost:11434/v1"},
		{"trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"already suffixed", "http://localhost:11434/v1", "http://localhost:11434/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New(WithEmbeddingHost(tt.host))
			cfg.Normalize()
			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"empty embedding host", func(c *Config) { c.EmbeddingHost = "" }},
		{"empty embedding model", func(c *Config) { c.EmbeddingModel = "" }},
		{"zero cache ttl", func(c *Config) { c.CacheTTL = 0 }},
		{"zero rate limit", func(c *Config) { c.RateLimitRequests = 0 }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"max batch below batch", func(c *Config) { c.MaxBatchSize = c.BatchSize - 1 }},
		{"negative batch delay", func(c *Config) { c.BatchDelay = -time.Second }},
		{"zero workers", func(c *Config) { c.WorkerConcurrency = 0 }},
		{"zero stall interval", func(c *Config) { c.StallInterval = 0 }},
		{"negative retention", func(c *Config) { c.RetentionWindow = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
