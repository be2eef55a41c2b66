package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for the ingestion pipeline and its services.
// All fields are explicit and typed; there are no open option maps.
type Config struct {
	// DataDir is the BadgerDB database directory.
	DataDir string

	// ListenAddr is the HTTP listen address for the embedding and progress API.
	// Example: ":8090"
	ListenAddr string

	// EmbeddingHost is the base URL for the inference backend API.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "nomic-embed-text", "text-embedding-3-small"
	EmbeddingModel string

	// CacheTTL is how long memoized embeddings stay valid in the cache store.
	// Default: 24h
	CacheTTL time.Duration

	// RateLimitWindow is the fixed window over which embedding requests are counted.
	// Default: 1m
	RateLimitWindow time.Duration

	// RateLimitRequests is the maximum number of embedding requests per window.
	// Requests beyond the cap are rejected, not queued. Default: 300
	RateLimitRequests int

	// BatchSize is the default number of texts embedded per batch. Default: 50
	BatchSize int

	// MaxBatchSize is the hard cap on texts per batch call. Default: 1000
	MaxBatchSize int

	// BatchDelay is the fixed pause inserted between batches to avoid
	// saturating the inference backend. Default: 100ms
	BatchDelay time.Duration

	// WorkerConcurrency is the number of concurrent document workers. Default: 3
	WorkerConcurrency int

	// StallInterval is how long an active job may go without a progress update
	// before it is marked stalled. Default: 30s
	StallInterval time.Duration

	// RetentionWindow is how many terminal (completed/failed) jobs are kept
	// for audit before eviction. Default: 100
	RetentionWindow int
}

// Option is a functional option for configuring a Config.
type Option func(*Config)

// WithDataDir sets the database directory.
func WithDataDir(dir string) Option {
	return func(c *Config) {
		c.DataDir = dir
	}
}

// WithListenAddr sets the HTTP listen address.
func WithListenAddr(addr string) Option {
	return func(c *Config) {
		c.ListenAddr = addr
	}
}

// WithEmbeddingHost sets the inference backend host URL.
func WithEmbeddingHost(host string) Option {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) Option {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithCacheTTL sets the embedding cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.CacheTTL = ttl
	}
}

// WithRateLimit sets the rate-limit window and request cap.
func WithRateLimit(window time.Duration, requests int) Option {
	return func(c *Config) {
		c.RateLimitWindow = window
		c.RateLimitRequests = requests
	}
}

// WithBatchSize sets the default embedding batch size.
func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// WithBatchDelay sets the fixed delay between embedding batches.
func WithBatchDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.BatchDelay = delay
	}
}

// WithWorkerConcurrency sets the document worker pool size.
func WithWorkerConcurrency(n int) Option {
	return func(c *Config) {
		c.WorkerConcurrency = n
	}
}

// WithStallInterval sets the job stall threshold.
func WithStallInterval(d time.Duration) Option {
	return func(c *Config) {
		c.StallInterval = d
	}
}

// WithRetentionWindow sets how many terminal jobs are retained for audit.
func WithRetentionWindow(n int) Option {
	return func(c *Config) {
		c.RetentionWindow = n
	}
}

// Default returns a Config with sensible defaults for local development.
func Default() *Config {
	return &Config{
		DataDir:           "./data",
		ListenAddr:        ":8090",
		EmbeddingHost:     "http://localhost:11434/v1",
		EmbeddingModel:    "nomic-embed-text",
		CacheTTL:          24 * time.Hour,
		RateLimitWindow:   time.Minute,
		RateLimitRequests: 300,
		BatchSize:         50,
		MaxBatchSize:      1000,
		BatchDelay:        100 * time.Millisecond,
		WorkerConcurrency: 3,
		StallInterval:     30 * time.Second,
		RetentionWindow:   100,
	}
}

// New creates a Config with defaults and applies the provided options.
func New(opts ...Option) *Config {
	cfg := Default()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// The embedding host gains a /v1 suffix if missing, which is required by
// most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
		c.EmbeddingHost = c.EmbeddingHost + "/v1"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.DataDir == "" {
		return errors.New("config: DataDir is required")
	}
	if c.EmbeddingHost == "" {
		return errors.New("config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("config: EmbeddingModel is required")
	}
	if c.CacheTTL <= 0 {
		return errors.New("config: CacheTTL must be positive")
	}
	if c.RateLimitWindow <= 0 || c.RateLimitRequests <= 0 {
		return errors.New("config: rate limit window and requests must be positive")
	}
	if c.BatchSize < 1 {
		return errors.New("config: BatchSize must be at least 1")
	}
	if c.MaxBatchSize < c.BatchSize {
		return errors.New("config: MaxBatchSize must be >= BatchSize")
	}
	if c.BatchDelay < 0 {
		return errors.New("config: BatchDelay cannot be negative")
	}
	if c.WorkerConcurrency < 1 {
		return errors.New("config: WorkerConcurrency must be at least 1")
	}
	if c.StallInterval <= 0 {
		return errors.New("config: StallInterval must be positive")
	}
	if c.RetentionWindow < 0 {
		return errors.New("config: RetentionWindow cannot be negative")
	}
	return nil
}
