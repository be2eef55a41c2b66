// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package docvec

import (
	"context"
	"log/slog"

	"github.com/poiesic/docvec/ai"
	"github.com/poiesic/docvec/ai/openai"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/embedcache"
	"github.com/poiesic/docvec/ingestion"
	"github.com/poiesic/docvec/progress"
	"github.com/poiesic/docvec/queue"
	"github.com/poiesic/docvec/storage/badger"
	"github.com/poiesic/docvec/vectorstore"
)

// System wires the full document-vector pipeline: durable storage, the
// embedding cache service, the vector store, the job queue with its worker
// pool, and the progress broadcaster.
type System struct {
	backend    *badger.Backend
	vectorRepo *badger.VectorRepository
	jobRepo    *badger.JobRepository
	cacheStore *badger.CacheStore
	embeddings *embedcache.Service
	store      *vectorstore.Store
	queue      *queue.Queue
	pool       *queue.Pool
	events     *progress.Broadcaster
	logger     *slog.Logger
}

// SystemOption configures a System.
type SystemOption func(*systemOptions)

type systemOptions struct {
	embedder ai.Embedder
	chunks   queue.ChunkSource
	logger   *slog.Logger
}

// WithEmbedder overrides the embedding backend. Default is the
// OpenAI-compatible client pointed at the configured host.
func WithEmbedder(embedder ai.Embedder) SystemOption {
	return func(o *systemOptions) {
		o.embedder = embedder
	}
}

// WithChunkSource overrides how document files are split into chunks.
// Default is the file chunker from the ingestion package.
func WithChunkSource(chunks queue.ChunkSource) SystemOption {
	return func(o *systemOptions) {
		o.chunks = chunks
	}
}

// WithSystemLogger sets a custom logger.
// Default is slog.Default().
func WithSystemLogger(logger *slog.Logger) SystemOption {
	return func(o *systemOptions) {
		o.logger = logger
	}
}

func NewSystem(cfg *config.Config, opts ...SystemOption) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &systemOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.embedder == nil {
		embedder, err := openai.NewEmbedder(cfg.EmbeddingHost, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		options.embedder = embedder
	}
	if options.chunks == nil {
		options.chunks = ingestion.NewFileChunker()
	}

	// Open backend
	backend, err := badger.OpenBackend(cfg.DataDir, false)
	if err != nil {
		return nil, err
	}

	vectorRepo := badger.NewVectorRepository(backend)
	jobRepo := badger.NewJobRepository(backend)
	cacheStore := badger.NewCacheStore(backend)

	embeddings, err := embedcache.NewService(cacheStore, options.embedder, cfg,
		embedcache.WithLogger(options.logger))
	if err != nil {
		backend.Close()
		return nil, err
	}

	store, err := vectorstore.NewStore(vectorRepo, vectorstore.WithLogger(options.logger))
	if err != nil {
		embeddings.Release()
		backend.Close()
		return nil, err
	}

	events := progress.NewBroadcaster(options.logger)

	q, err := queue.NewQueue(jobRepo, cfg.StallInterval, cfg.RetentionWindow,
		queue.WithLogger(options.logger),
		queue.WithBroadcaster(events))
	if err != nil {
		embeddings.Release()
		backend.Close()
		return nil, err
	}

	pool, err := queue.NewPool(q, embeddings, store, options.chunks, events,
		cfg.WorkerConcurrency, cfg.BatchSize,
		queue.WithPoolLogger(options.logger))
	if err != nil {
		embeddings.Release()
		backend.Close()
		return nil, err
	}

	return &System{
		backend:    backend,
		vectorRepo: vectorRepo,
		jobRepo:    jobRepo,
		cacheStore: cacheStore,
		embeddings: embeddings,
		store:      store,
		queue:      q,
		pool:       pool,
		events:     events,
		logger:     options.logger,
	}, nil
}

// Start recovers interrupted jobs from the last run, then launches the
// stall sweeper and the worker pool.
func (s *System) Start(ctx context.Context) error {
	if err := s.queue.Recover(ctx); err != nil {
		return err
	}
	s.queue.StartSweeper(ctx)
	s.pool.Start(ctx)
	return nil
}

// Close stops workers and the sweeper, waits for in-flight jobs, and
// closes storage. Interrupted jobs are re-queued on the next Start.
func (s *System) Close() error {
	s.pool.Stop()
	s.queue.StopSweeper()
	s.embeddings.Release()

	if err := s.vectorRepo.Close(); err != nil {
		s.logger.Error("error closing vector repository", "err", err)
		return err
	}
	if err := s.jobRepo.Close(); err != nil {
		s.logger.Error("error closing job repository", "err", err)
		return err
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (s *System) Embeddings() *embedcache.Service {
	return s.embeddings
}

func (s *System) Store() *vectorstore.Store {
	return s.store
}

func (s *System) Queue() *queue.Queue {
	return s.queue
}

func (s *System) Events() *progress.Broadcaster {
	return s.events
}
