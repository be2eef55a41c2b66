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


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/docvec"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/server"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "docvecd",
		Usage: "Document embedding and vector storage daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"DOCVEC_LOG_LEVEL"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the ingestion pipeline and HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
						EnvVars:  []string{"DOCVEC_DB"},
					},
					&cli.StringFlag{
						Name:    "listen",
						Usage:   "HTTP listen address",
						Value:   ":8420",
						EnvVars: []string{"DOCVEC_LISTEN"},
					},
					&cli.StringFlag{
						Name:    "embedding-host",
						Usage:   "Embedding service host URL",
						Value:   "http://localhost:11434/v1",
						EnvVars: []string{"DOCVEC_EMBEDDING_HOST"},
					},
					&cli.StringFlag{
						Name:     "embedding-model",
						Usage:    "Embedding model name",
						Required: true,
						EnvVars:  []string{"DOCVEC_EMBEDDING_MODEL"},
					},
					&cli.DurationFlag{
						Name:    "cache-ttl",
						Usage:   "How long cached embeddings stay valid",
						Value:   24 * time.Hour,
						EnvVars: []string{"DOCVEC_CACHE_TTL"},
					},
					&cli.DurationFlag{
						Name:    "rate-limit-window",
						Usage:   "Rate limit window for embedding requests",
						Value:   time.Minute,
						EnvVars: []string{"DOCVEC_RATE_LIMIT_WINDOW"},
					},
					&cli.IntFlag{
						Name:    "rate-limit-requests",
						Usage:   "Embedding requests allowed per window",
						Value:   300,
						EnvVars: []string{"DOCVEC_RATE_LIMIT_REQUESTS"},
					},
					&cli.IntFlag{
						Name:    "batch-size",
						Usage:   "Number of chunks embedded per inference request",
						Value:   50,
						EnvVars: []string{"DOCVEC_BATCH_SIZE"},
					},
					&cli.DurationFlag{
						Name:    "batch-delay",
						Usage:   "Pause between embedding batches",
						Value:   100 * time.Millisecond,
						EnvVars: []string{"DOCVEC_BATCH_DELAY"},
					},
					&cli.IntFlag{
						Name:    "workers",
						Usage:   "Number of concurrent document workers",
						Value:   3,
						EnvVars: []string{"DOCVEC_WORKERS"},
					},
					&cli.DurationFlag{
						Name:    "stall-interval",
						Usage:   "How long an active job may go without progress before it is considered stalled",
						Value:   30 * time.Second,
						EnvVars: []string{"DOCVEC_STALL_INTERVAL"},
					},
					&cli.IntFlag{
						Name:    "retention",
						Usage:   "Number of finished jobs to keep",
						Value:   100,
						EnvVars: []string{"DOCVEC_RETENTION"},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveCommand(c *cli.Context) error {
	cfg := config.New(
		config.WithDataDir(c.String("db")),
		config.WithListenAddr(c.String("listen")),
		config.WithEmbeddingHost(c.String("embedding-host")),
		config.WithEmbeddingModel(c.String("embedding-model")),
		config.WithCacheTTL(c.Duration("cache-ttl")),
		config.WithRateLimit(c.Duration("rate-limit-window"), c.Int("rate-limit-requests")),
		config.WithBatchSize(c.Int("batch-size")),
		config.WithBatchDelay(c.Duration("batch-delay")),
		config.WithWorkerConcurrency(c.Int("workers")),
		config.WithStallInterval(c.Duration("stall-interval")),
		config.WithRetentionWindow(c.Int("retention")),
	)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := docvec.NewSystem(cfg)
	if err != nil {
		return fmt.Errorf("failed to start system: %w", err)
	}
	defer func() {
		if err := sys.Close(); err != nil {
			slog.Error("error closing system", "err", err)
		}
	}()

	if err := sys.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	srv := server.New(cfg, sys.Embeddings(), sys.Queue(), sys.Events(), slog.Default())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
