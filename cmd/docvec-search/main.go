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
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/docvec/ai/openai"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage/badger"
	"github.com/poiesic/docvec/vectorstore"
)

var (
	dbPath    = flag.String("db", "./docvec_db", "path to BadgerDB database directory")
	userID    = flag.String("user", "", "user whose collections to search")
	sessionID = flag.String("session", "", "restrict results to one session")
	host      = flag.String("embedding-host", "http://localhost:11434/v1", "embedding service host URL")
	model     = flag.String("embedding-model", "nomic-embed-text", "embedding model name")
	limit     = flag.Int("limit", 5, "maximum results")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

func main() {
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(1)
	}
	query := strings.Join(flag.Args(), " ")
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: docvec-search -user <id> [flags] <query>")
		os.Exit(1)
	}

	backend, err := badger.OpenBackend(*dbPath, false)
	if err != nil {
		panic(err)
	}
	defer backend.Close()

	store, err := vectorstore.NewStore(badger.NewVectorRepository(backend))
	if err != nil {
		panic(err)
	}

	embedder, err := openai.NewEmbedder(*host, *model)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	vector, err := embedder.EmbedText(ctx, query)
	if err != nil {
		panic(err)
	}

	results, err := store.Search(ctx, core.NormalizeVector(vector), vectorstore.SearchFilters{
		UserId:    *userID,
		SessionId: *sessionID,
	}, *limit)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d: '%s' (%s chunk %d)[%0.3f]\n", i, hit.Entry.Text, hit.Entry.DocumentId, hit.Entry.ChunkIndex, hit.Score)
	}
}
