package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/poiesic/docvec"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/queue"
)

var (
	dbPath    = flag.String("db", "./docvec_db", "path to BadgerDB database directory")
	srcFile   = flag.String("src", "", "document file to ingest")
	userID    = flag.String("user", "seed-user", "owning user id")
	sessionID = flag.String("session", "", "owning session id")
	host      = flag.String("embedding-host", "http://localhost:11434/v1", "embedding service host URL")
	model     = flag.String("embedding-model", "nomic-embed-text", "embedding model name")
	timeout   = flag.Duration("timeout", 5*time.Minute, "how long to wait for the job to finish")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

func main() {
	if *srcFile == "" {
		fmt.Fprintln(os.Stderr, "-src is required")
		os.Exit(1)
	}

	cfg := config.New(
		config.WithDataDir(*dbPath),
		config.WithEmbeddingHost(*host),
		config.WithEmbeddingModel(*model),
	)

	sys, err := docvec.NewSystem(cfg)
	if err != nil {
		panic(err)
	}
	defer sys.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := sys.Start(ctx); err != nil {
		panic(err)
	}

	// Watch progress before enqueueing so no event is missed.
	events, unsubscribe := sys.Events().Subscribe(*userID)
	defer unsubscribe()

	jobID, err := sys.Queue().Enqueue(ctx, queue.EnqueueRequest{
		DocumentId: fmt.Sprintf("doc-%x", uint64(core.IDFromContent(*srcFile))),
		UserId:     *userID,
		SessionId:  *sessionID,
		FilePath:   *srcFile,
		FileType:   "text",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("Enqueued %s as job %s\n", *srcFile, jobID)

	for {
		select {
		case <-ctx.Done():
			panic(ctx.Err())
		case event := <-events:
			if event.JobId != jobID {
				continue
			}
			switch event.Type {
			case core.EventDocumentProgress:
				fmt.Printf("  %3d%% %s\n", event.Progress, event.Message)
			case core.EventDocumentCompleted:
				fmt.Println("Done")
				return
			case core.EventDocumentFailed:
				fmt.Fprintf(os.Stderr, "Failed: %s\n", event.Message)
				os.Exit(1)
			}
		}
	}
}
