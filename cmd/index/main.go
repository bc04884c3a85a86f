package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jamaly87/code-reader/internal/embeddings"
	"github.com/jamaly87/code-reader/internal/indexer"
	"github.com/jamaly87/code-reader/internal/jobs"
	"github.com/jamaly87/code-reader/internal/models"
	"github.com/jamaly87/code-reader/internal/processor"
	"github.com/jamaly87/code-reader/internal/queue"
	"github.com/jamaly87/code-reader/internal/store"
	"github.com/jamaly87/code-reader/pkg/config"
	"github.com/jamaly87/code-reader/pkg/logger"
)

func main() {
	path := flag.String("path", ".", "repository path to index")
	identifier := flag.String("identifier", "", "task identifier (defaults to the directory name)")
	fileLimit := flag.Int("file-limit", 0, "cap on files processed this run (0 = no cap)")
	flag.Parse()

	if err := run(*path, *identifier, *fileLimit); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(path, identifier string, fileLimit int) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Server.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if identifier == "" {
		identifier = filepath.Base(abs)
	}

	st, err := store.ConnectWithRetry(ctx, cfg.Mongo, log)
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}
	defer func() {
		if err := st.Disconnect(context.Background()); err != nil {
			log.Warn("failed to disconnect store", zap.Error(err))
		}
	}()

	if err := st.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	tok, err := indexer.NewTokenizer()
	if err != nil {
		return err
	}
	defer tok.Close()

	embedder := embeddings.NewOpenAIClient(cfg.OpenAI, log)
	jobSvc := jobs.NewService(st, log)
	proc := processor.New(jobSvc, st, embedder, indexer.NewChunker(tok), queue.New(log), log)

	created, err := jobSvc.Create(ctx, jobs.CreateRequest{
		Identifier:     identifier,
		RepositoryPath: abs,
	})
	if err != nil {
		return err
	}
	job := created.Job

	fmt.Printf("Created task %s (identifier %q, version %d)\n", job.JobID, job.Identifier, job.Version)
	fmt.Printf("Files to index: %d (skipped %d)\n", job.Progress.TotalFiles, len(created.SkippedFiles))

	// Run the pipeline synchronously; the queue is not involved
	if err := proc.ProcessJob(ctx, job.JobID, processor.StartOptions{FileLimit: fileLimit}); err != nil {
		return err
	}

	final, err := jobSvc.GetByID(ctx, job.JobID)
	if err != nil {
		return err
	}

	fmt.Printf("Status: %s\n", final.Status)
	fmt.Printf("Processed %d/%d files (%d/%d batches, %d%%)\n",
		final.Progress.ProcessedFiles, final.Progress.TotalFiles,
		final.Progress.CurrentBatch, final.Progress.TotalBatches,
		final.Progress.PercentComplete())
	if final.Status == models.JobStatusPending {
		fmt.Println("Task paused; run again to continue from the next batch.")
	}
	if final.Error != "" {
		fmt.Printf("Error: %s\n", final.Error)
	}
	return nil
}
