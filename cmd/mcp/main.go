package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jamaly87/code-reader/internal/embeddings"
	"github.com/jamaly87/code-reader/internal/jobs"
	"github.com/jamaly87/code-reader/internal/mcp"
	"github.com/jamaly87/code-reader/internal/search"
	"github.com/jamaly87/code-reader/internal/store"
	"github.com/jamaly87/code-reader/pkg/config"
	"github.com/jamaly87/code-reader/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// stdout is the MCP transport, so logs must go to stderr only
	log, err := logger.New(cfg.Logging.Level, cfg.Server.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.ConnectWithRetry(ctx, cfg.Mongo, log)
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}
	defer func() {
		if err := st.Disconnect(context.Background()); err != nil {
			log.Warn("failed to disconnect store", zap.Error(err))
		}
	}()

	embedder := embeddings.NewOpenAIClient(cfg.OpenAI, log)
	jobSvc := jobs.NewService(st, log)
	searcher := search.NewSearcher(st, jobSvc, embedder, log)

	return mcp.NewServer(jobSvc, searcher, log).Start(ctx)
}
