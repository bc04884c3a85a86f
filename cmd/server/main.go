package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jamaly87/code-reader/internal/api"
	"github.com/jamaly87/code-reader/internal/embeddings"
	"github.com/jamaly87/code-reader/internal/indexer"
	"github.com/jamaly87/code-reader/internal/jobs"
	"github.com/jamaly87/code-reader/internal/processor"
	"github.com/jamaly87/code-reader/internal/queue"
	"github.com/jamaly87/code-reader/internal/search"
	"github.com/jamaly87/code-reader/internal/store"
	"github.com/jamaly87/code-reader/pkg/apperror"
	"github.com/jamaly87/code-reader/pkg/config"
	"github.com/jamaly87/code-reader/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

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
		disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.Disconnect(disconnectCtx); err != nil {
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
	chunker := indexer.NewChunker(tok)

	q := queue.New(log)
	q.Start(ctx)

	proc := processor.New(jobSvc, st, embedder, chunker, q, log)
	searcher := search.NewSearcher(st, jobSvc, embedder, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)
	api.NewHandler(jobSvc, proc, searcher, q, st, log).RegisterRoutes(e)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			log.Info("http server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown failed", zap.Error(err))
	}

	// The worker sees the cancelled ctx and exits after the current batch
	q.Wait()

	return nil
}
