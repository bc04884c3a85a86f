// Package processor drives the indexing pipeline: scan, extract, chunk,
// embed and persist, one batch at a time with per-batch atomicity.
package processor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jamaly87/code-reader/internal/embeddings"
	"github.com/jamaly87/code-reader/internal/indexer"
	"github.com/jamaly87/code-reader/internal/jobs"
	"github.com/jamaly87/code-reader/internal/models"
	"github.com/jamaly87/code-reader/internal/queue"
	"github.com/jamaly87/code-reader/internal/store"
	"github.com/jamaly87/code-reader/pkg/apperror"
)

// Processor executes indexing jobs
type Processor struct {
	jobs     *jobs.Service
	store    store.Store
	embedder embeddings.Client
	chunker  *indexer.Chunker
	queue    *queue.Queue
	logger   *zap.Logger

	mu      sync.Mutex
	stopped map[string]bool
}

func New(jobSvc *jobs.Service, st store.Store, embedder embeddings.Client, chunker *indexer.Chunker, q *queue.Queue, logger *zap.Logger) *Processor {
	return &Processor{
		jobs:     jobSvc,
		store:    st,
		embedder: embedder,
		chunker:  chunker,
		queue:    q,
		logger:   logger.Named("processor"),
	}
}

// StartOptions tune a single processing run
type StartOptions struct {
	// FileLimit caps how many files this run processes; 0 means no cap.
	// The job pauses as pending once the cap is reached.
	FileLimit int
}

// StartProcessing enqueues a job for processing and returns its 1-based
// queue position. Only pending and failed jobs can start; a job already
// queued or running is refused.
func (p *Processor) StartProcessing(ctx context.Context, jobID string, opts StartOptions) (int, error) {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return 0, err
	}

	if p.queue.IsJobQueued(job.JobID) {
		return 0, apperror.ErrConflict.WithDetail("task %q is already queued or running", job.JobID)
	}
	if job.Status != models.JobStatusPending && job.Status != models.JobStatusFailed {
		return 0, apperror.ErrInvalidStatus.WithDetail(
			"task %q has status %q; only pending or failed tasks can start", job.JobID, job.Status)
	}

	p.clearStop(job.JobID)

	position := p.queue.Enqueue(job.JobID, func(ctx context.Context) error {
		return p.ProcessJob(ctx, job.JobID, opts)
	})
	return position, nil
}

// StopProcessing requests a cooperative stop. The job finishes its current
// batch and parks as pending, resumable from the next batch.
func (p *Processor) StopProcessing(ctx context.Context, jobID string) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if !p.queue.IsJobQueued(job.JobID) && job.Status != models.JobStatusProcessing {
		return apperror.ErrInvalidStatus.WithDetail("task %q is not processing", job.JobID)
	}

	p.mu.Lock()
	if p.stopped == nil {
		p.stopped = make(map[string]bool)
	}
	p.stopped[job.JobID] = true
	p.mu.Unlock()

	p.logger.Info("stop requested", zap.String("jobId", job.JobID))
	return nil
}

func (p *Processor) clearStop(jobID string) {
	p.mu.Lock()
	delete(p.stopped, jobID)
	p.mu.Unlock()
}

func (p *Processor) stopRequested(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped[jobID]
}

// ProcessJob runs the pipeline for one job. The repository is rescanned so
// the batch partition reflects the filesystem as it is now; processing
// resumes from the first batch progress has not recorded. Every batch is
// persisted atomically: on failure the partial batch is rolled back and
// the job marked failed, so a later run redoes the whole batch.
func (p *Processor) ProcessJob(ctx context.Context, jobID string, opts StartOptions) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	// Re-checked here so a duplicate enqueue or a direct caller cannot
	// rerun a job that already completed or is running.
	if job.Status != models.JobStatusPending && job.Status != models.JobStatusFailed {
		return apperror.ErrInvalidStatus.WithDetail(
			"task %q has status %q; only pending or failed tasks can run", job.JobID, job.Status)
	}

	if err := p.jobs.UpdateStatus(ctx, job.JobID, models.JobStatusProcessing, ""); err != nil {
		return err
	}

	scan, err := indexer.NewScanner(job.Config).Scan(job.RepositoryPath)
	if err != nil {
		return p.fail(ctx, job.JobID, fmt.Errorf("scan failed: %w", err))
	}

	if len(scan.Files) == 0 {
		patch := progressPatch(0, 0, 0, 0)
		if err := p.jobs.UpdateProgress(ctx, job.JobID, patch); err != nil {
			return err
		}
		return p.jobs.UpdateStatus(ctx, job.JobID, models.JobStatusCompleted, "")
	}

	batches := indexer.PartitionIntoBatches(scan.Files, job.Config.BatchSize)

	totalFiles := len(scan.Files)
	totalBatches := len(batches)
	if err := p.jobs.UpdateProgress(ctx, job.JobID, store.ProgressPatch{
		TotalFiles:   &totalFiles,
		TotalBatches: &totalBatches,
	}); err != nil {
		return err
	}

	startBatch := job.Progress.CurrentBatch
	if startBatch > totalBatches {
		startBatch = totalBatches
	}

	filesThisRun := 0
	for i := startBatch; i < totalBatches; i++ {
		if err := ctx.Err(); err != nil {
			// Shutdown between batches. Progress is already durable, so
			// the job parks as pending and resumes later.
			return p.park(context.WithoutCancel(ctx), job.JobID, "context cancelled")
		}
		if p.stopRequested(job.JobID) {
			return p.park(ctx, job.JobID, "stop requested")
		}
		if opts.FileLimit > 0 && filesThisRun >= opts.FileLimit {
			return p.park(ctx, job.JobID, fmt.Sprintf("file limit of %d reached", opts.FileLimit))
		}

		// batchNumber is 1-based; i indexes the partition
		handled, err := p.processBatch(ctx, job, i+1, batches[i])
		if err != nil {
			p.rollbackBatch(context.WithoutCancel(ctx), job.JobID, i+1)
			return p.fail(context.WithoutCancel(ctx), job.JobID, fmt.Errorf("batch %d failed: %w", i+1, err))
		}
		filesThisRun += handled

		current := i + 1
		processed := current * job.Config.BatchSize
		if processed > totalFiles {
			processed = totalFiles
		}
		if err := p.jobs.UpdateProgress(ctx, job.JobID, store.ProgressPatch{
			CurrentBatch:   &current,
			ProcessedFiles: &processed,
		}); err != nil {
			return err
		}

		p.logger.Info("batch persisted",
			zap.String("jobId", job.JobID),
			zap.Int("batch", current),
			zap.Int("totalBatches", totalBatches),
		)

		// Yield between batches so the scheduler can service other work
		runtime.Gosched()
	}

	if err := p.jobs.UpdateProgress(ctx, job.JobID, store.ProgressPatch{
		ProcessedFiles: &totalFiles,
	}); err != nil {
		return err
	}
	return p.jobs.UpdateStatus(ctx, job.JobID, models.JobStatusCompleted, "")
}

// park returns a job to pending mid-run, keeping its progress
func (p *Processor) park(ctx context.Context, jobID, reason string) error {
	p.logger.Info("job paused", zap.String("jobId", jobID), zap.String("reason", reason))
	return p.jobs.UpdateStatus(ctx, jobID, models.JobStatusPending, "")
}

// fail marks the job failed with the error message and returns the error
func (p *Processor) fail(ctx context.Context, jobID string, cause error) error {
	if err := p.jobs.UpdateStatus(ctx, jobID, models.JobStatusFailed, cause.Error()); err != nil {
		p.logger.Error("failed to record job failure", zap.String("jobId", jobID), zap.Error(err))
	}
	return cause
}

// processBatch extracts, chunks, embeds and persists one batch. It returns
// how many files it handled; binary files count as handled but produce no
// records. Persistence order is files, chunks, embeddings, so a crash
// leaves at worst orphaned parents for the rollback to sweep.
func (p *Processor) processBatch(ctx context.Context, job *models.Job, batchNumber int, batch []indexer.ScannedFile) (int, error) {
	var (
		files  []models.File
		chunks []models.Chunk
		texts  []string
	)

	for _, scanned := range batch {
		content, err := indexer.ExtractFile(scanned.AbsolutePath)
		if err != nil {
			return 0, fmt.Errorf("failed to extract %s: %w", scanned.RelativePath, err)
		}
		if content == nil {
			// Binary file discovered at read time
			continue
		}

		file := models.File{
			FileID:       uuid.NewString(),
			JobID:        job.JobID,
			AbsolutePath: scanned.AbsolutePath,
			RelativePath: scanned.RelativePath,
			Language:     content.Language,
			SizeBytes:    content.SizeBytes,
			LineCount:    content.LineCount,
			ContentHash:  content.ContentHash,
			BatchNumber:  batchNumber,
		}
		files = append(files, file)

		for _, span := range p.chunker.Chunk(content.Content, indexer.ChunkOptions{
			ChunkSize:    job.Config.ChunkSize,
			ChunkOverlap: job.Config.ChunkOverlap,
			Language:     content.Language,
		}) {
			chunks = append(chunks, models.Chunk{
				ChunkID:      uuid.NewString(),
				JobID:        job.JobID,
				FileID:       file.FileID,
				RelativePath: file.RelativePath,
				Content:      span.Content,
				StartLine:    span.StartLine,
				EndLine:      span.EndLine,
				TokenCount:   span.TokenCount,
			})
			texts = append(texts, span.Content)
		}
	}

	if len(chunks) == 0 {
		return len(batch), nil
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, job.Config.EmbeddingModel, texts)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	embeds := make([]models.Embedding, len(chunks))
	for i, chunk := range chunks {
		embeds[i] = models.Embedding{
			ChunkID:   chunk.ChunkID,
			JobID:     job.JobID,
			Vector:    vectors[i],
			Model:     job.Config.EmbeddingModel,
			CreatedAt: now,
		}
	}

	if err := p.store.InsertFiles(ctx, files); err != nil {
		return 0, fmt.Errorf("failed to store files: %w", err)
	}
	if err := p.store.InsertChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := p.store.InsertEmbeddings(ctx, embeds); err != nil {
		return 0, fmt.Errorf("failed to store embeddings: %w", err)
	}

	return len(batch), nil
}

// rollbackBatch removes whatever part of a batch reached the store,
// most-derived first so no embedding ever outlives its chunk. Rollback
// failures are logged and suppressed.
func (p *Processor) rollbackBatch(ctx context.Context, jobID string, batchNumber int) {
	files, err := p.store.FindBatchFiles(ctx, jobID, batchNumber)
	if err != nil {
		p.logger.Warn("rollback: failed to list batch files",
			zap.String("jobId", jobID), zap.Int("batch", batchNumber), zap.Error(err))
		return
	}
	if len(files) == 0 {
		return
	}

	fileIDs := make([]string, len(files))
	for i, f := range files {
		fileIDs[i] = f.FileID
	}

	chunks, err := p.store.FindChunksByFileIDs(ctx, jobID, fileIDs)
	if err != nil {
		p.logger.Warn("rollback: failed to list batch chunks",
			zap.String("jobId", jobID), zap.Int("batch", batchNumber), zap.Error(err))
	}
	if len(chunks) > 0 {
		chunkIDs := make([]string, len(chunks))
		for i, c := range chunks {
			chunkIDs[i] = c.ChunkID
		}
		if err := p.store.DeleteEmbeddingsByChunkIDs(ctx, chunkIDs); err != nil {
			p.logger.Warn("rollback: failed to delete embeddings",
				zap.String("jobId", jobID), zap.Int("batch", batchNumber), zap.Error(err))
		}
	}

	if err := p.store.DeleteChunksByFileIDs(ctx, fileIDs); err != nil {
		p.logger.Warn("rollback: failed to delete chunks",
			zap.String("jobId", jobID), zap.Int("batch", batchNumber), zap.Error(err))
	}
	if err := p.store.DeleteBatchFiles(ctx, jobID, batchNumber); err != nil {
		p.logger.Warn("rollback: failed to delete files",
			zap.String("jobId", jobID), zap.Int("batch", batchNumber), zap.Error(err))
	}

	p.logger.Info("batch rolled back", zap.String("jobId", jobID), zap.Int("batch", batchNumber))
}

func progressPatch(total, processed, current, batches int) store.ProgressPatch {
	return store.ProgressPatch{
		TotalFiles:     &total,
		ProcessedFiles: &processed,
		CurrentBatch:   &current,
		TotalBatches:   &batches,
	}
}
