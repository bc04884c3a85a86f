package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jamaly87/code-reader/internal/indexer"
	"github.com/jamaly87/code-reader/internal/jobs"
	"github.com/jamaly87/code-reader/internal/models"
	"github.com/jamaly87/code-reader/internal/queue"
	"github.com/jamaly87/code-reader/internal/store"
	"github.com/jamaly87/code-reader/pkg/apperror"
)

// stubEmbedder returns fixed-size vectors and can be told to fail after a
// number of successful calls.
type stubEmbedder struct {
	mu        sync.Mutex
	calls     int
	failAfter int // fail once calls exceeds this; 0 means never fail
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, model, text string) ([]float32, error) {
	vecs, err := s.EmbedDocuments(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, model string, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAfter > 0 && s.calls > s.failAfter {
		return nil, apperror.ErrProvider.WithDetail("stub failure")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fixture struct {
	proc    *Processor
	jobs    *jobs.Service
	store   *store.MemoryStore
	embed   *stubEmbedder
	queue   *queue.Queue
	repoDir string
}

func newFixture(t *testing.T, fileCount int) *fixture {
	t.Helper()
	tok, err := indexer.NewTokenizer()
	if err != nil {
		t.Skipf("tokenizer unavailable: %v", err)
	}
	t.Cleanup(tok.Close)

	dir := t.TempDir()
	for i := 0; i < fileCount; i++ {
		path := filepath.Join(dir, fmt.Sprintf("file%02d.go", i))
		content := fmt.Sprintf("package main\n\nfunc fn%d() int {\n\treturn %d\n}\n", i, i)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	st := store.NewMemoryStore()
	logger := zap.NewNop()
	jobSvc := jobs.NewService(st, logger)
	embed := &stubEmbedder{}
	q := queue.New(logger)

	return &fixture{
		proc:    New(jobSvc, st, embed, indexer.NewChunker(tok), q, logger),
		jobs:    jobSvc,
		store:   st,
		embed:   embed,
		queue:   q,
		repoDir: dir,
	}
}

func (f *fixture) createJob(t *testing.T, batchSize int) *models.Job {
	t.Helper()
	result, err := f.jobs.Create(context.Background(), jobs.CreateRequest{
		Identifier:     "repo",
		RepositoryPath: f.repoDir,
		Config:         &models.JobConfigPatch{BatchSize: &batchSize},
	})
	require.NoError(t, err)
	return result.Job
}

func TestProcessJob_CompletesAndPersists(t *testing.T) {
	f := newFixture(t, 5)
	job := f.createJob(t, 2)
	ctx := context.Background()

	require.NoError(t, f.proc.ProcessJob(ctx, job.JobID, StartOptions{}))

	final, err := f.jobs.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 5, final.Progress.TotalFiles)
	assert.Equal(t, 5, final.Progress.ProcessedFiles)
	assert.Equal(t, 3, final.Progress.CurrentBatch)
	assert.Equal(t, 3, final.Progress.TotalBatches)
	assert.NotNil(t, final.CompletedAt)

	// One file record per file, one embedding per chunk
	var fileCount int
	for batch := 1; batch <= 3; batch++ {
		files, err := f.store.FindBatchFiles(ctx, job.JobID, batch)
		require.NoError(t, err)
		fileCount += len(files)
	}
	assert.Equal(t, 5, fileCount)

	embeds, err := f.store.FindJobEmbeddings(ctx, job.JobID)
	require.NoError(t, err)
	require.NotEmpty(t, embeds)
	for _, e := range embeds {
		_, err := f.store.FindChunk(ctx, e.ChunkID)
		assert.NoError(t, err)
	}
}

func TestProcessJob_EmptyRepository(t *testing.T) {
	f := newFixture(t, 0)
	job := f.createJob(t, 50)
	ctx := context.Background()

	require.NoError(t, f.proc.ProcessJob(ctx, job.JobID, StartOptions{}))

	final, err := f.jobs.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 0, final.Progress.TotalFiles)
}

func TestProcessJob_FileLimitPausesAndResumes(t *testing.T) {
	f := newFixture(t, 5)
	job := f.createJob(t, 2)
	ctx := context.Background()

	// First run: the 2-file cap allows exactly one batch
	require.NoError(t, f.proc.ProcessJob(ctx, job.JobID, StartOptions{FileLimit: 2}))

	paused, err := f.jobs.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, paused.Status)
	assert.Equal(t, 2, paused.Progress.ProcessedFiles)
	assert.Equal(t, 1, paused.Progress.CurrentBatch)

	// Second run without a cap finishes the job
	require.NoError(t, f.proc.ProcessJob(ctx, job.JobID, StartOptions{}))

	final, err := f.jobs.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 5, final.Progress.ProcessedFiles)

	// The resumed run did not duplicate batch 1
	files, err := f.store.FindBatchFiles(ctx, job.JobID, 1)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestProcessJob_EmbedFailureRollsBackBatch(t *testing.T) {
	f := newFixture(t, 5)
	job := f.createJob(t, 2)
	ctx := context.Background()

	// First embed call (batch 1) succeeds, second (batch 2) fails
	f.embed.failAfter = 1

	err := f.proc.ProcessJob(ctx, job.JobID, StartOptions{})
	require.Error(t, err)

	failed, getErr := f.jobs.GetByID(ctx, job.JobID)
	require.NoError(t, getErr)
	assert.Equal(t, models.JobStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.Error)
	assert.Equal(t, 1, failed.Progress.CurrentBatch)

	// Batch 1 survives; the failed batch 2 left nothing behind
	batch1, err := f.store.FindBatchFiles(ctx, job.JobID, 1)
	require.NoError(t, err)
	assert.Len(t, batch1, 2)
	batch2, err := f.store.FindBatchFiles(ctx, job.JobID, 2)
	require.NoError(t, err)
	assert.Empty(t, batch2)

	// A later run resumes from the failed batch and completes
	f.embed.failAfter = 0
	require.NoError(t, f.proc.ProcessJob(ctx, job.JobID, StartOptions{}))

	final, err := f.jobs.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)

	var fileCount int
	for batch := 1; batch <= 3; batch++ {
		files, err := f.store.FindBatchFiles(ctx, job.JobID, batch)
		require.NoError(t, err)
		fileCount += len(files)
	}
	assert.Equal(t, 5, fileCount)
}

func TestProcessJob_StopRequestParksJob(t *testing.T) {
	f := newFixture(t, 5)
	job := f.createJob(t, 2)
	ctx := context.Background()

	// A stop flagged before the run parks the job before its first batch.
	// The queue entry makes the job count as active for StopProcessing.
	f.queue.Enqueue(job.JobID, func(context.Context) error { return nil })
	require.NoError(t, f.proc.StopProcessing(ctx, job.JobID))

	require.NoError(t, f.proc.ProcessJob(ctx, job.JobID, StartOptions{}))

	parked, err := f.jobs.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, parked.Status)
	assert.Equal(t, 0, parked.Progress.CurrentBatch)
}

func TestProcessJob_RefusesWrongStatus(t *testing.T) {
	f := newFixture(t, 2)
	job := f.createJob(t, 50)
	ctx := context.Background()

	// A direct run, or a duplicate dequeue, must not rerun the job
	for _, status := range []models.JobStatus{models.JobStatusProcessing, models.JobStatusCompleted} {
		require.NoError(t, f.jobs.UpdateStatus(ctx, job.JobID, status, ""))
		err := f.proc.ProcessJob(ctx, job.JobID, StartOptions{})
		var appErr *apperror.Error
		require.True(t, errors.As(err, &appErr), "status %s", status)
		assert.Equal(t, "INVALID_STATUS", appErr.Code, "status %s", status)
	}
}

func TestStartProcessing_QueuesJob(t *testing.T) {
	f := newFixture(t, 2)
	job := f.createJob(t, 50)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.queue.Start(ctx)

	position, err := f.proc.StartProcessing(ctx, job.JobID, StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, position)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := f.jobs.GetByID(ctx, job.JobID)
		require.NoError(t, err)
		if j.Status == models.JobStatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not complete")
}

func TestStartProcessing_RefusesWrongStatus(t *testing.T) {
	f := newFixture(t, 2)
	job := f.createJob(t, 50)
	ctx := context.Background()

	for _, status := range []models.JobStatus{models.JobStatusProcessing, models.JobStatusCompleted} {
		require.NoError(t, f.jobs.UpdateStatus(ctx, job.JobID, status, ""))
		_, err := f.proc.StartProcessing(ctx, job.JobID, StartOptions{})
		var appErr *apperror.Error
		require.True(t, errors.As(err, &appErr), "status %s", status)
		assert.Equal(t, "INVALID_STATUS", appErr.Code, "status %s", status)
	}
}

func TestStartProcessing_RefusesQueuedJob(t *testing.T) {
	f := newFixture(t, 2)
	job := f.createJob(t, 50)
	ctx := context.Background()

	// Queue worker not started, so the entry stays pending in the queue
	_, err := f.proc.StartProcessing(ctx, job.JobID, StartOptions{})
	require.NoError(t, err)

	_, err = f.proc.StartProcessing(ctx, job.JobID, StartOptions{})
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestStopProcessing_RequiresActiveJob(t *testing.T) {
	f := newFixture(t, 2)
	job := f.createJob(t, 50)
	ctx := context.Background()

	err := f.proc.StopProcessing(ctx, job.JobID)
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVALID_STATUS", appErr.Code)
}
