// Package store persists jobs, files, chunks and embeddings in a document
// store and exposes vector retrieval over the embeddings collection.
package store

import (
	"context"
	"errors"

	"github.com/jamaly87/code-reader/internal/models"
)

// ErrNotFound is returned when a lookup matches no document
var ErrNotFound = errors.New("store: not found")

// ProgressPatch is a partial progress update; nil fields are left untouched
type ProgressPatch struct {
	TotalFiles     *int
	ProcessedFiles *int
	CurrentBatch   *int
	TotalBatches   *int
}

// ScoredChunk pairs a chunk id with its similarity score
type ScoredChunk struct {
	ChunkID string
	Score   float64
}

// Store is the capability set the services are written against. The Mongo
// implementation backs production; the in-memory implementation backs the
// service tests.
type Store interface {
	InsertJob(ctx context.Context, job *models.Job) error
	FindJob(ctx context.Context, jobID string) (*models.Job, error)
	FindLatestJob(ctx context.Context, identifier string) (*models.Job, error)
	// FindJobVersions returns all jobs for an identifier, newest version first
	FindJobVersions(ctx context.Context, identifier string) ([]models.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error
	UpdateJobProgress(ctx context.Context, jobID string, patch ProgressPatch) error
	DeleteJob(ctx context.Context, jobID string) error

	InsertFiles(ctx context.Context, files []models.File) error
	FindBatchFiles(ctx context.Context, jobID string, batchNumber int) ([]models.File, error)
	DeleteBatchFiles(ctx context.Context, jobID string, batchNumber int) error
	DeleteJobFiles(ctx context.Context, jobID string) error

	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	FindChunk(ctx context.Context, chunkID string) (*models.Chunk, error)
	FindChunksByFileIDs(ctx context.Context, jobID string, fileIDs []string) ([]models.Chunk, error)
	DeleteChunksByFileIDs(ctx context.Context, fileIDs []string) error
	DeleteJobChunks(ctx context.Context, jobID string) error

	InsertEmbeddings(ctx context.Context, embeddings []models.Embedding) error
	FindJobEmbeddings(ctx context.Context, jobID string) ([]models.Embedding, error)
	DeleteEmbeddingsByChunkIDs(ctx context.Context, chunkIDs []string) error
	DeleteJobEmbeddings(ctx context.Context, jobID string) error

	// HasVectorIndex reports whether a ready native vector index with the
	// given dimensionality and cosine similarity exists on the embeddings
	// collection.
	HasVectorIndex(ctx context.Context, dimensions int) bool
	// VectorSearch runs native vector retrieval filtered to one job
	VectorSearch(ctx context.Context, jobID string, vector []float32, limit int) ([]ScoredChunk, error)

	Ping(ctx context.Context) error
}
