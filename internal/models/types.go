package models

import (
	"fmt"
	"math"
	"time"
)

// JobStatus represents the lifecycle state of an indexing job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobProgress tracks how far an indexing job has advanced.
// CurrentBatch advances only after a batch has been fully persisted, so a
// restart resumes from the first incomplete batch.
type JobProgress struct {
	TotalFiles     int `bson:"totalFiles" json:"totalFiles"`
	ProcessedFiles int `bson:"processedFiles" json:"processedFiles"`
	CurrentBatch   int `bson:"currentBatch" json:"currentBatch"`
	TotalBatches   int `bson:"totalBatches" json:"totalBatches"`
}

// PercentComplete derives a 0-100 completion percentage from batch progress.
// It is computed on read and never persisted.
func (p JobProgress) PercentComplete() int {
	if p.TotalBatches == 0 {
		return 0
	}
	return int(math.Round(float64(p.CurrentBatch) / float64(p.TotalBatches) * 100))
}

// Job represents a repository indexing job
type Job struct {
	JobID                string      `bson:"jobId" json:"jobId"`
	Identifier           string      `bson:"identifier" json:"identifier"`
	Version              int         `bson:"version" json:"version"`
	RepositoryPath       string      `bson:"repositoryPath" json:"repositoryPath"`
	Status               JobStatus   `bson:"status" json:"status"`
	Progress             JobProgress `bson:"progress" json:"progress"`
	Config               JobConfig   `bson:"config" json:"config"`
	RecommendedFileLimit int         `bson:"recommendedFileLimit" json:"recommendedFileLimit"`
	CreatedAt            time.Time   `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time   `bson:"updatedAt" json:"updatedAt"`
	CompletedAt          *time.Time  `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	Error                string      `bson:"error,omitempty" json:"error,omitempty"`
}

// File represents a scanned source file that belongs to a job
type File struct {
	FileID       string `bson:"fileId" json:"fileId"`
	JobID        string `bson:"jobId" json:"jobId"`
	AbsolutePath string `bson:"absolutePath" json:"absolutePath"`
	RelativePath string `bson:"relativePath" json:"relativePath"`
	Language     string `bson:"language" json:"language"`
	SizeBytes    int64  `bson:"sizeBytes" json:"sizeBytes"`
	LineCount    int    `bson:"lineCount" json:"lineCount"`
	ContentHash  string `bson:"contentHash" json:"contentHash"`
	BatchNumber  int    `bson:"batchNumber" json:"batchNumber"`
}

// Chunk is a token-bounded span of a file's text with line metadata
type Chunk struct {
	ChunkID      string `bson:"chunkId" json:"chunkId"`
	JobID        string `bson:"jobId" json:"jobId"`
	FileID       string `bson:"fileId" json:"fileId"`
	RelativePath string `bson:"relativePath" json:"relativePath"`
	Content      string `bson:"content" json:"content"`
	StartLine    int    `bson:"startLine" json:"startLine"`
	EndLine      int    `bson:"endLine" json:"endLine"`
	TokenCount   int    `bson:"tokenCount" json:"tokenCount"`
}

// Embedding pairs a chunk with its dense vector
type Embedding struct {
	ChunkID   string    `bson:"chunkId" json:"chunkId"`
	JobID     string    `bson:"jobId" json:"jobId"`
	Vector    []float32 `bson:"vector" json:"vector"`
	Model     string    `bson:"model" json:"model"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// JobConfig controls scanning, chunking and embedding for one job
type JobConfig struct {
	BatchSize      int      `bson:"batchSize" json:"batchSize" yaml:"batch_size"`
	ChunkSize      int      `bson:"chunkSize" json:"chunkSize" yaml:"chunk_size"`
	ChunkOverlap   int      `bson:"chunkOverlap" json:"chunkOverlap" yaml:"chunk_overlap"`
	EmbeddingModel string   `bson:"embeddingModel" json:"embeddingModel" yaml:"embedding_model"`
	Extensions     []string `bson:"extensions" json:"extensions" yaml:"extensions"`
	ExcludeDirs    []string `bson:"excludeDirs" json:"excludeDirs" yaml:"exclude_dirs"`
	MaxFileSize    int64    `bson:"maxFileSize" json:"maxFileSize" yaml:"max_file_size"`
}

// DefaultJobConfig returns the configuration used when a create request
// omits config fields.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		BatchSize:      50,
		ChunkSize:      1000,
		ChunkOverlap:   100,
		EmbeddingModel: "text-embedding-3-small",
		Extensions: []string{
			".js", ".ts", ".py", ".go", ".rs", ".java",
			".cpp", ".c", ".h", ".md", ".json", ".yaml", ".yml",
		},
		ExcludeDirs: []string{"node_modules", ".git", "dist", "build"},
		MaxFileSize: 1048576,
	}
}

// Validate checks the configured values against their allowed ranges
func (c JobConfig) Validate() error {
	if c.BatchSize < 1 || c.BatchSize > 500 {
		return fmt.Errorf("batchSize must be between 1 and 500, got %d", c.BatchSize)
	}
	if c.ChunkSize < 500 || c.ChunkSize > 1500 {
		return fmt.Errorf("chunkSize must be between 500 and 1500, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap > 500 {
		return fmt.Errorf("chunkOverlap must be between 0 and 500, got %d", c.ChunkOverlap)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("embeddingModel must not be empty")
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("extensions must not be empty")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("maxFileSize must be positive, got %d", c.MaxFileSize)
	}
	return nil
}

// JobConfigPatch carries the optional config overrides of a create request.
// Nil fields keep the default value.
type JobConfigPatch struct {
	BatchSize      *int     `json:"batchSize,omitempty"`
	ChunkSize      *int     `json:"chunkSize,omitempty"`
	ChunkOverlap   *int     `json:"chunkOverlap,omitempty"`
	EmbeddingModel *string  `json:"embeddingModel,omitempty"`
	Extensions     []string `json:"extensions,omitempty"`
	ExcludeDirs    []string `json:"excludeDirs,omitempty"`
	MaxFileSize    *int64   `json:"maxFileSize,omitempty"`
}

// ApplyTo overlays the patch on top of a config
func (p *JobConfigPatch) ApplyTo(cfg *JobConfig) {
	if p == nil {
		return
	}
	if p.BatchSize != nil {
		cfg.BatchSize = *p.BatchSize
	}
	if p.ChunkSize != nil {
		cfg.ChunkSize = *p.ChunkSize
	}
	if p.ChunkOverlap != nil {
		cfg.ChunkOverlap = *p.ChunkOverlap
	}
	if p.EmbeddingModel != nil {
		cfg.EmbeddingModel = *p.EmbeddingModel
	}
	if len(p.Extensions) > 0 {
		cfg.Extensions = p.Extensions
	}
	if len(p.ExcludeDirs) > 0 {
		cfg.ExcludeDirs = p.ExcludeDirs
	}
	if p.MaxFileSize != nil {
		cfg.MaxFileSize = *p.MaxFileSize
	}
}
