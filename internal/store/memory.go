package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jamaly87/code-reader/internal/models"
)

// MemoryStore is an in-memory Store used by service tests. It mirrors the
// Mongo implementation's observable behavior, including the vector search
// path when SetVectorIndex has been called.
type MemoryStore struct {
	mu sync.RWMutex

	jobs       map[string]*models.Job
	files      []models.File
	chunks     []models.Chunk
	embeddings []models.Embedding

	vectorIndexDims int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.Job),
	}
}

// SetVectorIndex makes HasVectorIndex answer true for the given
// dimensionality, simulating a deployment with a native vector index.
func (s *MemoryStore) SetVectorIndex(dimensions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectorIndexDims = dimensions
}

func (s *MemoryStore) InsertJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.JobID] = &cp
	return nil
}

func (s *MemoryStore) FindJob(_ context.Context, jobID string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) FindLatestJob(_ context.Context, identifier string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Job
	for _, job := range s.jobs {
		if job.Identifier != identifier {
			continue
		}
		if latest == nil || job.Version > latest.Version {
			latest = job
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) FindJobVersions(_ context.Context, identifier string) ([]models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Job
	for _, job := range s.jobs {
		if job.Identifier == identifier {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (s *MemoryStore) UpdateJobStatus(_ context.Context, jobID string, status models.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	job.Status = status
	job.UpdatedAt = now
	job.Error = errMsg
	if status == models.JobStatusCompleted {
		job.CompletedAt = &now
	}
	return nil
}

func (s *MemoryStore) UpdateJobProgress(_ context.Context, jobID string, patch ProgressPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if patch.TotalFiles != nil {
		job.Progress.TotalFiles = *patch.TotalFiles
	}
	if patch.ProcessedFiles != nil {
		job.Progress.ProcessedFiles = *patch.ProcessedFiles
	}
	if patch.CurrentBatch != nil {
		job.Progress.CurrentBatch = *patch.CurrentBatch
	}
	if patch.TotalBatches != nil {
		job.Progress.TotalBatches = *patch.TotalBatches
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

func (s *MemoryStore) InsertFiles(_ context.Context, files []models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, files...)
	return nil
}

func (s *MemoryStore) FindBatchFiles(_ context.Context, jobID string, batchNumber int) ([]models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.File
	for _, f := range s.files {
		if f.JobID == jobID && f.BatchNumber == batchNumber {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteBatchFiles(_ context.Context, jobID string, batchNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.files[:0]
	for _, f := range s.files {
		if !(f.JobID == jobID && f.BatchNumber == batchNumber) {
			kept = append(kept, f)
		}
	}
	s.files = kept
	return nil
}

func (s *MemoryStore) DeleteJobFiles(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.files[:0]
	for _, f := range s.files {
		if f.JobID != jobID {
			kept = append(kept, f)
		}
	}
	s.files = kept
	return nil
}

func (s *MemoryStore) InsertChunks(_ context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *MemoryStore) FindChunk(_ context.Context, chunkID string) (*models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chunks {
		if c.ChunkID == chunkID {
			cp := c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindChunksByFileIDs(_ context.Context, jobID string, fileIDs []string) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := toSet(fileIDs)
	var out []models.Chunk
	for _, c := range s.chunks {
		if c.JobID == jobID && ids[c.FileID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteChunksByFileIDs(_ context.Context, fileIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := toSet(fileIDs)
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if !ids[c.FileID] {
			kept = append(kept, c)
		}
	}
	s.chunks = kept
	return nil
}

func (s *MemoryStore) DeleteJobChunks(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.JobID != jobID {
			kept = append(kept, c)
		}
	}
	s.chunks = kept
	return nil
}

func (s *MemoryStore) InsertEmbeddings(_ context.Context, embeddings []models.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings = append(s.embeddings, embeddings...)
	return nil
}

func (s *MemoryStore) FindJobEmbeddings(_ context.Context, jobID string) ([]models.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Embedding
	for _, e := range s.embeddings {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteEmbeddingsByChunkIDs(_ context.Context, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := toSet(chunkIDs)
	kept := s.embeddings[:0]
	for _, e := range s.embeddings {
		if !ids[e.ChunkID] {
			kept = append(kept, e)
		}
	}
	s.embeddings = kept
	return nil
}

func (s *MemoryStore) DeleteJobEmbeddings(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.embeddings[:0]
	for _, e := range s.embeddings {
		if e.JobID != jobID {
			kept = append(kept, e)
		}
	}
	s.embeddings = kept
	return nil
}

func (s *MemoryStore) HasVectorIndex(_ context.Context, dimensions int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vectorIndexDims != 0 && s.vectorIndexDims == dimensions
}

func (s *MemoryStore) VectorSearch(_ context.Context, jobID string, vector []float32, limit int) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var scored []ScoredChunk
	for _, e := range s.embeddings {
		if e.JobID != jobID {
			continue
		}
		scored = append(scored, ScoredChunk{ChunkID: e.ChunkID, Score: cosine(vector, e.Vector)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
