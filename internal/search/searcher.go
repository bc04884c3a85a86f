// Package search answers semantic queries over indexed repositories.
package search

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/jamaly87/code-reader/internal/embeddings"
	"github.com/jamaly87/code-reader/internal/jobs"
	"github.com/jamaly87/code-reader/internal/store"
	"github.com/jamaly87/code-reader/pkg/apperror"
)

const (
	// DefaultLimit and DefaultMinScore apply when a request omits them
	DefaultLimit    = 10
	DefaultMinScore = 0.7

	maxLimit = 100
)

// Searcher embeds queries and retrieves the most similar chunks, using the
// store's native vector index when one is available and an in-memory
// cosine scan otherwise.
type Searcher struct {
	store    store.Store
	jobs     *jobs.Service
	embedder embeddings.Client
	logger   *zap.Logger

	// backend probe runs once per process; all searches share the answer
	probeOnce sync.Once
	native    bool
}

func NewSearcher(st store.Store, jobSvc *jobs.Service, embedder embeddings.Client, logger *zap.Logger) *Searcher {
	return &Searcher{
		store:    st,
		jobs:     jobSvc,
		embedder: embedder,
		logger:   logger.Named("search"),
	}
}

// Query is a semantic search request. Exactly one of JobID and Identifier
// selects the repository; Identifier resolves to its latest version.
type Query struct {
	Query      string
	JobID      string
	Identifier string
	Limit      int
	MinScore   float64
}

// Result is one matching chunk
type Result struct {
	RelativePath string  `json:"relativePath"`
	Content      string  `json:"content"`
	StartLine    int     `json:"startLine"`
	EndLine      int     `json:"endLine"`
	Score        float64 `json:"score"`
}

// Search validates the query, embeds it with the job's embedding model and
// returns up to Limit chunks scoring at least MinScore, best first.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Result, error) {
	if q.Query == "" {
		return nil, apperror.ErrValidation.WithDetail("query must not be empty")
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 1 || q.Limit > maxLimit {
		return nil, apperror.ErrValidation.WithDetail("limit must be between 1 and %d", maxLimit)
	}
	if q.MinScore < 0 || q.MinScore > 1 {
		return nil, apperror.ErrValidation.WithDetail("minScore must be between 0 and 1")
	}

	job, err := s.jobs.Resolve(ctx, q.JobID, q.Identifier)
	if err != nil {
		return nil, err
	}

	// The query must be embedded with the job's own model so the vector
	// lives in the same space as the stored chunk vectors.
	vector, err := s.embedder.EmbedQuery(ctx, job.Config.EmbeddingModel, q.Query)
	if err != nil {
		return nil, err
	}

	scored, err := s.retrieve(ctx, job.JobID, vector, q.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(scored))
	for _, sc := range scored {
		if sc.Score < q.MinScore {
			continue
		}
		chunk, err := s.store.FindChunk(ctx, sc.ChunkID)
		if errors.Is(err, store.ErrNotFound) {
			// Chunk pruned between scoring and hydration
			continue
		}
		if err != nil {
			return nil, apperror.ErrDatabase.WithDetail("failed to load chunk").WithErr(err)
		}
		results = append(results, Result{
			RelativePath: chunk.RelativePath,
			Content:      chunk.Content,
			StartLine:    chunk.StartLine,
			EndLine:      chunk.EndLine,
			Score:        sc.Score,
		})
	}
	return results, nil
}

func (s *Searcher) retrieve(ctx context.Context, jobID string, vector []float32, limit int) ([]store.ScoredChunk, error) {
	s.probeOnce.Do(func() {
		s.native = s.store.HasVectorIndex(ctx, len(vector))
		if s.native {
			s.logger.Info("using native vector search")
		} else {
			s.logger.Info("no usable vector index, using in-memory search")
		}
	})

	if s.native {
		scored, err := s.store.VectorSearch(ctx, jobID, vector, limit)
		if err != nil {
			return nil, apperror.ErrDatabase.WithDetail("vector search failed").WithErr(err)
		}
		return scored, nil
	}
	return s.scanAll(ctx, jobID, vector, limit)
}

// scanAll loads the job's embeddings and ranks them by cosine similarity.
// TODO: replace the full sort with a bounded top-k heap if jobs grow past
// a few hundred thousand chunks.
func (s *Searcher) scanAll(ctx context.Context, jobID string, vector []float32, limit int) ([]store.ScoredChunk, error) {
	embeds, err := s.store.FindJobEmbeddings(ctx, jobID)
	if err != nil {
		return nil, apperror.ErrDatabase.WithDetail("failed to load embeddings").WithErr(err)
	}

	scored := make([]store.ScoredChunk, 0, len(embeds))
	for _, e := range embeds {
		scored = append(scored, store.ScoredChunk{
			ChunkID: e.ChunkID,
			Score:   CosineSimilarity(vector, e.Vector),
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}
