// Package jobs manages the lifecycle of indexing jobs: creation with
// version sequencing, lookups, status transitions and version pruning.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jamaly87/code-reader/internal/indexer"
	"github.com/jamaly87/code-reader/internal/models"
	"github.com/jamaly87/code-reader/internal/store"
	"github.com/jamaly87/code-reader/pkg/apperror"
)

// maxVersions is how many versions of an identifier are retained; older
// ones are pruned together with their files, chunks and embeddings.
const maxVersions = 3

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{2,100}$`)

// Service owns job records in the store
type Service struct {
	store  store.Store
	logger *zap.Logger
}

func NewService(st store.Store, logger *zap.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.Named("jobs"),
	}
}

// CreateRequest carries the parameters of a new indexing job
type CreateRequest struct {
	Identifier     string
	RepositoryPath string
	Config         *models.JobConfigPatch
}

// CreateResult is the created job plus what the initial scan skipped
type CreateResult struct {
	Job          *models.Job
	SkippedFiles []indexer.SkippedFile
}

// Create validates the request, scans the repository to size the job,
// stores it as pending with the next version for its identifier, and
// prunes versions beyond the retention limit.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if !identifierPattern.MatchString(req.Identifier) {
		return nil, apperror.ErrValidation.WithDetail(
			"identifier must be 2-100 characters of letters, digits, underscore or hyphen")
	}

	info, err := os.Stat(req.RepositoryPath)
	if err != nil {
		return nil, apperror.ErrInvalidPath.WithDetail("repository path %q is not accessible", req.RepositoryPath).WithErr(err)
	}
	if !info.IsDir() {
		return nil, apperror.ErrInvalidPath.WithDetail("repository path %q is not a directory", req.RepositoryPath)
	}

	cfg := models.DefaultJobConfig()
	req.Config.ApplyTo(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, apperror.ErrValidation.WithDetail("%s", err.Error())
	}

	scan, err := indexer.NewScanner(cfg).Scan(req.RepositoryPath)
	if err != nil {
		return nil, apperror.ErrInvalidPath.WithDetail("failed to scan repository").WithErr(err)
	}

	versions, err := s.store.FindJobVersions(ctx, req.Identifier)
	if err != nil {
		return nil, apperror.ErrDatabase.WithDetail("failed to look up versions").WithErr(err)
	}
	version := 1
	if len(versions) > 0 {
		version = versions[0].Version + 1
	}

	now := time.Now().UTC()
	job := &models.Job{
		JobID:          uuid.NewString(),
		Identifier:     req.Identifier,
		Version:        version,
		RepositoryPath: req.RepositoryPath,
		Status:         models.JobStatusPending,
		Progress: models.JobProgress{
			TotalFiles: len(scan.Files),
		},
		Config:               cfg,
		RecommendedFileLimit: RecommendedFileLimit(cfg.ChunkSize),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.store.InsertJob(ctx, job); err != nil {
		return nil, apperror.ErrDatabase.WithDetail("failed to store job").WithErr(err)
	}

	s.logger.Info("job created",
		zap.String("jobId", job.JobID),
		zap.String("identifier", job.Identifier),
		zap.Int("version", job.Version),
		zap.Int("totalFiles", job.Progress.TotalFiles),
	)

	s.pruneVersions(ctx, versions)

	return &CreateResult{Job: job, SkippedFiles: scan.SkippedFiles}, nil
}

// RecommendedFileLimit derives the advisory per-run file limit from the
// chunk size: roughly 200k tokens of embedding work, assuming an average
// of 1.5 chunks per file, floored at 10.
func RecommendedFileLimit(chunkSize int) int {
	limit := int(math.Floor(200000 / (float64(chunkSize) * 1.5)))
	if limit < 10 {
		limit = 10
	}
	return limit
}

// pruneVersions removes versions beyond the retention limit. versions is
// the pre-create list, newest first, so entries from index maxVersions-1
// on are now out of the window. Prune failures are logged, never surfaced:
// the new job is already in place.
func (s *Service) pruneVersions(ctx context.Context, versions []models.Job) {
	if len(versions) < maxVersions {
		return
	}
	for _, old := range versions[maxVersions-1:] {
		if err := s.deleteJobData(ctx, old.JobID); err != nil {
			s.logger.Warn("failed to prune old version",
				zap.String("jobId", old.JobID),
				zap.Int("version", old.Version),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("pruned old version",
			zap.String("identifier", old.Identifier),
			zap.Int("version", old.Version),
		)
	}
}

// deleteJobData removes a job and its derived data, most-derived first, so
// an interrupted prune never leaves embeddings without their job.
func (s *Service) deleteJobData(ctx context.Context, jobID string) error {
	if err := s.store.DeleteJobEmbeddings(ctx, jobID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	if err := s.store.DeleteJobChunks(ctx, jobID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.store.DeleteJobFiles(ctx, jobID); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}
	if err := s.store.DeleteJob(ctx, jobID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// GetByID fetches one job by its id
func (s *Service) GetByID(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.store.FindJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.ErrTaskNotFound.WithDetail("no task with id %q", jobID)
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithDetail("failed to look up task").WithErr(err)
	}
	return job, nil
}

// GetByIdentifier fetches the latest version for an identifier
func (s *Service) GetByIdentifier(ctx context.Context, identifier string) (*models.Job, error) {
	job, err := s.store.FindLatestJob(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.ErrTaskNotFound.WithDetail("no task with identifier %q", identifier)
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithDetail("failed to look up task").WithErr(err)
	}
	return job, nil
}

// Resolve finds a job by id when given, otherwise by identifier. Exactly
// one of the two must be set.
func (s *Service) Resolve(ctx context.Context, jobID, identifier string) (*models.Job, error) {
	switch {
	case jobID != "":
		return s.GetByID(ctx, jobID)
	case identifier != "":
		return s.GetByIdentifier(ctx, identifier)
	default:
		return nil, apperror.ErrValidation.WithDetail("either jobId or identifier is required")
	}
}

// UpdateStatus transitions a job, recording the error message on failure
func (s *Service) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error {
	if err := s.store.UpdateJobStatus(ctx, jobID, status, errMsg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperror.ErrTaskNotFound.WithDetail("no task with id %q", jobID)
		}
		return apperror.ErrDatabase.WithDetail("failed to update task status").WithErr(err)
	}
	return nil
}

// UpdateProgress applies a partial progress update
func (s *Service) UpdateProgress(ctx context.Context, jobID string, patch store.ProgressPatch) error {
	if err := s.store.UpdateJobProgress(ctx, jobID, patch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperror.ErrTaskNotFound.WithDetail("no task with id %q", jobID)
		}
		return apperror.ErrDatabase.WithDetail("failed to update task progress").WithErr(err)
	}
	return nil
}
