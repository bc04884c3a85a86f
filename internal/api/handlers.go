// Package api exposes the job and search services over HTTP with a
// JSON:API-style envelope.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jamaly87/code-reader/internal/jobs"
	"github.com/jamaly87/code-reader/internal/models"
	"github.com/jamaly87/code-reader/internal/processor"
	"github.com/jamaly87/code-reader/internal/queue"
	"github.com/jamaly87/code-reader/internal/search"
	"github.com/jamaly87/code-reader/internal/store"
	"github.com/jamaly87/code-reader/pkg/apperror"
)

// Handler wires the HTTP surface to the services
type Handler struct {
	jobs      *jobs.Service
	processor *processor.Processor
	searcher  *search.Searcher
	queue     *queue.Queue
	store     store.Store
	logger    *zap.Logger
}

func NewHandler(jobSvc *jobs.Service, proc *processor.Processor, searcher *search.Searcher, q *queue.Queue, st store.Store, logger *zap.Logger) *Handler {
	return &Handler{
		jobs:      jobSvc,
		processor: proc,
		searcher:  searcher,
		queue:     q,
		store:     st,
		logger:    logger.Named("api"),
	}
}

// Health reports process liveness and database reachability
func (h *Handler) Health(c echo.Context) error {
	dbStatus := "connected"
	overall := "ok"
	if err := h.store.Ping(c.Request().Context()); err != nil {
		dbStatus = "disconnected"
		overall = "degraded"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services": map[string]any{
			"database": dbStatus,
		},
	})
}

type createTaskRequest struct {
	RepositoryPath string                 `json:"repositoryPath"`
	Identifier     string                 `json:"identifier"`
	Config         *models.JobConfigPatch `json:"config,omitempty"`
}

// CreateTask creates a new indexing job for a repository
func (h *Handler) CreateTask(c echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrValidation.WithDetail("malformed request body").WithErr(err)
	}
	if req.RepositoryPath == "" {
		return apperror.ErrValidation.WithDetail("repositoryPath is required")
	}

	result, err := h.jobs.Create(c.Request().Context(), jobs.CreateRequest{
		Identifier:     req.Identifier,
		RepositoryPath: req.RepositoryPath,
		Config:         req.Config,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"data": taskResource(result.Job),
		"meta": map[string]any{
			"skippedFiles": len(result.SkippedFiles),
		},
	})
}

// GetTask returns one job by id, with computed percent complete
func (h *Handler) GetTask(c echo.Context) error {
	job, err := h.jobs.GetByID(c.Request().Context(), c.Param("jobId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"data": taskResource(job)})
}

// GetTaskByIdentifier returns the latest version for an identifier
func (h *Handler) GetTaskByIdentifier(c echo.Context) error {
	job, err := h.jobs.GetByIdentifier(c.Request().Context(), c.Param("identifier"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"data": taskResource(job)})
}

type processRequest struct {
	JobID      string `json:"jobId,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	FileLimit  int    `json:"fileLimit,omitempty"`
}

// StartProcess enqueues a job and answers 202 with its queue position
func (h *Handler) StartProcess(c echo.Context) error {
	var req processRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrValidation.WithDetail("malformed request body").WithErr(err)
	}
	if req.FileLimit < 0 {
		return apperror.ErrValidation.WithDetail("fileLimit must not be negative")
	}

	ctx := c.Request().Context()
	job, err := h.jobs.Resolve(ctx, req.JobID, req.Identifier)
	if err != nil {
		return err
	}

	position, err := h.processor.StartProcessing(ctx, job.JobID, processor.StartOptions{
		FileLimit: req.FileLimit,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"data": map[string]any{
			"type": "task",
			"id":   job.JobID,
			"attributes": map[string]any{
				"status":        "queued",
				"queuePosition": position,
			},
		},
	})
}

// StopProcess requests a cooperative stop of a running job
func (h *Handler) StopProcess(c echo.Context) error {
	var req processRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrValidation.WithDetail("malformed request body").WithErr(err)
	}

	ctx := c.Request().Context()
	job, err := h.jobs.Resolve(ctx, req.JobID, req.Identifier)
	if err != nil {
		return err
	}
	if err := h.processor.StopProcessing(ctx, job.JobID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": map[string]any{
			"type": "task",
			"id":   job.JobID,
			"attributes": map[string]any{
				"status": "stopping",
			},
		},
	})
}

type searchRequest struct {
	Query      string   `json:"query"`
	JobID      string   `json:"jobId,omitempty"`
	Identifier string   `json:"identifier,omitempty"`
	Limit      *int     `json:"limit,omitempty"`
	MinScore   *float64 `json:"minScore,omitempty"`
}

// SearchCode runs a semantic search over an indexed repository
func (h *Handler) SearchCode(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrValidation.WithDetail("malformed request body").WithErr(err)
	}

	q := search.Query{
		Query:      req.Query,
		JobID:      req.JobID,
		Identifier: req.Identifier,
		Limit:      search.DefaultLimit,
		MinScore:   search.DefaultMinScore,
	}
	if req.Limit != nil {
		q.Limit = *req.Limit
	}
	if req.MinScore != nil {
		q.MinScore = *req.MinScore
	}

	results, err := h.searcher.Search(c.Request().Context(), q)
	if err != nil {
		return err
	}
	if results == nil {
		results = []search.Result{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": map[string]any{
			"type": "searchResults",
			"attributes": map[string]any{
				"results": results,
			},
		},
		"meta": map[string]any{
			"count": len(results),
		},
	})
}

// GetQueue reports the queue's current job and backlog length
func (h *Handler) GetQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"data": map[string]any{
			"type": "queue",
			"attributes": map[string]any{
				"currentJobId": h.queue.CurrentJobID(),
				"queueLength":  h.queue.Len(),
			},
		},
	})
}

// taskResource renders a job as a JSON:API resource object
func taskResource(job *models.Job) map[string]any {
	progress := map[string]any{
		"totalFiles":      job.Progress.TotalFiles,
		"processedFiles":  job.Progress.ProcessedFiles,
		"currentBatch":    job.Progress.CurrentBatch,
		"totalBatches":    job.Progress.TotalBatches,
		"percentComplete": job.Progress.PercentComplete(),
	}

	attributes := map[string]any{
		"identifier":           job.Identifier,
		"version":              job.Version,
		"repositoryPath":       job.RepositoryPath,
		"status":               job.Status,
		"progress":             progress,
		"config":               job.Config,
		"recommendedFileLimit": job.RecommendedFileLimit,
		"createdAt":            job.CreatedAt,
		"updatedAt":            job.UpdatedAt,
	}
	if job.CompletedAt != nil {
		attributes["completedAt"] = job.CompletedAt
	}
	if job.Error != "" {
		attributes["error"] = job.Error
	}

	return map[string]any{
		"type":       "task",
		"id":         job.JobID,
		"attributes": attributes,
	}
}
