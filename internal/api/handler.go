package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/github-repo-miner/internal/aggregator"
	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-miner/internal/errors"
)

// ProgressLoader loads the committed mining progress
type ProgressLoader interface {
	LoadProgress(ctx context.Context) (*domain.Progress, error)
}

// BatchLister lists the batch files of the current run
type BatchLister interface {
	List() ([]domain.BatchInfo, error)
}

// DatasetLoader reads the consolidated and the categorized datasets
type DatasetLoader interface {
	LoadConsolidated() ([]domain.Repository, error)
	LoadDataset() ([]domain.CategorizedRepository, error)
}

// Handler handles API requests
type Handler struct {
	progress   ProgressLoader
	batches    BatchLister
	datasets   DatasetLoader
	aggregator aggregator.Aggregator
}

// NewHandler creates a new API handler
func NewHandler(progress ProgressLoader, batches BatchLister, datasets DatasetLoader, agg aggregator.Aggregator) *Handler {
	return &Handler{
		progress:   progress,
		batches:    batches,
		datasets:   datasets,
		aggregator: agg,
	}
}

// datasetQuery is bound from the query string of GET /api/v1/dataset
type datasetQuery struct {
	Category string `form:"category" binding:"omitempty,oneof=high medium lesser"`
}

// GetProgress returns the counters of the current run
// GET /api/v1/progress
func (h *Handler) GetProgress(c *gin.Context) {
	progress, err := h.progress.LoadProgress(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if progress == nil {
		respondError(c, apperrors.NewNotFoundError("mining progress"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": progress.Statistics(),
	})
}

// ListBatches returns the batch files written so far
// GET /api/v1/batches
func (h *Handler) ListBatches(c *gin.Context) {
	infos, err := h.batches.List()
	if err != nil {
		respondError(c, err)
		return
	}
	if infos == nil {
		infos = []domain.BatchInfo{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  infos,
		"count": len(infos),
	})
}

// GetDataset returns the categorized dataset, optionally narrowed to one category
// GET /api/v1/dataset?category=high
func (h *Handler) GetDataset(c *gin.Context) {
	var query datasetQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, apperrors.NewBadRequestError("category must be one of high, medium, lesser"))
		return
	}

	repos, err := h.datasets.LoadDataset()
	if err != nil {
		respondError(c, err)
		return
	}

	result := make([]domain.CategorizedRepository, 0, len(repos))
	for _, r := range repos {
		if query.Category == "" || string(r.QualityCategory) == query.Category {
			result = append(result, r)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  result,
		"count": len(result),
	})
}

// GetStats returns distribution statistics over the consolidated repositories
// GET /api/v1/stats
func (h *Handler) GetStats(c *gin.Context) {
	repos, err := h.datasets.LoadConsolidated()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": h.aggregator.Stats(repos),
	})
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeUnauthorized:
			status = http.StatusUnauthorized
		case apperrors.ErrCodeForbidden:
			status = http.StatusForbidden
		case apperrors.ErrCodeBadRequest, apperrors.ErrCodeInvalidConfig:
			status = http.StatusBadRequest
		case apperrors.ErrCodeRateLimited:
			status = http.StatusTooManyRequests
		case apperrors.ErrCodeConfigMismatch, apperrors.ErrCodeAlreadyExists:
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}
