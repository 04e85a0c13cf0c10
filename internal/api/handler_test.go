package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-repo-miner/internal/aggregator"
	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-miner/internal/errors"
)

type stubProgress struct {
	progress *domain.Progress
	err      error
}

func (s *stubProgress) LoadProgress(ctx context.Context) (*domain.Progress, error) {
	return s.progress, s.err
}

type stubBatches struct {
	infos []domain.BatchInfo
	err   error
}

func (s *stubBatches) List() ([]domain.BatchInfo, error) {
	return s.infos, s.err
}

type stubDatasets struct {
	consolidated []domain.Repository
	dataset      []domain.CategorizedRepository
	err          error
}

func (s *stubDatasets) LoadConsolidated() ([]domain.Repository, error) {
	return s.consolidated, s.err
}

func (s *stubDatasets) LoadDataset() ([]domain.CategorizedRepository, error) {
	return s.dataset, s.err
}

func newTestRouter(p *stubProgress, b *stubBatches, d *stubDatasets) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(p, b, d, aggregator.NewAggregator())
	return SetupRoutes(handler, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func serve(t *testing.T, router *gin.Engine, target string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	router.ServeHTTP(rec, req)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(&stubProgress{}, &stubBatches{}, &stubDatasets{})

	rec, body := serve(t, router, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"ok"`, string(body["status"]))
}

func TestGetProgress(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	progress := domain.NewProgress("run-1", "hash", now)
	progress.State = domain.RunStateMining
	progress.Accepted = []string{"a/one", "a/two"}
	progress.Rejected = []domain.Rejection{{Name: "a/three", Reason: "no_pull_requests"}}
	progress.NextIndex = 3
	progress.BatchesWritten = 1

	router := newTestRouter(&stubProgress{progress: progress}, &stubBatches{}, &stubDatasets{})
	rec, body := serve(t, router, "/api/v1/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats domain.Statistics
	require.NoError(t, json.Unmarshal(body["data"], &stats))
	assert.Equal(t, "run-1", stats.RunID)
	assert.Equal(t, domain.RunStateMining, stats.State)
	assert.Equal(t, 2, stats.TotalAccepted)
	assert.Equal(t, 1, stats.TotalRejected)
	assert.Equal(t, 3, stats.LastIndex)
	assert.Equal(t, 1, stats.BatchesWritten)
	assert.Equal(t, "2024-05-01T12:00:00Z", stats.UpdatedAt)
}

func TestGetProgressErrors(t *testing.T) {
	tests := []struct {
		name     string
		progress *stubProgress
		status   int
		code     string
	}{
		{"no run yet", &stubProgress{}, http.StatusNotFound, "NOT_FOUND"},
		{"corrupt state", &stubProgress{err: apperrors.NewCorruptStateError("bad progress", nil)}, http.StatusInternalServerError, "CORRUPT_STATE"},
		{"plain error", &stubProgress{err: errors.New("disk gone")}, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.progress, &stubBatches{}, &stubDatasets{})
			rec, body := serve(t, router, "/api/v1/progress")

			assert.Equal(t, tt.status, rec.Code)
			var apiErr struct {
				Code string `json:"code"`
			}
			require.NoError(t, json.Unmarshal(body["error"], &apiErr))
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestListBatches(t *testing.T) {
	t.Run("empty directory", func(t *testing.T) {
		router := newTestRouter(&stubProgress{}, &stubBatches{}, &stubDatasets{})
		rec, body := serve(t, router, "/api/v1/batches")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, string(body["data"]))
		assert.JSONEq(t, `0`, string(body["count"]))
	})

	t.Run("with batches", func(t *testing.T) {
		infos := []domain.BatchInfo{
			{Number: 1, Path: "batch_0001.json", Repositories: 10, StartIndex: 0, EndIndex: 14},
			{Number: 2, Path: "batch_0002.json", Repositories: 4, StartIndex: 14, EndIndex: 20},
		}
		router := newTestRouter(&stubProgress{}, &stubBatches{infos: infos}, &stubDatasets{})
		rec, body := serve(t, router, "/api/v1/batches")
		require.Equal(t, http.StatusOK, rec.Code)

		var got []domain.BatchInfo
		require.NoError(t, json.Unmarshal(body["data"], &got))
		require.Len(t, got, 2)
		assert.Equal(t, 2, got[1].Number)
		assert.Equal(t, 14, got[1].StartIndex)
	})
}

func categorized(name string, category domain.QualityCategory) domain.CategorizedRepository {
	return domain.CategorizedRepository{
		Repository:      domain.Repository{Name: name},
		QualityCategory: category,
	}
}

func TestGetDataset(t *testing.T) {
	datasets := &stubDatasets{dataset: []domain.CategorizedRepository{
		categorized("a/high", domain.QualityHigh),
		categorized("a/medium", domain.QualityMedium),
		categorized("b/high", domain.QualityHigh),
		categorized("a/lesser", domain.QualityLesser),
	}}
	router := newTestRouter(&stubProgress{}, &stubBatches{}, datasets)

	t.Run("all categories", func(t *testing.T) {
		rec, body := serve(t, router, "/api/v1/dataset")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `4`, string(body["count"]))
	})

	t.Run("single category", func(t *testing.T) {
		rec, body := serve(t, router, "/api/v1/dataset?category=high")
		require.Equal(t, http.StatusOK, rec.Code)

		var got []domain.CategorizedRepository
		require.NoError(t, json.Unmarshal(body["data"], &got))
		require.Len(t, got, 2)
		assert.Equal(t, "a/high", got[0].Name)
		assert.Equal(t, "b/high", got[1].Name)
	})

	t.Run("unknown category", func(t *testing.T) {
		rec, _ := serve(t, router, "/api/v1/dataset?category=Excluded")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("dataset missing", func(t *testing.T) {
		missing := newTestRouter(&stubProgress{}, &stubBatches{}, &stubDatasets{err: apperrors.NewNotFoundError("github_pr_repos_dataset.json")})
		rec, _ := serve(t, missing, "/api/v1/dataset")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetStats(t *testing.T) {
	repos := []domain.Repository{
		{Name: "a/1", Stars: 10, Watchers: 10, Forks: 1, AvgIssueCloseDays: 1},
		{Name: "a/2", Stars: 20, Watchers: 20, Forks: 2, AvgIssueCloseDays: 2},
		{Name: "a/3", Stars: 30, Watchers: 30, Forks: 3, AvgIssueCloseDays: 3},
	}
	router := newTestRouter(&stubProgress{}, &stubBatches{}, &stubDatasets{consolidated: repos})

	rec, body := serve(t, router, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats domain.DatasetStats
	require.NoError(t, json.Unmarshal(body["data"], &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 10.0, stats.Stars.Min)
	assert.Equal(t, 20.0, stats.Stars.Median)
	assert.Equal(t, 30.0, stats.Stars.Max)
	assert.Equal(t, 2.0, stats.AvgIssueCloseDays.Median)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(&stubProgress{}, &stubBatches{}, &stubDatasets{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/progress", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
