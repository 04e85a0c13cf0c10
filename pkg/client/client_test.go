package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-miner/internal/errors"
)

func newTestServer(t *testing.T, routes map[string]string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.RequestURI()]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"no route"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGetProgress(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/api/v1/progress": `{"data":{"run_id":"run-1","state":"MINING","total_accepted":12,"total_rejected":3,"last_index":15,"batches_written":1}}`,
	}, http.StatusOK)

	stats, err := NewClient(server.URL + "/").GetProgress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", stats.RunID)
	assert.Equal(t, domain.RunStateMining, stats.State)
	assert.Equal(t, 12, stats.TotalAccepted)
	assert.Equal(t, 15, stats.LastIndex)
}

func TestListBatches(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/api/v1/batches": `{"data":[{"batch_number":1,"repositories":10},{"batch_number":2,"repositories":2}],"count":2}`,
	}, http.StatusOK)

	infos, err := NewClient(server.URL).ListBatches(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, 2, infos[1].Number)
	assert.Equal(t, 2, infos[1].Repositories)
}

func TestGetDataset(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/api/v1/dataset":               `{"data":[{"name":"a/one","quality_category":"high"},{"name":"a/two","quality_category":"lesser"}],"count":2}`,
		"/api/v1/dataset?category=high": `{"data":[{"name":"a/one","quality_category":"high"}],"count":1}`,
	}, http.StatusOK)
	c := NewClient(server.URL)

	all, err := c.GetDataset(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	high, err := c.GetDataset(context.Background(), domain.QualityHigh)
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, "a/one", high[0].Name)
	assert.Equal(t, domain.QualityHigh, high[0].QualityCategory)
}

func TestGetStats(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/api/v1/stats": `{"data":{"total":3,"stars":{"min":1,"q1":1.5,"median":2,"q3":2.5,"max":3},"categories":{"high":1}}}`,
	}, http.StatusOK)

	stats, err := NewClient(server.URL).GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2.0, stats.Stars.Median)
	assert.Equal(t, 1, stats.Categories[domain.QualityHigh])
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := newTestServer(t, map[string]string{"/health": `{"status":"ok"}`}, http.StatusOK)
		assert.NoError(t, NewClient(server.URL).HealthCheck(context.Background()))
	})

	t.Run("unhealthy", func(t *testing.T) {
		server := newTestServer(t, map[string]string{"/health": `{"status":"degraded"}`}, http.StatusOK)
		err := NewClient(server.URL).HealthCheck(context.Background())
		assert.ErrorContains(t, err, "degraded")
	})
}

func TestErrorEnvelope(t *testing.T) {
	t.Run("app error", func(t *testing.T) {
		server := newTestServer(t, map[string]string{}, http.StatusOK)

		_, err := NewClient(server.URL).GetProgress(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("unstructured body", func(t *testing.T) {
		server := newTestServer(t, map[string]string{"/api/v1/stats": `upstream unavailable`}, http.StatusBadGateway)

		_, err := NewClient(server.URL).GetStats(context.Background())
		require.Error(t, err)
		assert.ErrorContains(t, err, "502")
		assert.ErrorContains(t, err, "upstream unavailable")
	})
}

func TestContextCancellation(t *testing.T) {
	server := newTestServer(t, map[string]string{"/health": `{"status":"ok"}`}, http.StatusOK)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewClient(server.URL).HealthCheck(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
