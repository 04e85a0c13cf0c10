package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-miner/internal/errors"
)

// Client is the API client for the github-repo-miner status API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetProgress retrieves the counters of the current mining run
func (c *Client) GetProgress(ctx context.Context) (*domain.Statistics, error) {
	var response struct {
		Data *domain.Statistics `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/progress", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// ListBatches retrieves the batch files written so far
func (c *Client) ListBatches(ctx context.Context) ([]domain.BatchInfo, error) {
	var response struct {
		Data []domain.BatchInfo `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/batches", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetDataset retrieves the categorized dataset. An empty category returns
// every kept repository.
func (c *Client) GetDataset(ctx context.Context, category domain.QualityCategory) ([]domain.CategorizedRepository, error) {
	params := url.Values{}
	if category != "" {
		params.Set("category", string(category))
	}

	var response struct {
		Data []domain.CategorizedRepository `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/dataset", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetStats retrieves distribution statistics of the consolidated dataset
func (c *Client) GetStats(ctx context.Context) (*domain.DatasetStats, error) {
	var response struct {
		Data *domain.DatasetStats `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/stats", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decodeError(resp, body)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// decodeError turns an error envelope back into an AppError so callers can
// use the errors package predicates
func decodeError(resp *http.Response, body []byte) error {
	var envelope struct {
		Error struct {
			Code    apperrors.ErrCode `json:"code"`
			Message string            `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code == "" {
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return &apperrors.AppError{
		Code:    envelope.Error.Code,
		Message: envelope.Error.Message,
	}
}
