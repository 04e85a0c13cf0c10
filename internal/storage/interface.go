package storage

import (
	"context"
	"encoding/json"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-miner/internal/errors"
)

// Storage is the abstract interface for the persistence layer
type Storage interface {
	// Progress operations. LoadProgress returns nil, nil when no run has
	// been checkpointed yet.
	LoadProgress(ctx context.Context) (*domain.Progress, error)
	SaveProgress(ctx context.Context, progress *domain.Progress) error

	// API response cache
	GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error)
	SaveCachedResponse(ctx context.Context, key string, body []byte) error

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}

// EncodeProgress serializes progress the same way for every backend
func EncodeProgress(progress *domain.Progress) ([]byte, error) {
	return json.MarshalIndent(progress, "", "  ")
}

// DecodeProgress parses a stored progress document
func DecodeProgress(data []byte) (*domain.Progress, error) {
	var progress domain.Progress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, apperrors.NewCorruptStateError("progress is not valid JSON", err)
	}
	if progress.RunID == "" || progress.ConfigHash == "" {
		return nil, apperrors.NewCorruptStateError("progress is missing run id or config hash", nil)
	}
	return &progress, nil
}
