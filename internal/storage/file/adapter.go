package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	"github.com/kurihiro0119/github-repo-miner/internal/fsutil"
	"github.com/kurihiro0119/github-repo-miner/internal/storage"
)

const (
	progressFile = "mining_progress.json"
	cacheDir     = "api_cache"
)

// fileStorage implements the Storage interface on plain files
type fileStorage struct {
	dir string
}

// NewFileStorage creates a file storage rooted at dir
func NewFileStorage(dir string) (storage.Storage, error) {
	s := &fileStorage{dir: dir}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates the directory layout
func (s *fileStorage) Migrate(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.dir, cacheDir), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// LoadProgress reads mining_progress.json
func (s *fileStorage) LoadProgress(ctx context.Context) (*domain.Progress, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, progressFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	return storage.DecodeProgress(data)
}

// SaveProgress replaces mining_progress.json atomically
func (s *fileStorage) SaveProgress(ctx context.Context, progress *domain.Progress) error {
	data, err := storage.EncodeProgress(progress)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(filepath.Join(s.dir, progressFile), data, 0o644)
}

// GetCachedResponse reads a cached response body
func (s *fileStorage) GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.cachePath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SaveCachedResponse stores a response body under its key
func (s *fileStorage) SaveCachedResponse(ctx context.Context, key string, body []byte) error {
	return fsutil.WriteFileAtomic(s.cachePath(key), body, 0o644)
}

func (s *fileStorage) cachePath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, cacheDir, hex.EncodeToString(sum[:])+".json")
}

// Close is a no-op for file storage
func (s *fileStorage) Close() error {
	return nil
}
