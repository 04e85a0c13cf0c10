package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	"github.com/kurihiro0119/github-repo-miner/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS mining_progress (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		run_id TEXT NOT NULL,
		config_hash TEXT NOT NULL,
		state TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS api_cache (
		key TEXT PRIMARY KEY,
		body BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// LoadProgress loads the checkpointed progress row
func (s *sqliteStorage) LoadProgress(ctx context.Context) (*domain.Progress, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM mining_progress WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return storage.DecodeProgress([]byte(data))
}

// SaveProgress replaces the progress row
func (s *sqliteStorage) SaveProgress(ctx context.Context, progress *domain.Progress) error {
	data, err := storage.EncodeProgress(progress)
	if err != nil {
		return err
	}

	query := `
		INSERT OR REPLACE INTO mining_progress (id, run_id, config_hash, state, data, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		progress.RunID,
		progress.ConfigHash,
		string(progress.State),
		string(data),
		time.Now().UTC(),
	)
	return err
}

// GetCachedResponse returns a cached response body
func (s *sqliteStorage) GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM api_cache WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// SaveCachedResponse stores a response body
func (s *sqliteStorage) SaveCachedResponse(ctx context.Context, key string, body []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO api_cache (key, body) VALUES (?, ?)`, key, body)
	return err
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
