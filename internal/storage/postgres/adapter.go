package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/github-repo-miner/internal/domain"
	"github.com/kurihiro0119/github-repo-miner/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS mining_progress (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		run_id TEXT NOT NULL,
		config_hash TEXT NOT NULL,
		state TEXT NOT NULL,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS api_cache (
		key TEXT PRIMARY KEY,
		body BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// LoadProgress loads the checkpointed progress row
func (s *postgresStorage) LoadProgress(ctx context.Context) (*domain.Progress, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM mining_progress WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return storage.DecodeProgress(data)
}

// SaveProgress upserts the progress row
func (s *postgresStorage) SaveProgress(ctx context.Context, progress *domain.Progress) error {
	data, err := storage.EncodeProgress(progress)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO mining_progress (id, run_id, config_hash, state, data, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			config_hash = EXCLUDED.config_hash,
			state = EXCLUDED.state,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
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
func (s *postgresStorage) GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM api_cache WHERE key = $1`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// SaveCachedResponse upserts a response body
func (s *postgresStorage) SaveCachedResponse(ctx context.Context, key string, body []byte) error {
	query := `
		INSERT INTO api_cache (key, body) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET
			body = EXCLUDED.body,
			created_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, key, body)
	return err
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}
