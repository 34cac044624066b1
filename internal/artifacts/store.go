package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store persists waveform artifact records. It works against both PostgreSQL
// and SQLite; queries are written with ? placeholders and rebound per driver.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store on top of an open database handle.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the artifacts table and its uniqueness index when they
// do not exist yet. Production PostgreSQL deployments run migrations out of
// band; this keeps SQLite and test databases self-contained.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS waveform_artifacts (
			asset_id     TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			location     TEXT NOT NULL,
			byte_size    BIGINT NOT NULL DEFAULT 0,
			sample_count INTEGER NOT NULL DEFAULT 0,
			created_at   TIMESTAMP NOT NULL,
			PRIMARY KEY (asset_id, content_hash)
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure artifacts schema: %w", err)
	}
	return nil
}

// Find returns the recorded artifact location for (assetID, contentHash), or
// an empty string when no record exists.
func (s *Store) Find(ctx context.Context, assetID, contentHash string) (string, error) {
	query := s.db.Rebind(`
		SELECT location
		FROM waveform_artifacts
		WHERE asset_id = ? AND content_hash = ?
	`)

	var location string
	err := s.db.GetContext(ctx, &location, query, assetID, contentHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up artifact: %w", err)
	}
	return location, nil
}

// Record writes the durable artifact record future idempotency checks rely
// on. Inserting an existing (assetID, contentHash) pair fails with the
// driver's uniqueness violation; callers decide how to treat it.
func (s *Store) Record(ctx context.Context, assetID, location, contentHash string, byteSize int64, sampleCount int) error {
	query := s.db.Rebind(`
		INSERT INTO waveform_artifacts (
			asset_id, content_hash, location, byte_size, sample_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query, assetID, contentHash, location, byteSize, sampleCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record artifact: %w", err)
	}

	s.logger.Info("Artifact recorded",
		slog.String("asset_id", assetID),
		slog.String("location", location),
	)
	return nil
}

// IsDuplicate reports whether err is a uniqueness violation on the artifact
// record, in either supported driver.
func IsDuplicate(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}
	return false
}
