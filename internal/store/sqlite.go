// internal/store/sqlite.go
//
// SQLite-backed Store. Records live in the game_records table created by the
// server migrations (assets/sql). The *sql.DB is owned by the caller; Close
// does not close it.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalobadob/seabattle/internal/game"
)

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an opened and migrated database.
func NewSQLiteStore(db *sql.DB) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) Save(ctx context.Context, key string, rec *game.Record) error {
	b, err := encode(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO game_records (session_key, record, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(session_key) DO UPDATE SET
            record = excluded.record,
            updated_at = excluded.updated_at`,
		key, string(b), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Load(ctx context.Context, key string) (*game.Record, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM game_records WHERE session_key=?`, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return decode([]byte(raw))
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM game_records WHERE session_key=?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Close() error { return nil }
