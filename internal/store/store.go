// internal/store/store.go
//
// Persistence contract for battle records.
// One record per session key; the record is overwritten on every state-changing
// battle event and deleted when the game ends.
//
// Backends:
//   - memory (this package): ephemeral, for tests and local play.
//   - SQLite: default, shares the server's database file.
//   - file: one pretty-printed JSON document per key in a directory.
//   - Redis: string value per key under a configurable prefix.
//
// Writers are serialized per key by the session queue, so backends need no
// record-level locking of their own.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/robalobadob/seabattle/internal/game"
)

// ErrNotFound is returned by Load when no record exists for a key.
var ErrNotFound = errors.New("record not found")

// Store defines the persistence interface for battle records.
type Store interface {
	// Save durably overwrites the record for key.
	Save(ctx context.Context, key string, rec *game.Record) error

	// Load returns the record for key or ErrNotFound.
	Load(ctx context.Context, key string) (*game.Record, error)

	// Delete removes the record for key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

func encode(rec *game.Record) ([]byte, error) {
	if rec == nil {
		return nil, errors.New("nil record")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return b, nil
}

func decode(b []byte) (*game.Record, error) {
	var rec game.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}
