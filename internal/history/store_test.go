package history_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/seabattle/assets"
	"github.com/robalobadob/seabattle/internal/game"
	"github.com/robalobadob/seabattle/internal/history"
)

func newDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrations, err := assets.Migrations()
	require.NoError(t, err)
	for _, m := range migrations {
		_, err := db.Exec(m.SQL)
		require.NoError(t, err, m.Name)
	}
	return db
}

func TestStore_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s := history.NewStore(newDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, key := range []string{"a", "b", "c"} {
		require.NoError(t, s.Record(ctx, history.Result{
			Key:        key,
			Winner:     game.Player2,
			WinnerID:   "w-" + key,
			LoserID:    "l-" + key,
			Shots:      10 + i,
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "c", got[0].Key)
	assert.Equal(t, "b", got[1].Key)
	assert.Equal(t, game.Player2, got[0].Winner)
	assert.Equal(t, "w-c", got[0].WinnerID)
	assert.Equal(t, 12, got[0].Shots)
	assert.True(t, base.Add(2*time.Minute).Equal(got[0].FinishedAt))
}

func TestStore_RecentEmpty(t *testing.T) {
	got, err := history.NewStore(newDB(t)).Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}
