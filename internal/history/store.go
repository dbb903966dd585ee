package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/robalobadob/seabattle/internal/game"
)

// Result is one finished match.
type Result struct {
	Key        string    `json:"key"`
	Winner     game.Role `json:"winner"`
	WinnerID   string    `json:"winnerId"`
	LoserID    string    `json:"loserId"`
	Shots      int       `json:"shots"`
	FinishedAt time.Time `json:"finishedAt"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Record(ctx context.Context, r Result) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO match_results(session_key, winner, winner_id, loser_id, shots, finished_at)
		 VALUES(?,?,?,?,?,?)`,
		r.Key, string(r.Winner), r.WinnerID, r.LoserID, r.Shots, r.FinishedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// Recent returns up to limit matches, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, winner, winner_id, loser_id, shots, finished_at
		 FROM match_results
		 ORDER BY finished_at DESC, id DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Result{}
	for rows.Next() {
		var (
			r        Result
			winner   string
			finished string
		)
		if err := rows.Scan(&r.Key, &winner, &r.WinnerID, &r.LoserID, &r.Shots, &finished); err != nil {
			return nil, err
		}
		r.Winner = game.Role(winner)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
