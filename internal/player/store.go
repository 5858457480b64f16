// internal/player/store.go
//
// SQLite-backed player records. The game core only ever handles the opaque
// player id; everything here is aggregate bookkeeping: games played/won,
// running average of guesses per finished game, and the last-activity
// timestamp that drives the 7-day inactivity sweep.

package player

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Player is one stored player record.
type Player struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	GamesPlayed    int       `json:"gamesPlayed"`
	GamesWon       int       `json:"gamesWon"`
	AverageGuesses float64   `json:"averageGuesses"`
	LastActivity   time.Time `json:"lastActivity"`
}

// Store persists player records.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Find loads a player by id; (nil, nil) when absent.
func (s *Store) Find(ctx context.Context, id string) (*Player, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, games_played, games_won, average_guesses, last_activity
		 FROM players WHERE id=?`, id)
	var p Player
	var last string
	err := row.Scan(&p.ID, &p.Name, &p.GamesPlayed, &p.GamesWon, &p.AverageGuesses, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.LastActivity, _ = time.Parse(time.RFC3339, last)
	return &p, nil
}

// Save upserts a player record.
func (s *Store) Save(ctx context.Context, p *Player) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (id, name, games_played, games_won, average_guesses, last_activity)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			games_played=excluded.games_played,
			games_won=excluded.games_won,
			average_guesses=excluded.average_guesses,
			last_activity=excluded.last_activity`,
		p.ID, p.Name, p.GamesPlayed, p.GamesWon, p.AverageGuesses,
		p.LastActivity.UTC().Format(time.RFC3339))
	return err
}

// Touch bumps a player's last-activity timestamp, creating the record if
// needed.
func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (id, name, last_activity) VALUES (?, '', ?)
		ON CONFLICT(id) DO UPDATE SET last_activity=excluded.last_activity`,
		id, at.UTC().Format(time.RFC3339))
	return err
}

// Count reports the number of stored players.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM players`).Scan(&n)
	return n, err
}

// InactiveSince returns ids of players whose last activity predates cutoff.
func (s *Store) InactiveSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM players WHERE last_activity < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes player records by id.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id=?`, id); err != nil {
			return err
		}
	}
	return nil
}
