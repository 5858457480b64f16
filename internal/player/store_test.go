package player

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`
		CREATE TABLE players (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			games_played INTEGER NOT NULL DEFAULT 0,
			games_won INTEGER NOT NULL DEFAULT 0,
			average_guesses REAL NOT NULL DEFAULT 0,
			last_activity TEXT NOT NULL DEFAULT ''
		)`)
	require.NoError(t, err)
	return db
}

func TestFindAbsentIsNilNil(t *testing.T) {
	s := NewStore(openTestDB(t))
	p, err := s.Find(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSaveFindRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(openTestDB(t))

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	in := &Player{ID: "p1", Name: "alice", GamesPlayed: 3, GamesWon: 2, AverageGuesses: 14.5, LastActivity: at}
	require.NoError(t, s.Save(ctx, in))

	got, err := s.Find(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, 3, got.GamesPlayed)
	assert.Equal(t, 2, got.GamesWon)
	assert.InDelta(t, 14.5, got.AverageGuesses, 1e-9)
	assert.True(t, got.LastActivity.Equal(at))

	// Save is an upsert.
	in.GamesPlayed = 4
	require.NoError(t, s.Save(ctx, in))
	got, err = s.Find(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.GamesPlayed)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTouchCreatesAndBumps(t *testing.T) {
	ctx := context.Background()
	s := NewStore(openTestDB(t))

	first := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Touch(ctx, "p1", first))

	p, err := s.Find(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.LastActivity.Equal(first))

	later := first.Add(2 * time.Hour)
	require.NoError(t, s.Touch(ctx, "p1", later))
	p, err = s.Find(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p.LastActivity.Equal(later))
}

func TestInactiveSinceAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore(openTestDB(t))

	cutoff := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Touch(ctx, "stale", cutoff.Add(-48*time.Hour)))
	require.NoError(t, s.Touch(ctx, "fresh", cutoff.Add(time.Hour)))

	ids, err := s.InactiveSince(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, ids)

	require.NoError(t, s.Delete(ctx, ids...))
	p, err := s.Find(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, p)
	p, err = s.Find(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, p)
}
