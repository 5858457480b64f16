// internal/wordcache/sqlstore.go
//
// SQLite implementation of the persistent cache tier.
// cached_words carries a UNIQUE(game_id, word) constraint; Save races are
// resolved by falling back to an UPDATE when the INSERT hits the constraint
// (cache-aside with last-writer-wins, not a distributed lock).

package wordcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// SQLStore is a Store backed by database/sql + go-sqlite3.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

// Find loads one entry by (gameID, word); (nil, nil) when absent.
func (s *SQLStore) Find(ctx context.Context, gameID int, word string) (*CachedWord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT game_id, word, lemma, distance, error
		 FROM cached_words WHERE game_id=? AND word=?`, gameID, word)
	return scanCached(row)
}

// FindByDistance loads one scoreable entry at exactly distance; (nil, nil)
// when no such word is known yet.
func (s *SQLStore) FindByDistance(ctx context.Context, gameID, distance int) (*CachedWord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT game_id, word, lemma, distance, error
		 FROM cached_words WHERE game_id=? AND distance=? AND error='' LIMIT 1`, gameID, distance)
	return scanCached(row)
}

// Save inserts the entry; a unique-constraint violation means a concurrent
// writer got there first, so update in place instead.
func (s *SQLStore) Save(ctx context.Context, cw *CachedWord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cached_words (game_id, word, lemma, distance, error) VALUES (?,?,?,?,?)`,
		cw.GameID, cw.Word, cw.Lemma, cw.Distance, cw.Error)
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return fmt.Errorf("insert cached word: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE cached_words SET lemma=?, distance=?, error=? WHERE game_id=? AND word=?`,
		cw.Lemma, cw.Distance, cw.Error, cw.GameID, cw.Word)
	if err != nil {
		return fmt.Errorf("update cached word: %w", err)
	}
	return nil
}

// scanCached converts a row into a CachedWord, mapping no-rows to (nil, nil).
func scanCached(row *sql.Row) (*CachedWord, error) {
	var cw CachedWord
	err := row.Scan(&cw.GameID, &cw.Word, &cw.Lemma, &cw.Distance, &cw.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cw, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
