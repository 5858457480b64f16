// internal/puzzle/puzzle.go
//
// Puzzle day-index arithmetic and selection.
// Every calendar day maps to one integer day index (the gameId) relative to
// a fixed epoch; all rooms playing the same day share the same index, which
// is what lets the word cache be shared across rooms.

package puzzle

import (
	"crypto/rand"
	"errors"
	"math/big"
	"time"
)

// Epoch is day 0 of the puzzle calendar (UTC).
var Epoch = time.Date(2022, 2, 23, 0, 0, 0, 0, time.UTC)

// ErrInvalidSelector is returned for ids/dates outside [0, today].
var ErrInvalidSelector = errors.New("puzzle: invalid selector")

// IndexForDate converts a calendar date to its day index.
func IndexForDate(t time.Time) int {
	days := int(t.UTC().Truncate(24*time.Hour).Sub(Epoch).Hours() / 24)
	return days
}

// DateForIndex is the inverse of IndexForDate.
func DateForIndex(i int) time.Time {
	return Epoch.AddDate(0, 0, i)
}

// Today returns the current day index for the given clock reading.
func Today(now time.Time) int {
	return IndexForDate(now)
}

// Selector names which puzzle a new room should play: today's, an explicit
// day index, an explicit calendar date, or a uniformly random past day.
type Selector struct {
	gameID *int
	date   *time.Time
	random bool
}

// SelectToday targets the current day's puzzle.
func SelectToday() Selector { return Selector{} }

// SelectGame targets an explicit day index.
func SelectGame(id int) Selector { return Selector{gameID: &id} }

// SelectDate targets the puzzle of a calendar date.
func SelectDate(d time.Time) Selector { return Selector{date: &d} }

// SelectRandom targets a uniformly random day in [0, today).
func SelectRandom() Selector { return Selector{random: true} }

// Resolve turns the selector into a concrete day index against now.
func (s Selector) Resolve(now time.Time) (int, error) {
	today := Today(now)
	switch {
	case s.random:
		if today <= 0 {
			return 0, nil
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(today)))
		if err != nil {
			return 0, err
		}
		return int(n.Int64()), nil
	case s.gameID != nil:
		if *s.gameID < 0 || *s.gameID > today {
			return 0, ErrInvalidSelector
		}
		return *s.gameID, nil
	case s.date != nil:
		id := IndexForDate(*s.date)
		if id < 0 || id > today {
			return 0, ErrInvalidSelector
		}
		return id, nil
	default:
		return today, nil
	}
}
