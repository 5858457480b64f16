// internal/wordcache/cache.go
//
// Two-tier memoization of scored words, keyed by (puzzle day, word).
// Responsibilities:
//   - Shield the external scoring oracle from repeated lookups: the same
//     word guessed in any room playing the same day's puzzle is scored once.
//   - Fast tier: in-process maps guarded by an RWMutex, shared by all rooms.
//   - Slow tier: a persistent Store (SQLite in production); reads through it
//     on a fast-tier miss and warms the fast tier with whatever it finds.
//   - Reverse lookup by distance, used for tip generation and answer reveal.
//
// The key is the puzzle day index, NOT the room id — that is what makes the
// cache shareable across rooms. Entries are never evicted: distances for a
// past puzzle never change.

package wordcache

import (
	"context"
	"strings"
	"sync"
)

// CachedWord is one scored (or unscoreable) word for a puzzle day.
type CachedWord struct {
	GameID   int    `json:"gameId"`
	Word     string `json:"word"`
	Lemma    string `json:"lemma,omitempty"`
	Distance int    `json:"distance"`
	Error    string `json:"error,omitempty"` // non-empty when the word is unscoreable
}

// Store is the persistent tier. Implementations must treat Save as an
// upsert on the (gameID, word) unique key.
type Store interface {
	// Find returns the entry for (gameID, word) or (nil, nil) when absent.
	Find(ctx context.Context, gameID int, word string) (*CachedWord, error)

	// FindByDistance returns a scoreable entry at exactly distance for the
	// given day, or (nil, nil) when none is known yet.
	FindByDistance(ctx context.Context, gameID, distance int) (*CachedWord, error)

	// Save inserts the entry, falling back to an update when a concurrent
	// writer already inserted the same key.
	Save(ctx context.Context, cw *CachedWord) error
}

// Normalize lowercases and trims a raw guess before any lookup or store.
func Normalize(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// Cache is the two-tier cache. Safe for concurrent use; the fast tier uses
// plain map-level locking (writes are idempotent upserts, so strict
// linearizability across tiers is not needed).
type Cache struct {
	store Store

	mu     sync.RWMutex
	words  map[int]map[string]*CachedWord // gameID → word → entry
	byDist map[int]map[int]*CachedWord    // gameID → distance → entry (error-free only)
}

// NewCache builds a Cache over the given persistent store.
func NewCache(store Store) *Cache {
	return &Cache{
		store:  store,
		words:  make(map[int]map[string]*CachedWord),
		byDist: make(map[int]map[int]*CachedWord),
	}
}

// Get looks up a word: fast tier first, then the persistent store. A store
// hit warms the fast tier. ok=false means the caller must consult the
// oracle and Put the result back.
func (c *Cache) Get(ctx context.Context, gameID int, word string) (*CachedWord, bool, error) {
	word = Normalize(word)

	c.mu.RLock()
	cw, ok := c.words[gameID][word]
	c.mu.RUnlock()
	if ok {
		return cw, true, nil
	}

	cw, err := c.store.Find(ctx, gameID, word)
	if err != nil {
		return nil, false, err
	}
	if cw == nil {
		return nil, false, nil
	}
	c.warm(cw)
	return cw, true, nil
}

// Put stores a scored word in both tiers. The fast tier is written
// unconditionally; the persistent write is an upsert with last-writer-wins
// semantics.
func (c *Cache) Put(ctx context.Context, cw *CachedWord) error {
	cw.Word = Normalize(cw.Word)
	c.warm(cw)
	return c.store.Save(ctx, cw)
}

// GetByDistance is the reverse lookup: the known word at exactly distance
// for the given day, if any. Used for tips and answer reveal.
func (c *Cache) GetByDistance(ctx context.Context, gameID, distance int) (*CachedWord, bool, error) {
	c.mu.RLock()
	cw, ok := c.byDist[gameID][distance]
	c.mu.RUnlock()
	if ok {
		return cw, true, nil
	}

	cw, err := c.store.FindByDistance(ctx, gameID, distance)
	if err != nil {
		return nil, false, err
	}
	if cw == nil {
		return nil, false, nil
	}
	c.warm(cw)
	return cw, true, nil
}

// warm installs an entry into the fast-tier indexes.
func (c *Cache) warm(cw *CachedWord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.words[cw.GameID] == nil {
		c.words[cw.GameID] = make(map[string]*CachedWord)
	}
	c.words[cw.GameID][cw.Word] = cw
	if cw.Error == "" {
		if c.byDist[cw.GameID] == nil {
			c.byDist[cw.GameID] = make(map[int]*CachedWord)
		}
		c.byDist[cw.GameID][cw.Distance] = cw
	}
}
