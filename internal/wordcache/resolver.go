// internal/wordcache/resolver.go
//
// Resolver is the cache-aside read path for word scoring:
// fast tier → slow tier → oracle, populating both tiers on an oracle hit.
// Unknown words are cached too (with Error set) so the oracle is consulted
// at most once per unknown word per puzzle day.

package wordcache

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/lontra-games/contexto-server/internal/oracle"
)

// Resolver resolves a word to its CachedWord, consulting the oracle only on
// a full cache miss.
type Resolver struct {
	cache  *Cache
	oracle oracle.Oracle
}

// NewResolver wires a Resolver over the cache and oracle.
func NewResolver(cache *Cache, o oracle.Oracle) *Resolver {
	return &Resolver{cache: cache, oracle: o}
}

// Cache exposes the underlying cache (reverse lookups for tips/reveal).
func (r *Resolver) Cache() *Cache { return r.cache }

// Resolve returns the scored entry for (gameID, word). Entries with a
// non-empty Error are valid results: the word exists as a guess but cannot
// be scored.
func (r *Resolver) Resolve(ctx context.Context, gameID int, word string) (*CachedWord, error) {
	word = Normalize(word)

	cw, ok, err := r.cache.Get(ctx, gameID, word)
	if err != nil {
		return nil, err
	}
	if ok {
		return cw, nil
	}

	scored, err := r.oracle.Score(ctx, gameID, word)
	switch {
	case errors.Is(err, oracle.ErrUnknownWord):
		cw = &CachedWord{GameID: gameID, Word: word, Error: "unknown word"}
	case err != nil:
		return nil, err
	default:
		cw = &CachedWord{GameID: gameID, Word: word, Lemma: scored.Lemma, Distance: scored.Distance}
	}

	if err := r.cache.Put(ctx, cw); err != nil {
		// The score is still good; a failed persistent write only costs a
		// future re-score.
		log.Warn().Err(err).Int("gameId", gameID).Str("word", word).Msg("cache write failed")
	}
	return cw, nil
}
