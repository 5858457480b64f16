package wordcache

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lontra-games/contexto-server/internal/oracle"
)

// fakeStore is an in-memory Store with upsert semantics, mirroring the
// SQLite tier's insert-or-update behavior.
type fakeStore struct {
	rows  map[string]*CachedWord
	saves int
	finds int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*CachedWord)}
}

func storeKey(gameID int, word string) string { return fmt.Sprintf("%d|%s", gameID, word) }

func (f *fakeStore) Find(_ context.Context, gameID int, word string) (*CachedWord, error) {
	f.finds++
	return f.rows[storeKey(gameID, word)], nil
}

func (f *fakeStore) FindByDistance(_ context.Context, gameID, distance int) (*CachedWord, error) {
	for _, cw := range f.rows {
		if cw.GameID == gameID && cw.Distance == distance && cw.Error == "" {
			return cw, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Save(_ context.Context, cw *CachedWord) error {
	f.saves++
	cp := *cw
	f.rows[storeKey(cw.GameID, cw.Word)] = &cp
	return nil
}

// fakeOracle scores from a fixed table; anything else is unknown.
type fakeOracle struct {
	scores map[string]oracle.Scored
	calls  int
}

func (f *fakeOracle) Score(_ context.Context, gameID int, word string) (oracle.Scored, error) {
	f.calls++
	if s, ok := f.scores[storeKey(gameID, word)]; ok {
		return s, nil
	}
	return oracle.Scored{}, oracle.ErrUnknownWord
}

func TestPutIsIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	c := NewCache(st)

	require.NoError(t, c.Put(ctx, &CachedWord{GameID: 7, Word: "casa", Distance: 50}))
	require.NoError(t, c.Put(ctx, &CachedWord{GameID: 7, Word: "casa", Distance: 50}))
	assert.Len(t, st.rows, 1)

	// A third put with a different distance updates in place.
	require.NoError(t, c.Put(ctx, &CachedWord{GameID: 7, Word: "casa", Distance: 40}))
	assert.Len(t, st.rows, 1)
	assert.Equal(t, 40, st.rows[storeKey(7, "casa")].Distance)

	cw, ok, err := c.Get(ctx, 7, "casa")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 40, cw.Distance)
}

func TestGetChecksFastTierBeforeStore(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	c := NewCache(st)

	require.NoError(t, c.Put(ctx, &CachedWord{GameID: 1, Word: "lar", Distance: 0}))
	st.finds = 0

	for i := 0; i < 3; i++ {
		_, ok, err := c.Get(ctx, 1, "lar")
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Zero(t, st.finds, "fast-tier hits must not touch the store")
}

func TestGetWarmsFastTierFromStore(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.rows[storeKey(3, "porta")] = &CachedWord{GameID: 3, Word: "porta", Distance: 12}
	c := NewCache(st)

	_, ok, err := c.Get(ctx, 3, "porta")
	require.NoError(t, err)
	require.True(t, ok)

	st.finds = 0
	_, ok, _ = c.Get(ctx, 3, "porta")
	require.True(t, ok)
	assert.Zero(t, st.finds)
}

func TestGetNormalizesWord(t *testing.T) {
	ctx := context.Background()
	c := NewCache(newFakeStore())

	require.NoError(t, c.Put(ctx, &CachedWord{GameID: 2, Word: "  CASA ", Distance: 9}))
	cw, ok, err := c.Get(ctx, 2, "Casa")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "casa", cw.Word)
}

func TestGetByDistance(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	c := NewCache(st)

	require.NoError(t, c.Put(ctx, &CachedWord{GameID: 5, Word: "lar", Distance: 0}))
	require.NoError(t, c.Put(ctx, &CachedWord{GameID: 5, Word: "zzz", Error: "unknown word"}))

	cw, ok, err := c.GetByDistance(ctx, 5, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lar", cw.Word)

	// Error entries never appear in the distance index.
	_, ok, err = c.GetByDistance(ctx, 5, 0)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.GetByDistance(ctx, 5, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolverConsultsOracleOncePerWord(t *testing.T) {
	ctx := context.Background()
	orc := &fakeOracle{scores: map[string]oracle.Scored{
		storeKey(9, "casa"): {Word: "casa", Lemma: "casa", Distance: 300},
	}}
	r := NewResolver(NewCache(newFakeStore()), orc)

	cw, err := r.Resolve(ctx, 9, "casa")
	require.NoError(t, err)
	assert.Equal(t, 300, cw.Distance)

	_, err = r.Resolve(ctx, 9, "CASA")
	require.NoError(t, err)
	assert.Equal(t, 1, orc.calls, "second resolve must be served from cache")
}

func TestResolverCachesUnknownWords(t *testing.T) {
	ctx := context.Background()
	orc := &fakeOracle{scores: map[string]oracle.Scored{}}
	r := NewResolver(NewCache(newFakeStore()), orc)

	cw, err := r.Resolve(ctx, 9, "xyzzy")
	require.NoError(t, err)
	assert.NotEmpty(t, cw.Error)

	_, err = r.Resolve(ctx, 9, "xyzzy")
	require.NoError(t, err)
	assert.Equal(t, 1, orc.calls, "unknown words are cached too")
}

func TestResolverPropagatesOracleFailure(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(NewCache(newFakeStore()), failingOracle{})
	_, err := r.Resolve(ctx, 1, "casa")
	assert.Error(t, err)
}

type failingOracle struct{}

func (failingOracle) Score(context.Context, int, string) (oracle.Scored, error) {
	return oracle.Scored{}, errors.New("oracle down")
}
