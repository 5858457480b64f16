package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lontra-games/contexto-server/internal/oracle"
	"github.com/lontra-games/contexto-server/internal/player"
	"github.com/lontra-games/contexto-server/internal/puzzle"
	"github.com/lontra-games/contexto-server/internal/room"
	"github.com/lontra-games/contexto-server/internal/snowflake"
	"github.com/lontra-games/contexto-server/internal/wordcache"
)

// memStore is an in-memory wordcache.Store.
type memStore struct {
	rows map[int]map[string]*wordcache.CachedWord
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int]map[string]*wordcache.CachedWord)}
}

func (m *memStore) Find(_ context.Context, gameID int, word string) (*wordcache.CachedWord, error) {
	return m.rows[gameID][word], nil
}

func (m *memStore) FindByDistance(_ context.Context, gameID, distance int) (*wordcache.CachedWord, error) {
	for _, cw := range m.rows[gameID] {
		if cw.Distance == distance && cw.Error == "" {
			return cw, nil
		}
	}
	return nil, nil
}

func (m *memStore) Save(_ context.Context, cw *wordcache.CachedWord) error {
	if m.rows[cw.GameID] == nil {
		m.rows[cw.GameID] = make(map[string]*wordcache.CachedWord)
	}
	cp := *cw
	m.rows[cw.GameID][cw.Word] = &cp
	return nil
}

// tableOracle scores from a fixed table; anything else is unknown.
type tableOracle struct {
	scores map[string]int
}

func (o tableOracle) Score(_ context.Context, _ int, word string) (oracle.Scored, error) {
	if d, ok := o.scores[word]; ok {
		return oracle.Scored{Word: word, Lemma: word, Distance: d}, nil
	}
	return oracle.Scored{}, oracle.ErrUnknownWord
}

// memPlayers is an in-memory PlayerRepo.
type memPlayers struct {
	rows map[string]*player.Player
}

func newMemPlayers() *memPlayers {
	return &memPlayers{rows: make(map[string]*player.Player)}
}

func (m *memPlayers) Find(_ context.Context, id string) (*player.Player, error) {
	if p, ok := m.rows[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *memPlayers) Save(_ context.Context, p *player.Player) error {
	cp := *p
	m.rows[p.ID] = &cp
	return nil
}

func (m *memPlayers) Touch(_ context.Context, id string, at time.Time) error {
	if p, ok := m.rows[id]; ok {
		p.LastActivity = at
		return nil
	}
	m.rows[id] = &player.Player{ID: id, LastActivity: at}
	return nil
}

func (m *memPlayers) InactiveSince(_ context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	for id, p := range m.rows {
		if p.LastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memPlayers) Delete(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(m.rows, id)
	}
	return nil
}

type fixture struct {
	core    *Core
	players *memPlayers
	cache   *wordcache.Cache
}

func newFixture(scores map[string]int) *fixture {
	cache := wordcache.NewCache(newMemStore())
	resolver := wordcache.NewResolver(cache, tableOracle{scores: scores})
	registry := room.NewRegistry(snowflake.New(), resolver)
	players := newMemPlayers()
	return &fixture{
		core:    New(registry, players, cache),
		players: players,
		cache:   cache,
	}
}

func day1027Scores() map[string]int {
	return map[string]int{"casa": 300, "janela": 200, "porta": 120, "teto": 45, "lar": 0}
}

// eventsOfType pulls all events with the given type.
func eventsOfType(events []Event, typ string) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestCooperativeScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(day1027Scores())

	events := f.core.CreateRoom(ctx, "playerA", room.ModeCooperative, puzzle.SelectGame(1027), room.Options{})
	require.Len(t, events, 1)
	require.Equal(t, "room_joined", events[0].Type)
	snap := events[0].Payload.(RoomJoinedPayload)
	roomID := snap.ID
	assert.Equal(t, 1027, snap.GameID)
	assert.True(t, snap.IsHost)

	events = f.core.JoinRoom(ctx, "playerB", roomID)
	require.Len(t, events, 2)
	assert.Equal(t, "room_joined", events[0].Type)
	joined := eventsOfType(events, "player_joined")
	require.Len(t, joined, 1)
	assert.Equal(t, ToOthers, joined[0].Audience)

	// A guesses "casa" → 300, room not finished.
	events = f.core.Guess(ctx, "playerA", "casa")
	results := eventsOfType(events, "guess_result")
	require.Len(t, results, 1)
	gr := results[0].Payload.(GuessResultPayload)
	assert.Equal(t, 300, gr.Guess.Distance)
	assert.False(t, gr.GameFinished)
	assert.Empty(t, eventsOfType(events, "game_finished"))

	// B guesses "lar" → 0, room finishes and both see the reveal.
	events = f.core.Guess(ctx, "playerB", "lar")
	results = eventsOfType(events, "guess_result")
	require.Len(t, results, 1)
	assert.True(t, results[0].Payload.(GuessResultPayload).GameFinished)

	finished := eventsOfType(events, "game_finished")
	require.Len(t, finished, 1)
	assert.Equal(t, ToRoom, finished[0].Audience)
	payload := finished[0].Payload.(GameFinishedPayload)
	assert.Equal(t, "playerB", payload.Winner)
	assert.Equal(t, "lar", payload.Answer)

	// No further guessing.
	events = f.core.Guess(ctx, "playerA", "teto")
	errs := eventsOfType(events, "error")
	require.Len(t, errs, 1)
	assert.Equal(t, "game_finished", errs[0].Payload.(ErrorPayload).Code)

	// Stats settled for both members.
	a, _ := f.players.Find(ctx, "playerA")
	b, _ := f.players.Find(ctx, "playerB")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, 1, a.GamesPlayed)
	assert.Equal(t, 0, a.GamesWon)
	assert.Equal(t, 1, b.GamesPlayed)
	assert.Equal(t, 1, b.GamesWon)
	assert.Equal(t, 1.0, b.AverageGuesses)
}

func TestGuessOutsideRoom(t *testing.T) {
	f := newFixture(day1027Scores())
	events := f.core.Guess(context.Background(), "loner", "casa")
	require.Len(t, events, 1)
	assert.Equal(t, "not_in_room", events[0].Payload.(ErrorPayload).Code)
}

func TestHiddenModeMasksOthersView(t *testing.T) {
	ctx := context.Background()
	f := newFixture(day1027Scores())

	events := f.core.CreateRoom(ctx, "host", room.ModeBattleRoyale, puzzle.SelectGame(1027), room.Options{})
	roomID := events[0].Payload.(RoomJoinedPayload).ID
	f.core.JoinRoom(ctx, "p2", roomID)
	f.core.StartGame(ctx, "host")

	events = f.core.Guess(ctx, "host", "casa")
	others := eventsOfType(events, "player_guess")
	require.Len(t, others, 1)
	pg := others[0].Payload.(PlayerGuessPayload)
	assert.Empty(t, pg.Word, "hidden mode must not leak words to others")
	assert.Equal(t, 300, pg.Distance)
	assert.True(t, pg.Hidden)
}

func TestCompetitiveIndividualCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(day1027Scores())

	events := f.core.CreateRoom(ctx, "p1", room.ModeCompetitive, puzzle.SelectGame(1027), room.Options{})
	roomID := events[0].Payload.(RoomJoinedPayload).ID
	f.core.JoinRoom(ctx, "p2", roomID)

	events = f.core.Guess(ctx, "p1", "lar")
	finished := eventsOfType(events, "game_finished")
	require.Len(t, finished, 1)
	assert.Equal(t, ToCaller, finished[0].Audience, "only the completer's game is over")

	// The room stays live for p2.
	events = f.core.Guess(ctx, "p2", "casa")
	assert.Empty(t, eventsOfType(events, "error"))

	p1, _ := f.players.Find(ctx, "p1")
	require.NotNil(t, p1)
	assert.Equal(t, 1, p1.GamesWon)
}

func TestLeaveRoomEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(day1027Scores())

	events := f.core.CreateRoom(ctx, "p1", room.ModeCooperative, puzzle.SelectGame(1027), room.Options{})
	roomID := events[0].Payload.(RoomJoinedPayload).ID
	f.core.JoinRoom(ctx, "p2", roomID)

	events = f.core.LeaveRoom(ctx, "p2")
	assert.Len(t, eventsOfType(events, "room_left"), 1)
	assert.Len(t, eventsOfType(events, "player_left"), 1)

	// Leaving when not in a room still acks with room_left only.
	events = f.core.LeaveRoom(ctx, "p2")
	assert.Len(t, events, 1)
	assert.Equal(t, "room_left", events[0].Type)
}

func TestTipPlaysCachedCloserWord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(day1027Scores())

	events := f.core.CreateRoom(ctx, "p1", room.ModeCooperative, puzzle.SelectGame(1027), room.Options{AllowTips: true})
	require.Equal(t, "room_joined", events[0].Type)

	// Warm the cache with a word at distance 200 ("janela"): another room
	// on the same day already scored it.
	_, err := wordcache.NewResolver(f.cache, tableOracle{scores: day1027Scores()}).Resolve(ctx, 1027, "janela")
	require.NoError(t, err)

	// Best is 300 after "casa"; the tip must surface a closer cached word.
	f.core.Guess(ctx, "p1", "casa")
	events = f.core.Tip(ctx, "p1")
	results := eventsOfType(events, "guess_result")
	require.Len(t, results, 1)
	assert.Equal(t, "janela", results[0].Payload.(GuessResultPayload).Guess.Word)
}

func TestTipDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(day1027Scores())
	f.core.CreateRoom(ctx, "p1", room.ModeCooperative, puzzle.SelectGame(1027), room.Options{})

	events := f.core.Tip(ctx, "p1")
	require.Len(t, events, 1)
	assert.Equal(t, "tips_disabled", events[0].Payload.(ErrorPayload).Code)
}

func TestGiveUpRevealsAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(day1027Scores())

	f.core.CreateRoom(ctx, "host", room.ModeCooperative, puzzle.SelectGame(1027), room.Options{AllowGiveUp: true})

	// The answer is only revealable once the cache has seen it.
	require.NoError(t, f.cache.Put(ctx, &wordcache.CachedWord{GameID: 1027, Word: "lar", Distance: 0}))

	events := f.core.GiveUp(ctx, "host")
	finished := eventsOfType(events, "game_finished")
	require.Len(t, finished, 1)
	payload := finished[0].Payload.(GameFinishedPayload)
	assert.Empty(t, payload.Winner)
	assert.Equal(t, "lar", payload.Answer)
}

func TestSweepInactive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(day1027Scores())

	events := f.core.CreateRoom(ctx, "idler", room.ModeCooperative, puzzle.SelectGame(1027), room.Options{})
	roomID := events[0].Payload.(RoomJoinedPayload).ID
	f.core.JoinRoom(ctx, "active", roomID)

	// Backdate the idler beyond the window.
	f.players.rows["idler"].LastActivity = time.Now().Add(-8 * 24 * time.Hour)

	events = f.core.SweepInactive(ctx)
	left := eventsOfType(events, "player_left")
	require.Len(t, left, 1)
	assert.Equal(t, "idler", left[0].Payload.(PlayerLeftPayload).UserID)

	gone, _ := f.players.Find(ctx, "idler")
	assert.Nil(t, gone)
	still, _ := f.players.Find(ctx, "active")
	assert.NotNil(t, still)

	s, ok := f.core.Registry().Get(roomID)
	require.True(t, ok)
	assert.False(t, s.HasPlayer("idler"))
	assert.True(t, s.HasPlayer("active"))
}

func TestUpdatePlayerStoresName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(day1027Scores())

	events := f.core.UpdatePlayer(ctx, "p1", "Maria")
	assert.Empty(t, events)

	p, _ := f.players.Find(ctx, "p1")
	require.NotNil(t, p)
	assert.Equal(t, "Maria", p.Name)
}

func TestGiveUpSettlesCompletedPlayersOnlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(day1027Scores())

	events := f.core.CreateRoom(ctx, "host", room.ModeCompetitive, puzzle.SelectGame(1027),
		room.Options{AllowGiveUp: true})
	roomID := events[0].Payload.(RoomJoinedPayload).ID
	f.core.JoinRoom(ctx, "solver", roomID)

	// solver completes individually and is settled right there.
	f.core.Guess(ctx, "solver", "casa")
	f.core.Guess(ctx, "solver", "lar")
	p, _ := f.players.Find(ctx, "solver")
	require.NotNil(t, p)
	require.Equal(t, 1, p.GamesPlayed)
	require.Equal(t, 1, p.GamesWon)
	require.Equal(t, 2.0, p.AverageGuesses)

	// The host giving up ends the room; the solver's finished game must
	// not be folded into their aggregates a second time.
	f.core.GiveUp(ctx, "host")

	p, _ = f.players.Find(ctx, "solver")
	require.NotNil(t, p)
	assert.Equal(t, 1, p.GamesPlayed)
	assert.Equal(t, 1, p.GamesWon)
	assert.Equal(t, 2.0, p.AverageGuesses)

	h, _ := f.players.Find(ctx, "host")
	require.NotNil(t, h)
	assert.Equal(t, 1, h.GamesPlayed)
	assert.Equal(t, 0, h.GamesWon)
}
