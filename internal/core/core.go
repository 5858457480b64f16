// internal/core/core.go
//
// Orchestration facade: binds live sessions to player identities and turns
// inbound commands (join, leave, guess, start, tip, give-up) into session
// mutations plus a set of outbound domain events. This is the only surface
// the transport adapters call.
//
// Stats bookkeeping (games played/won, average guesses) is best effort:
// a failed write is logged at Warn and never fails the command, matching
// how game-history rows are treated elsewhere in this codebase.

package core

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lontra-games/contexto-server/internal/player"
	"github.com/lontra-games/contexto-server/internal/puzzle"
	"github.com/lontra-games/contexto-server/internal/room"
	"github.com/lontra-games/contexto-server/internal/wordcache"
)

// inactivityWindow is how long a player may stay idle before the sweep
// purges their record and removes them from their room.
const inactivityWindow = 7 * 24 * time.Hour

// PlayerRepo is the slice of the player store the facade needs.
type PlayerRepo interface {
	Find(ctx context.Context, id string) (*player.Player, error)
	Save(ctx context.Context, p *player.Player) error
	Touch(ctx context.Context, id string, at time.Time) error
	InactiveSince(ctx context.Context, cutoff time.Time) ([]string, error)
	Delete(ctx context.Context, ids ...string) error
}

// Core is the orchestration facade.
type Core struct {
	registry *room.Registry
	players  PlayerRepo
	cache    *wordcache.Cache // reverse lookups for tips and answer reveal
	now      func() time.Time
}

// New wires the facade.
func New(registry *room.Registry, players PlayerRepo, cache *wordcache.Cache) *Core {
	return &Core{registry: registry, players: players, cache: cache, now: time.Now}
}

// Registry exposes the session registry (transport needs room membership
// for event routing).
func (c *Core) Registry() *room.Registry { return c.registry }

// CreateRoom makes a room in the given mode and seats the caller as host.
func (c *Core) CreateRoom(ctx context.Context, playerID string, mode room.Mode, sel puzzle.Selector, opts room.Options) []Event {
	s, err := c.registry.Create(playerID, mode, sel, opts)
	if err != nil {
		return []Event{errorEvent(err)}
	}
	c.touch(ctx, playerID)
	return []Event{{
		Type: "room_joined", Audience: ToCaller, RoomID: s.ID(),
		Payload: RoomJoinedPayload{Snapshot: s.SnapshotFor(playerID)},
	}}
}

// JoinRoom seats the caller in an existing room.
func (c *Core) JoinRoom(ctx context.Context, playerID, roomID string) []Event {
	s, err := c.registry.Join(playerID, roomID)
	if err != nil {
		return []Event{errorEvent(err)}
	}
	c.touch(ctx, playerID)
	return []Event{
		{Type: "room_joined", Audience: ToCaller, RoomID: s.ID(),
			Payload: RoomJoinedPayload{Snapshot: s.SnapshotFor(playerID)}},
		{Type: "player_joined", Audience: ToOthers, RoomID: s.ID(),
			Payload: PlayerJoinedPayload{UserID: playerID}},
	}
}

// LeaveRoom removes the caller from their current room (idempotent).
func (c *Core) LeaveRoom(ctx context.Context, playerID string) []Event {
	s, ok := c.registry.Leave(playerID)
	events := []Event{{Type: "room_left", Audience: ToCaller}}
	if ok {
		events = append(events, Event{
			Type: "player_left", Audience: ToOthers, RoomID: s.ID(),
			Payload: PlayerLeftPayload{UserID: playerID},
		})
	}
	return events
}

// StartGame starts the caller's room (explicit-start modes).
func (c *Core) StartGame(ctx context.Context, playerID string) []Event {
	s, ok := c.registry.Current(playerID)
	if !ok {
		return []Event{errorEvent(room.ErrNotInRoom)}
	}
	if err := s.Start(playerID); err != nil {
		return []Event{errorEvent(err)}
	}
	c.touch(ctx, playerID)
	return []Event{{Type: "game_started", Audience: ToRoom, RoomID: s.ID()}}
}

// Guess submits a word for the caller's room.
func (c *Core) Guess(ctx context.Context, playerID, word string) []Event {
	s, ok := c.registry.Current(playerID)
	if !ok {
		return []Event{errorEvent(room.ErrNotInRoom)}
	}

	res, err := s.TryWord(ctx, playerID, word)
	if err != nil {
		return []Event{errorEvent(err)}
	}
	c.touch(ctx, playerID)

	events := []Event{
		{Type: "guess_result", Audience: ToCaller, RoomID: s.ID(),
			Payload: GuessResultPayload{Guess: res.Guess, GameFinished: res.Finished, GuessCount: res.GuessCount}},
		{Type: "player_guess", Audience: ToOthers, RoomID: s.ID(),
			Payload: c.othersView(res.Guess, s.Finished())},
	}

	switch {
	case res.Finished:
		// The whole room is done: reveal and settle stats for everyone.
		events = append(events, Event{
			Type: "game_finished", Audience: ToRoom, RoomID: s.ID(),
			Payload: GameFinishedPayload{Winner: s.Winner(), Answer: c.answerFor(ctx, s.GameID())},
		})
		c.settleStats(ctx, s)
	case res.Guess.Distance == 0 && res.Guess.Error == "":
		// Individual completion (competitive): the room plays on, but the
		// caller's game is over.
		events = append(events, Event{
			Type: "game_finished", Audience: ToCaller, RoomID: s.ID(),
			Payload: GameFinishedPayload{Winner: playerID, Answer: res.Guess.Word},
		})
		c.settlePlayer(ctx, playerID, true, res.GuessCount)
	}
	return events
}

// othersView masks the guessed word for other players in hidden modes.
func (c *Core) othersView(g room.Guess, finished bool) PlayerGuessPayload {
	p := PlayerGuessPayload{
		Word:     g.Word,
		Distance: g.Distance,
		AddedBy:  g.AddedBy,
		Error:    g.Error,
		Hidden:   g.Hidden,
	}
	if g.Hidden && !finished {
		p.Word = ""
	}
	return p
}

// Tip plays a cached word strictly closer than the room's current best,
// entered as a regular guess by the caller. Rooms created without
// allowTips reject it.
func (c *Core) Tip(ctx context.Context, playerID string) []Event {
	s, ok := c.registry.Current(playerID)
	if !ok {
		return []Event{errorEvent(room.ErrNotInRoom)}
	}
	if !s.AllowTips() {
		return []Event{errorEvent(room.ErrTipsDisabled)}
	}

	word, ok := c.tipWord(ctx, s)
	if !ok {
		return []Event{{Type: "error", Audience: ToCaller,
			Payload: ErrorPayload{Code: "no_tip", Error: "no tip available yet"}}}
	}
	return c.Guess(ctx, playerID, word)
}

// tipWord scans the cache's reverse index from halfway-to-target up to just
// under the room's best distance and returns the first known word.
func (c *Core) tipWord(ctx context.Context, s *room.Session) (string, bool) {
	best := s.BestDistance()
	if best <= 1 {
		return "", false
	}
	for d := best / 2; d < best; d++ {
		cw, ok, err := c.cache.GetByDistance(ctx, s.GameID(), d)
		if err != nil {
			log.Warn().Err(err).Int("gameId", s.GameID()).Msg("tip lookup failed")
			return "", false
		}
		if ok {
			return cw.Word, true
		}
	}
	return "", false
}

// GiveUp ends the caller's room without a winner and reveals the answer.
func (c *Core) GiveUp(ctx context.Context, playerID string) []Event {
	s, ok := c.registry.Current(playerID)
	if !ok {
		return []Event{errorEvent(room.ErrNotInRoom)}
	}
	if err := s.GiveUp(playerID); err != nil {
		return []Event{errorEvent(err)}
	}
	c.settleStats(ctx, s)
	return []Event{{
		Type: "game_finished", Audience: ToRoom, RoomID: s.ID(),
		Payload: GameFinishedPayload{Answer: c.answerFor(ctx, s.GameID())},
	}}
}

// UpdatePlayer stores profile fields (currently the display name).
func (c *Core) UpdatePlayer(ctx context.Context, playerID, name string) []Event {
	p, err := c.players.Find(ctx, playerID)
	if err != nil {
		return []Event{errorEvent(err)}
	}
	if p == nil {
		p = &player.Player{ID: playerID}
	}
	p.Name = name
	p.LastActivity = c.now()
	if err := c.players.Save(ctx, p); err != nil {
		return []Event{errorEvent(err)}
	}
	return nil
}

// Stats loads a player's aggregate record.
func (c *Core) Stats(ctx context.Context, playerID string) (*player.Player, error) {
	return c.players.Find(ctx, playerID)
}

// SweepInactive purges players idle for the inactivity window, pulling each
// out of their room first. Returns the events the purge produced so the
// transport can notify remaining room members.
func (c *Core) SweepInactive(ctx context.Context) []Event {
	cutoff := c.now().Add(-inactivityWindow)
	ids, err := c.players.InactiveSince(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("inactivity sweep query failed")
		return nil
	}

	var events []Event
	for _, id := range ids {
		if s, ok := c.registry.Leave(id); ok {
			events = append(events, Event{
				Type: "player_left", Audience: ToRoom, RoomID: s.ID(),
				Payload: PlayerLeftPayload{UserID: id},
			})
		}
	}
	if len(ids) > 0 {
		if err := c.players.Delete(ctx, ids...); err != nil {
			log.Warn().Err(err).Int("count", len(ids)).Msg("inactivity sweep delete failed")
		}
		log.Info().Int("count", len(ids)).Msg("purged inactive players")
	}
	return events
}

// answerFor resolves the answer word (distance 0) for a puzzle day from the
// cache. Empty when nobody has hit it and the store has never seen it.
func (c *Core) answerFor(ctx context.Context, gameID int) string {
	cw, ok, err := c.cache.GetByDistance(ctx, gameID, 0)
	if err != nil || !ok {
		return ""
	}
	return cw.Word
}

// settleStats bumps aggregates for every remaining member of a finished
// room; the winner also gets a win. In modes tracking individual
// completion, players who already finished were settled at their
// distance-0 guess and must not be counted again.
func (c *Core) settleStats(ctx context.Context, s *room.Session) {
	counts := make(map[string]int)
	settled := make(map[string]bool)
	for _, e := range s.Ranking() {
		counts[e.PlayerID] = e.GuessCount
		if s.TracksCompletion() && e.CompletedAt != nil {
			settled[e.PlayerID] = true
		}
	}
	winner := s.Winner()
	for _, id := range s.Players() {
		if settled[id] {
			continue
		}
		c.settlePlayer(ctx, id, id == winner, counts[id])
	}
}

// settlePlayer folds one finished game into a player's running aggregates.
func (c *Core) settlePlayer(ctx context.Context, playerID string, won bool, guessCount int) {
	p, err := c.players.Find(ctx, playerID)
	if err != nil {
		log.Warn().Err(err).Str("player", playerID).Msg("load player for stats")
		return
	}
	if p == nil {
		p = &player.Player{ID: playerID}
	}
	p.AverageGuesses = (p.AverageGuesses*float64(p.GamesPlayed) + float64(guessCount)) / float64(p.GamesPlayed+1)
	p.GamesPlayed++
	if won {
		p.GamesWon++
	}
	p.LastActivity = c.now()
	if err := c.players.Save(ctx, p); err != nil {
		log.Warn().Err(err).Str("player", playerID).Msg("save player stats")
	}
}

// touch records activity, creating the player record on first sight.
func (c *Core) touch(ctx context.Context, playerID string) {
	if err := c.players.Touch(ctx, playerID, c.now()); err != nil {
		log.Warn().Err(err).Str("player", playerID).Msg("touch player")
	}
}
