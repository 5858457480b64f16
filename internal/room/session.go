// internal/room/session.go
//
// One live game room: membership, append-only guess log, incremental
// ranking, and the mode state machine (Created → [Started] → Finished).
//
// Concurrency: every session carries its own mutex and all operations run
// under it, including the word-resolution I/O inside TryWord — one command
// per room at a time (actor-per-room). Commands against different rooms run
// fully in parallel; the only shared mutable state is the word cache, which
// synchronizes itself.
//
// Sessions never hold a reference back to the registry that owns them;
// anything a session needs from the outside comes in as an argument.

package room

import (
	"context"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/lontra-games/contexto-server/internal/wordcache"
)

// WordResolver scores a word for a puzzle day (two-tier cache backed by the
// oracle in production, stubbed in tests).
type WordResolver interface {
	Resolve(ctx context.Context, gameID int, word string) (*wordcache.CachedWord, error)
}

// Guess is one entry of a room's log. Immutable once appended; log order is
// append order and is never rewritten, not even when a player leaves.
type Guess struct {
	Word     string `json:"word"`
	Lemma    string `json:"lemma,omitempty"`
	Distance int    `json:"distance"`
	AddedBy  string `json:"addedBy"`
	Error    string `json:"error,omitempty"`
	Hidden   bool   `json:"hidden"` // invisible to other players until reveal
}

// RankingEntry is the per-player summary maintained as guesses arrive.
// ClosestDistance is -1 until the player lands a scoreable guess.
// CompletedAt is set exactly when the player's closest distance first
// reaches 0 (modes tracking individual completion).
type RankingEntry struct {
	PlayerID        string     `json:"playerId"`
	GuessCount      int        `json:"guessCount"`
	ClosestDistance int        `json:"closestDistance"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Options tune a session at creation. Zero values take mode defaults.
type Options struct {
	AllowTips   bool
	AllowGiveUp bool
	MaxPlayers  int // capped at the mode default
}

// TryResult is what TryWord returns to the guesser.
type TryResult struct {
	Guess      Guess
	Finished   bool
	GuessCount int // guesser's personal count
}

// Session is a single game room.
type Session struct {
	mu sync.Mutex

	id     string
	gameID int
	mode   Mode
	rules  rules
	host   string

	started  bool
	finished bool
	winner   string

	allowTips   bool
	allowGiveUp bool
	maxPlayers  int

	players   map[string]struct{}
	joinOrder []string
	guesses   []Guess
	wordSeen  map[string]struct{}            // normalized words in the log
	seenBy    map[string]map[string]struct{} // per-player guessed words
	ranking   map[string]*RankingEntry
	rankOrder []string // player ids in first-guess order

	resolver WordResolver
	now      func() time.Time
}

// newSession builds a session for one mode. Auto-start modes are playable
// immediately; explicit-start modes wait for the host.
func newSession(id string, gameID int, mode Mode, host string, opts Options, res WordResolver) *Session {
	r := modeRules[mode]
	max := r.maxPlayers
	if opts.MaxPlayers > 0 && opts.MaxPlayers < max {
		max = opts.MaxPlayers
	}
	return &Session{
		id:          id,
		gameID:      gameID,
		mode:        mode,
		rules:       r,
		host:        host,
		started:     r.autoStart,
		allowTips:   opts.AllowTips,
		allowGiveUp: opts.AllowGiveUp,
		maxPlayers:  max,
		players:     make(map[string]struct{}),
		wordSeen:    make(map[string]struct{}),
		seenBy:      make(map[string]map[string]struct{}),
		ranking:     make(map[string]*RankingEntry),
		resolver:    res,
		now:         time.Now,
	}
}

// Accessors. Snapshot values are safe to read after release of the lock.

func (s *Session) ID() string   { return s.id }
func (s *Session) GameID() int  { return s.gameID }
func (s *Session) Mode() Mode   { return s.mode }
func (s *Session) Host() string { return s.host }

func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Winner returns the player that ended the room, if any.
func (s *Session) Winner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner
}

// AllowTips reports whether tip generation is enabled for this room.
func (s *Session) AllowTips() bool { return s.allowTips }

// TracksCompletion reports whether players complete individually in this
// room's mode (the room does not end on the first distance-0 guess).
func (s *Session) TracksCompletion() bool { return s.rules.trackCompletion }

// PlayerCount returns current membership size.
func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// Players returns member ids in join order.
func (s *Session) Players() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playersLocked()
}

func (s *Session) playersLocked() []string {
	out := make([]string, 0, len(s.players))
	for _, id := range s.joinOrder {
		if _, ok := s.players[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// HasPlayer reports membership.
func (s *Session) HasPlayer(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.players[playerID]
	return ok
}

// AddPlayer admits a player. Re-joining a room you are already in is an
// idempotent success. Fails with ErrRoomFull at capacity and, in modes
// tracking individual completion, with ErrAlreadyCompleted when the player
// already solved this room's puzzle.
func (s *Session) AddPlayer(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[playerID]; ok {
		return nil
	}
	if s.rules.trackCompletion {
		if e, ok := s.ranking[playerID]; ok && e.CompletedAt != nil {
			return ErrAlreadyCompleted
		}
	}
	if len(s.players) >= s.maxPlayers {
		return ErrRoomFull
	}
	s.players[playerID] = struct{}{}
	s.joinOrder = append(s.joinOrder, playerID)
	s.entryFor(playerID) // every member ranks, even before their first guess
	return nil
}

// RemovePlayer drops a player from membership. Their guesses stay in the
// log and their ranking entry survives (history is immutable).
func (s *Session) RemovePlayer(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, playerID)
}

// Start begins play in explicit-start modes. Only the host may start; a
// second start fails with ErrAlreadyStarted. Auto-start modes treat this
// as a no-op success.
func (s *Session) Start(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rules.autoStart {
		return nil
	}
	if playerID != s.host {
		return ErrNotHost
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	return nil
}

// TryWord validates, scores and records one guess.
//
// The session lock is held across the resolver call: the resolve is the
// only suspension point and keeping the lock preserves the invariant that
// two commands against the same room never interleave their mutations.
func (s *Session) TryWord(ctx context.Context, playerID, raw string) (TryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[playerID]; !ok {
		return TryResult{}, ErrPlayerNotFound
	}
	if s.finished {
		return TryResult{}, ErrGameFinished
	}
	if !s.started {
		return TryResult{}, ErrNotStarted
	}
	if s.rules.trackCompletion {
		if e, ok := s.ranking[playerID]; ok && e.CompletedAt != nil {
			return TryResult{}, ErrAlreadyCompleted
		}
	}

	word := wordcache.Normalize(raw)
	if utf8.RuneCountInString(word) < 2 {
		return TryResult{}, ErrWordTooShort
	}
	switch s.rules.repeats {
	case repeatRejectRoom:
		if _, seen := s.wordSeen[word]; seen {
			return TryResult{}, ErrAlreadyGuessed
		}
	case repeatRejectOwn:
		if _, seen := s.seenBy[playerID][word]; seen {
			return TryResult{}, ErrAlreadyGuessed
		}
	}

	cw, err := s.resolver.Resolve(ctx, s.gameID, word)
	if err != nil {
		return TryResult{}, err
	}

	g := Guess{
		Word:     cw.Word,
		Lemma:    cw.Lemma,
		Distance: cw.Distance,
		AddedBy:  playerID,
		Error:    cw.Error,
		Hidden:   s.rules.hideOthers,
	}
	s.guesses = append(s.guesses, g)
	s.wordSeen[word] = struct{}{}
	if s.seenBy[playerID] == nil {
		s.seenBy[playerID] = make(map[string]struct{})
	}
	s.seenBy[playerID][word] = struct{}{}

	entry := s.entryFor(playerID)
	entry.GuessCount++
	if g.Error == "" {
		if entry.ClosestDistance < 0 || g.Distance < entry.ClosestDistance {
			entry.ClosestDistance = g.Distance
		}
		if g.Distance == 0 && entry.CompletedAt == nil {
			t := s.now()
			entry.CompletedAt = &t
		}
		if g.Distance == 0 && s.rules.finishOnZero {
			s.finished = true
			s.winner = playerID
		}
	}

	return TryResult{Guess: g, Finished: s.finished, GuessCount: entry.GuessCount}, nil
}

// entryFor returns the player's ranking entry, creating it on first sight.
func (s *Session) entryFor(playerID string) *RankingEntry {
	if e, ok := s.ranking[playerID]; ok {
		return e
	}
	e := &RankingEntry{PlayerID: playerID, ClosestDistance: -1}
	s.ranking[playerID] = e
	s.rankOrder = append(s.rankOrder, playerID)
	return e
}

// GiveUp lets the host end the room without solving it. The room must
// allow giving up; no winner is recorded.
func (s *Session) GiveUp(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.allowGiveUp {
		return ErrGiveUpDisabled
	}
	if playerID != s.host {
		return ErrNotHost
	}
	if s.finished {
		return ErrGameFinished
	}
	s.finished = true
	return nil
}

// ClosestGuesses returns the count lowest-distance scoreable guesses
// visible to the given player. Hidden-mode rooms reveal everything once
// the room is finished.
func (s *Session) ClosestGuesses(playerID string, count int) []Guess {
	s.mu.Lock()
	defer s.mu.Unlock()

	visible := lo.Filter(s.guesses, func(g Guess, _ int) bool {
		return g.Error == "" && s.visibleTo(g, playerID)
	})
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].Distance < visible[j].Distance
	})
	if count >= 0 && len(visible) > count {
		visible = visible[:count]
	}
	return visible
}

// GuessesFor returns the full log as seen by one player, hidden entries
// masked to word-less stubs (distance still shown, as the client renders
// opponents' progress bars without the words).
func (s *Session) GuessesFor(playerID string) []Guess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guessesForLocked(playerID)
}

func (s *Session) guessesForLocked(playerID string) []Guess {
	out := make([]Guess, 0, len(s.guesses))
	for _, g := range s.guesses {
		if !s.visibleTo(g, playerID) {
			g.Word, g.Lemma = "", ""
		}
		out = append(out, g)
	}
	return out
}

// visibleTo reports whether playerID may see the word of g.
func (s *Session) visibleTo(g Guess, playerID string) bool {
	return !g.Hidden || g.AddedBy == playerID || s.finished
}

// BestDistance returns the closest scoreable distance in the log, or -1
// when there is none. Feeds tip generation.
func (s *Session) BestDistance() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := -1
	for _, g := range s.guesses {
		if g.Error != "" {
			continue
		}
		if best < 0 || g.Distance < best {
			best = g.Distance
		}
	}
	return best
}

// Ranking returns a copy of the ranking table ordered by the mode's
// comparator; modes without one (cooperative) report first-guess order.
func (s *Session) Ranking() []RankingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rankingLocked()
}

func (s *Session) rankingLocked() []RankingEntry {
	out := make([]RankingEntry, 0, len(s.rankOrder))
	for _, id := range s.rankOrder {
		out = append(out, *s.ranking[id])
	}
	if less := s.rules.rank; less != nil {
		// Stable: full ties keep first-guess order.
		sort.SliceStable(out, func(i, j int) bool { return less(&out[i], &out[j]) })
	}
	return out
}

// Snapshot is the join-time view of a room for one player.
type Snapshot struct {
	ID       string         `json:"roomId"`
	GameID   int            `json:"gameId"`
	Mode     Mode           `json:"gameMode"`
	Started  bool           `json:"started"`
	Finished bool           `json:"finished"`
	IsHost   bool           `json:"isHost"`
	Players  []string       `json:"players"`
	Guesses  []Guess        `json:"guesses"`
	Ranking  []RankingEntry `json:"ranking"`
}

// SnapshotFor assembles the room state visible to one player. All fields
// are read under one lock hold so the snapshot is internally consistent:
// a guess landing concurrently is either in both the log and the ranking,
// or in neither.
func (s *Session) SnapshotFor(playerID string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:       s.id,
		GameID:   s.gameID,
		Mode:     s.mode,
		Started:  s.started,
		Finished: s.finished,
		IsHost:   playerID == s.host,
		Players:  s.playersLocked(),
		Guesses:  s.guessesForLocked(playerID),
		Ranking:  s.rankingLocked(),
	}
}
