// internal/room/modes.go
//
// Game-mode rule tables.
// Mode behavior is a tagged variant plus a small strategy struct selected
// once at session creation (no subclass hierarchy): auto vs explicit start,
// capacity, repeat-guess policy, guess visibility, finish condition and the
// ranking comparator all live here, so rule differences between modes stay
// localized and testable in isolation.

package room

// Mode names one of the four game variants.
type Mode string

const (
	ModeCooperative  Mode = "cooperative"
	ModeCompetitive  Mode = "competitive"
	ModeStop         Mode = "stop"
	ModeBattleRoyale Mode = "battle-royale"
)

// IsValidMode reports whether m names a known game mode.
func IsValidMode(m Mode) bool {
	_, ok := modeRules[m]
	return ok
}

// repeatPolicy governs re-guessing a word already in the log.
type repeatPolicy int

const (
	repeatRejectRoom repeatPolicy = iota // reject any word already in the room log
	repeatRejectOwn                      // reject only the player's own repeats
	repeatAllow                          // allow repeats, only the best counts
)

// rules is the per-mode strategy table.
type rules struct {
	autoStart       bool // session is playable immediately, no explicit start
	maxPlayers      int  // default capacity
	repeats         repeatPolicy
	hideOthers      bool // other players' guesses hidden until reveal
	trackCompletion bool // players complete individually (room never auto-ends)
	finishOnZero    bool // first distance-0 guess finishes the whole room
	rank            rankFunc
}

// rankFunc orders two ranking entries; nil means join order (no ranking).
type rankFunc func(a, b *RankingEntry) bool

var modeRules = map[Mode]rules{
	// Everyone digs toward the same answer; one hit ends the room, so a
	// word anyone already tried is rejected outright.
	ModeCooperative: {
		autoStart:    true,
		maxPlayers:   10,
		repeats:      repeatRejectRoom,
		finishOnZero: true,
	},
	// Players race individually with all guesses visible. Only a player's
	// own repeats are rejected: re-guessing an opponent's word (including
	// the answer) must stay possible or nobody could complete second.
	ModeCompetitive: {
		autoStart:       true,
		maxPlayers:      20,
		repeats:         repeatRejectOwn,
		trackCompletion: true,
		rank:            rankCompetitive,
	},
	// Simultaneous start, own guesses only, first to zero wins. Repeats are
	// allowed (other players' words are invisible, so a repeat is honest);
	// only each player's best guess counts for ranking.
	ModeStop: {
		maxPlayers:   20,
		repeats:      repeatAllow,
		hideOthers:   true,
		finishOnZero: true,
		rank:         rankByDistance,
	},
	ModeBattleRoyale: {
		maxPlayers:   100,
		repeats:      repeatAllow,
		hideOthers:   true,
		finishOnZero: true,
		rank:         rankByDistance,
	},
}

// rankCompetitive: completed players first, ties by ascending guess count,
// then by completion time.
func rankCompetitive(a, b *RankingEntry) bool {
	ac, bc := a.CompletedAt != nil, b.CompletedAt != nil
	if ac != bc {
		return ac
	}
	if a.GuessCount != b.GuessCount {
		return a.GuessCount < b.GuessCount
	}
	if ac && bc && !a.CompletedAt.Equal(*b.CompletedAt) {
		return a.CompletedAt.Before(*b.CompletedAt)
	}
	return false
}

// rankByDistance: ascending closest distance, ties by ascending guess count.
// Players without a scoreable guess yet (distance -1) sort last.
func rankByDistance(a, b *RankingEntry) bool {
	ad, bd := a.ClosestDistance, b.ClosestDistance
	if ad < 0 && bd >= 0 {
		return false
	}
	if ad >= 0 && bd < 0 {
		return true
	}
	if ad != bd {
		return ad < bd
	}
	return a.GuessCount < b.GuessCount
}
