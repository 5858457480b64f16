// internal/room/errors.go
//
// Typed rejections for room commands. Every rejected command carries a
// stable machine code plus a human-readable message; the facade translates
// these 1:1 into outbound error events (or HTTP statuses). Room state is
// never mutated on a rejection.

package room

// Kind buckets an Error for transport-level translation.
type Kind int

const (
	KindValidation Kind = iota // malformed input
	KindNotFound               // unknown room or player
	KindConflict               // request clashes with current membership/log
	KindState                  // command invalid for the session's state
)

// Error is a typed, user-facing command rejection.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrWordTooShort = &Error{KindValidation, "word_too_short", "word must have at least 2 letters"}
	ErrInvalidCode  = &Error{KindValidation, "invalid_room_code", "malformed room code"}
	ErrInvalidMode  = &Error{KindValidation, "invalid_mode", "unknown game mode"}

	ErrRoomNotFound   = &Error{KindNotFound, "room_not_found", "room not found"}
	ErrPlayerNotFound = &Error{KindNotFound, "player_not_found", "player is not in this room"}
	ErrNotInRoom      = &Error{KindNotFound, "not_in_room", "you are not in a room"}

	ErrRoomFull         = &Error{KindConflict, "room_full", "room is full"}
	ErrAlreadyInSession = &Error{KindConflict, "already_in_room", "leave your current room first"}
	ErrAlreadyGuessed   = &Error{KindConflict, "already_guessed", "word was already guessed in this room"}
	ErrAlreadyCompleted = &Error{KindConflict, "already_completed", "you already completed this room's puzzle"}

	ErrGameFinished   = &Error{KindState, "game_finished", "this game is already over"}
	ErrAlreadyStarted = &Error{KindState, "already_started", "the game has already started"}
	ErrNotStarted     = &Error{KindState, "not_started", "the game has not started yet"}
	ErrNotHost        = &Error{KindState, "not_host", "only the room host can do that"}
	ErrTipsDisabled   = &Error{KindState, "tips_disabled", "tips are disabled in this room"}
	ErrGiveUpDisabled = &Error{KindState, "give_up_disabled", "giving up is disabled in this room"}
)
