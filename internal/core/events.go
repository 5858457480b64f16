// internal/core/events.go
//
// Domain events produced by the facade. The transport layer (websocket hub)
// re-emits each event to its audience; the core itself never talks to a
// socket.

package core

import (
	"errors"

	"github.com/lontra-games/contexto-server/internal/room"
)

// Audience says who an event is for, relative to the command's caller.
type Audience int

const (
	ToCaller Audience = iota // only the player that issued the command
	ToOthers                 // every room member except the caller
	ToRoom                   // every room member including the caller
)

// Event is one outbound domain event.
type Event struct {
	Type     string   `json:"type"`
	Audience Audience `json:"-"`
	RoomID   string   `json:"-"`
	Payload  any      `json:"payload,omitempty"`
}

// Payload shapes, one per documented event type.

type RoomJoinedPayload struct {
	room.Snapshot
}

type PlayerJoinedPayload struct {
	UserID string `json:"userId"`
}

type PlayerLeftPayload struct {
	UserID string `json:"userId"`
}

type GuessResultPayload struct {
	Guess        room.Guess `json:"guess"`
	GameFinished bool       `json:"gameFinished"`
	GuessCount   int        `json:"guessCount"`
}

// PlayerGuessPayload goes to the other room members. In hidden-guess modes
// the word is blanked but the distance still travels, so clients can render
// opponents' progress.
type PlayerGuessPayload struct {
	Word     string `json:"word"`
	Distance int    `json:"distance"`
	AddedBy  string `json:"addedBy"`
	Error    string `json:"error,omitempty"`
	Hidden   bool   `json:"hidden"`
}

type GameFinishedPayload struct {
	Winner string `json:"winner,omitempty"`
	Answer string `json:"answer,omitempty"`
}

type ErrorPayload struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// errorEvent translates a command rejection into the caller-scoped error
// event, 1:1 with the core error taxonomy.
func errorEvent(err error) Event {
	var re *room.Error
	if errors.As(err, &re) {
		return Event{Type: "error", Audience: ToCaller, Payload: ErrorPayload{Code: re.Code, Error: re.Message}}
	}
	return Event{Type: "error", Audience: ToCaller, Payload: ErrorPayload{Code: "internal_error", Error: "something went wrong, try again"}}
}
