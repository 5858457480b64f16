// internal/httpserver/ws.go
//
// Websocket transport for room play.
// Responsibilities:
//   - Upgrade authenticated requests and run one read/write pump pair per
//     connection.
//   - Decode inbound command frames and dispatch them to the core facade.
//   - Fan the facade's events out by audience: caller only, everyone else
//     in the room, or the whole room.
//   - Throttle command floods per connection.
//
// Room membership lives in the session registry; the hub only tracks which
// sockets belong to which player id. A player may hold several sockets
// (two tabs) and all of them receive that player's events.

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/lontra-games/contexto-server/internal/core"
	"github.com/lontra-games/contexto-server/internal/puzzle"
	"github.com/lontra-games/contexto-server/internal/room"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 120 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 4 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS already gates the REST surface; the upgrade carries the same
	// cookie-backed token, so cross-origin upgrades are acceptable here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inMsg is one inbound command frame.
type inMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Command payloads.
type createRoomMsg struct {
	GameMode    string `json:"gameMode"`
	Game        *int   `json:"game,omitempty"`   // explicit puzzle number
	Date        string `json:"date,omitempty"`   // YYYY-MM-DD
	Random      bool   `json:"random,omitempty"` // random past puzzle
	AllowTips   bool   `json:"allowTips"`
	AllowGiveUp bool   `json:"allowGiveUp"`
	MaxPlayers  int    `json:"maxPlayers,omitempty"`
}
type joinRoomMsg struct {
	RoomID string `json:"roomId"`
}
type guessMsg struct {
	Word string `json:"word"`
}
type updatePlayerMsg struct {
	Name string `json:"name"`
}

// hub fans events out to connected sockets.
type hub struct {
	core *core.Core

	mu       sync.RWMutex
	byPlayer map[string]map[*client]struct{}
}

func newHub(c *core.Core) *hub {
	return &hub{core: c, byPlayer: make(map[string]map[*client]struct{})}
}

// client is one websocket connection.
type client struct {
	hub      *hub
	ws       *websocket.Conn
	playerID string
	send     chan []byte
	limiter  *rate.Limiter
}

// handleWS upgrades the connection and runs the pumps. The player id comes
// from the auth middleware.
func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	id := playerID(r)
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade")
		return
	}
	c := &client{
		hub:      h,
		ws:       ws,
		playerID: id,
		send:     make(chan []byte, 64),
		limiter:  rate.NewLimiter(10, 20), // 10 commands/s, burst 20
	}
	h.register(c)
	log.Info().Str("player", id).Msg("ws connected")
	go c.writePump()
	c.readPump()
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.byPlayer[c.playerID]
	if !ok {
		set = make(map[*client]struct{})
		h.byPlayer[c.playerID] = set
	}
	set[c] = struct{}{}
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.byPlayer[c.playerID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byPlayer, c.playerID)
		}
	}
}

// deliver routes each event to its audience. callerID may be empty for
// events not tied to a command (the inactivity sweep).
func (h *hub) deliver(callerID string, events []core.Event) {
	for _, ev := range events {
		frame, err := json.Marshal(ev)
		if err != nil {
			log.Error().Err(err).Str("type", ev.Type).Msg("marshal event")
			continue
		}
		switch ev.Audience {
		case core.ToCaller:
			h.sendTo(callerID, frame)
		case core.ToOthers:
			for _, id := range h.roomMembers(ev.RoomID) {
				if id != callerID {
					h.sendTo(id, frame)
				}
			}
		case core.ToRoom:
			for _, id := range h.roomMembers(ev.RoomID) {
				h.sendTo(id, frame)
			}
		}
	}
}

// roomMembers snapshots the member ids of a room; empty when the room is
// gone (it may have been destroyed by the same command batch).
func (h *hub) roomMembers(roomID string) []string {
	if roomID == "" {
		return nil
	}
	s, ok := h.core.Registry().Get(roomID)
	if !ok {
		return nil
	}
	return s.Players()
}

// sendTo queues a frame on every socket a player holds. A socket whose
// buffer is full is dropped; its reader will notice and clean up.
func (h *hub) sendTo(id string, frame []byte) {
	if id == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byPlayer[id] {
		select {
		case c.send <- frame:
		default:
			_ = c.ws.Close()
		}
	}
}

// ------------------------------- pumps -------------------------------------

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.ws.Close()
		log.Info().Str("player", c.playerID).Msg("ws disconnected")
	}()

	c.ws.SetReadLimit(maxMsgSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			c.sendError("rate_limited", "slow down")
			continue
		}
		var in inMsg
		if err := json.Unmarshal(data, &in); err != nil {
			c.sendError("bad_json", "malformed frame")
			continue
		}
		c.dispatch(in)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendError short-circuits a caller-only error frame without touching the core.
func (c *client) sendError(code, msg string) {
	frame, _ := json.Marshal(core.Event{
		Type:    "error",
		Payload: core.ErrorPayload{Code: code, Error: msg},
	})
	select {
	case c.send <- frame:
	default:
	}
}

// ------------------------------ dispatch -----------------------------------

// dispatch maps one inbound frame to a facade call and delivers the
// resulting events.
func (c *client) dispatch(in inMsg) {
	ctx := context.Background()
	var events []core.Event

	switch in.Type {
	case "create_room":
		var p createRoomMsg
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.sendError("bad_json", "malformed payload")
			return
		}
		sel, err := selectorFrom(p)
		if err != nil {
			c.sendError("invalid_puzzle", err.Error())
			return
		}
		events = c.hub.core.CreateRoom(ctx, c.playerID, room.Mode(p.GameMode), sel, room.Options{
			AllowTips:   p.AllowTips,
			AllowGiveUp: p.AllowGiveUp,
			MaxPlayers:  p.MaxPlayers,
		})

	case "join_room":
		var p joinRoomMsg
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.sendError("bad_json", "malformed payload")
			return
		}
		events = c.hub.core.JoinRoom(ctx, c.playerID, p.RoomID)

	case "leave_room":
		// Others must be resolved before the command: the room may be
		// destroyed once the caller leaves.
		members := c.currentRoomMembers()
		events = c.hub.core.LeaveRoom(ctx, c.playerID)
		c.deliverWithFallback(events, members)
		return

	case "start_game":
		events = c.hub.core.StartGame(ctx, c.playerID)

	case "make_guess":
		var p guessMsg
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.sendError("bad_json", "malformed payload")
			return
		}
		events = c.hub.core.Guess(ctx, c.playerID, p.Word)

	case "tip":
		events = c.hub.core.Tip(ctx, c.playerID)

	case "give_up":
		events = c.hub.core.GiveUp(ctx, c.playerID)

	case "update_player":
		var p updatePlayerMsg
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.sendError("bad_json", "malformed payload")
			return
		}
		events = c.hub.core.UpdatePlayer(ctx, c.playerID, p.Name)

	default:
		c.sendError("unknown_type", "unknown message type: "+in.Type)
		return
	}

	c.hub.deliver(c.playerID, events)
}

// currentRoomMembers snapshots the caller's room membership, minus the
// caller.
func (c *client) currentRoomMembers() []string {
	s, ok := c.hub.core.Registry().Current(c.playerID)
	if !ok {
		return nil
	}
	var out []string
	for _, id := range s.Players() {
		if id != c.playerID {
			out = append(out, id)
		}
	}
	return out
}

// deliverWithFallback delivers events, but routes ToOthers/ToRoom frames to
// a pre-captured member list when the room no longer resolves.
func (c *client) deliverWithFallback(events []core.Event, members []string) {
	for _, ev := range events {
		frame, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		switch ev.Audience {
		case core.ToCaller:
			c.hub.sendTo(c.playerID, frame)
		default:
			targets := c.hub.roomMembers(ev.RoomID)
			if len(targets) == 0 {
				targets = members
			}
			for _, id := range targets {
				if ev.Audience == core.ToOthers && id == c.playerID {
					continue
				}
				c.hub.sendTo(id, frame)
			}
		}
	}
}

// selectorFrom translates create_room puzzle fields into a selector:
// explicit number > date > random > today's puzzle.
func selectorFrom(p createRoomMsg) (puzzle.Selector, error) {
	switch {
	case p.Game != nil:
		return puzzle.SelectGame(*p.Game), nil
	case p.Date != "":
		d, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return puzzle.Selector{}, err
		}
		return puzzle.SelectDate(d), nil
	case p.Random:
		return puzzle.SelectRandom(), nil
	default:
		return puzzle.SelectToday(), nil
	}
}
