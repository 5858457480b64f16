// internal/room/registry.go
//
// Registry of live sessions (the arena-and-index pattern): it exclusively
// owns the id→Session map and the player→session index. Sessions are inert
// value holders and never point back here; anything cross-room goes through
// the registry's API by id.
//
// The one-session-per-player rule is enforced centrally in Create/Join so
// the mode variants never have to duplicate the check.

package room

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lontra-games/contexto-server/internal/puzzle"
	"github.com/lontra-games/contexto-server/internal/snowflake"
)

// Registry owns all live sessions. Safe for concurrent use; commands
// against different sessions proceed in parallel.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byPlayer map[string]string // playerID → sessionID

	gen      *snowflake.Generator
	resolver WordResolver
	now      func() time.Time
}

// NewRegistry builds an empty registry over the given code generator and
// word resolver (both shared by every session).
func NewRegistry(gen *snowflake.Generator, resolver WordResolver) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]string),
		gen:      gen,
		resolver: resolver,
		now:      time.Now,
	}
}

// Create makes a new session for the chosen mode and puzzle, registers it
// under a fresh room code, and seats the creating player as host.
func (r *Registry) Create(playerID string, mode Mode, sel puzzle.Selector, opts Options) (*Session, error) {
	if !IsValidMode(mode) {
		return nil, ErrInvalidMode
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byPlayer[playerID]; ok {
		if _, live := r.sessions[cur]; live {
			return nil, ErrAlreadyInSession
		}
		delete(r.byPlayer, playerID) // stale mapping to a destroyed session
	}

	gameID, err := sel.Resolve(r.now())
	if err != nil {
		return nil, err
	}

	id := r.gen.Generate()
	s := newSession(id, gameID, mode, playerID, opts, r.resolver)
	if err := s.AddPlayer(playerID); err != nil {
		return nil, err
	}
	r.sessions[id] = s
	r.byPlayer[playerID] = id

	log.Info().Str("roomId", id).Int("gameId", gameID).Str("mode", string(mode)).Msg("room created")
	return s, nil
}

// Join seats a player in an existing session and records the player→session
// mapping. Re-joining the player's current session is idempotent.
//
// The mapping is claimed under the registry lock, but the seat itself is
// taken after releasing it: AddPlayer waits on the session mutex, which a
// guess may hold across a word resolution, and the registry lock must never
// sit behind that wait (it would stall commands to every other room).
func (r *Registry) Join(playerID, sessionID string) (*Session, error) {
	if !snowflake.IsValid(sessionID) {
		return nil, ErrInvalidCode
	}

	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	if cur, mapped := r.byPlayer[playerID]; mapped && cur != sessionID {
		if _, live := r.sessions[cur]; live {
			r.mu.Unlock()
			return nil, ErrAlreadyInSession
		}
	}
	r.byPlayer[playerID] = sessionID
	r.mu.Unlock()

	if err := s.AddPlayer(playerID); err != nil {
		r.unmapIf(playerID, sessionID)
		return nil, err
	}
	// The session may have been destroyed by a concurrent last-member leave
	// while the seat was being taken; treat that as the room being gone.
	r.mu.Lock()
	_, live := r.sessions[sessionID]
	if !live {
		if r.byPlayer[playerID] == sessionID {
			delete(r.byPlayer, playerID)
		}
	}
	r.mu.Unlock()
	if !live {
		return nil, ErrRoomNotFound
	}
	return s, nil
}

// unmapIf clears the player's mapping if it still points at sessionID.
func (r *Registry) unmapIf(playerID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byPlayer[playerID] == sessionID {
		delete(r.byPlayer, playerID)
	}
}

// Current returns the session the player is mapped to, if any.
func (r *Registry) Current(playerID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// Get looks up a session by id.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Leave removes the player from their current session and always clears
// the mapping, whether or not the session still exists (idempotent). A
// session left empty is destroyed.
//
// RemovePlayer runs outside the registry lock for the same reason as in
// Join: it waits on the session mutex, possibly across a word resolution.
func (r *Registry) Leave(playerID string) (*Session, bool) {
	r.mu.Lock()
	id, ok := r.byPlayer[playerID]
	delete(r.byPlayer, playerID)
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	s, live := r.sessions[id]
	r.mu.Unlock()
	if !live {
		return nil, false
	}

	s.RemovePlayer(playerID)

	if s.PlayerCount() == 0 {
		r.mu.Lock()
		// Re-check under the lock: a concurrent Join may have seated
		// someone in the meantime.
		if cur, still := r.sessions[id]; still && cur == s && s.PlayerCount() == 0 {
			delete(r.sessions, id)
			log.Info().Str("roomId", id).Msg("room destroyed")
		}
		r.mu.Unlock()
	}
	return s, true
}

// SessionCount reports the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
