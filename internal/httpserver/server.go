// internal/httpserver/server.go
//
// HTTP wiring for the room server.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Identity: anonymous player tokens for guests, optional named accounts
//     (signup/login/logout) with bcrypt + HS256 JWT in an HttpOnly cookie.
//   - Stats endpoint for the authenticated player.
//   - The websocket endpoint that carries all room commands and events
//     (see ws.go).
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Every websocket client must present a player token; guests get one
//     from POST /auth/anon first. Browsers cannot set headers on websocket
//     upgrades, so the token also travels in the cookie or a ?token= param.

package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/lontra-games/contexto-server/internal/core"
)

// Server bundles router, game facade, websocket hub, and the DB handle used
// for account auth.
type Server struct {
	r    *chi.Mux
	core *core.Core
	hub  *hub
	db   *sql.DB
}

// New constructs a Server, installs middleware, and registers routes.
func New(c *core.Core, db *sql.DB) *Server {
	s := &Server{r: chi.NewRouter(), core: c, db: db}
	s.hub = newHub(c)

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(corsFromEnv)     // credentials-friendly CORS

	// REST routes get a handler timeout and a JSON default; the websocket
	// route must not, connections there are long-lived.
	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(15 * time.Second))
		r.Use(jsonContentType)

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"service":"contexto-server","endpoints":["/health","POST /auth/anon","/auth/*","GET /stats/me","GET /ws"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})

		// Identity
		r.Post("/auth/anon", s.handleAnon)
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		// Stats (gated)
		r.With(s.requirePlayer()).Get("/stats/me", s.handleStats)
	})

	// Realtime transport (gated; the token identifies the player)
	s.r.With(s.requirePlayer()).Get("/ws", s.hub.handleWS)

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Start begins serving HTTP on addr and runs the inactivity sweep loop in
// the background.
func (s *Server) Start(addr string) error {
	go s.sweepLoop()
	return http.ListenAndServe(addr, s.r)
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// sweepLoop runs the inactivity purge once an hour and fans out the
// player_left events it produces to the affected rooms.
func (s *Server) sweepLoop() {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for range t.C {
		events := s.core.SweepInactive(context.Background())
		s.hub.deliver("", events)
	}
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFromEnv enables credentialed CORS for a single origin.
// Uses CLIENT_ORIGIN env var; defaults to http://localhost:5173.
func corsFromEnv(next http.Handler) http.Handler {
	origin := getEnv("CLIENT_ORIGIN", "http://localhost:5173")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------- AUTH --------------------------------------

// Request payload for signup/login.
type credentialsReq struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// handleAnon issues a guest identity: a fresh player id plus a signed token.
// The player record itself is created lazily on first activity.
func (s *Server) handleAnon(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	tok, exp, err := signJWT(id)
	if err != nil {
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	setAuthCookie(w, tok, exp)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "token": tok})
}

// handleSignup creates a named account: a player row with a bcrypt hash,
// then the same token + cookie a guest would get.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if err := validateSignup(body.Name, body.Password); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	var exists int
	_ = s.db.QueryRow(`SELECT 1 FROM players WHERE lower(name)=lower(?) AND password_hash != ''`,
		body.Name).Scan(&exists)
	if exists == 1 {
		http.Error(w, `{"error":"name taken"}`, http.StatusConflict)
		return
	}

	h, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, `{"error":"hash_failed"}`, http.StatusInternalServerError)
		return
	}
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.Exec(
		`INSERT INTO players (id, name, password_hash, last_activity) VALUES (?,?,?,?)`,
		id, body.Name, string(h), now); err != nil {
		log.Error().Err(err).Msg("insert player")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}

	tok, exp, err := signJWT(id)
	if err != nil {
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	setAuthCookie(w, tok, exp)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "name": body.Name})
}

// handleLogin authenticates by name + password and sets the auth cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	var id, hash string
	err := s.db.QueryRow(
		`SELECT id, password_hash FROM players WHERE lower(name)=lower(?) AND password_hash != ''`,
		strings.TrimSpace(body.Name)).Scan(&id, &hash)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(body.Password)) != nil {
		http.Error(w, `{"error":"invalid name or password"}`, http.StatusUnauthorized)
		return
	}
	tok, exp, err := signJWT(id)
	if err != nil {
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	setAuthCookie(w, tok, exp)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// handleLogout clears the auth cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearAuthCookie(w)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// handleStats returns the caller's aggregate record.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	p, err := s.core.Stats(r.Context(), playerID(r))
	if err != nil {
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

// validateSignup enforces basic name/password rules.
func validateSignup(name, pw string) error {
	if len(name) < 3 || len(name) > 24 {
		return errors.New("name must be 3-24 chars")
	}
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return errors.New("name: letters, numbers, underscore only")
		}
	}
	if len(pw) < 8 || len(pw) > 100 {
		return errors.New("password must be 8-100 chars")
	}
	return nil
}

// ---------------------------- auth middleware ------------------------------

// ctxPlayerKey is the context key type for the authenticated player id.
type ctxPlayerKey struct{}

// playerID extracts the authenticated player id from the request context.
func playerID(r *http.Request) string {
	id, _ := r.Context().Value(ctxPlayerKey{}).(string)
	return id
}

// requirePlayer enforces a valid player token and injects the player id into
// the request context. Both guest and account tokens pass.
func (s *Server) requirePlayer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerOrCookie(r)
			if tokenStr == "" {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(getEnv("JWT_SECRET", "dev_secret_change_me")), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			id, _ := claims["id"].(string)
			if id == "" {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxPlayerKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ------------------------------ JWT & cookies ------------------------------

// signJWT creates an HS256 JWT carrying the player id, with a configurable
// expiry (JWT_EXPIRES_DAYS; default 14).
func signJWT(id string) (string, time.Time, error) {
	secret := getEnv("JWT_SECRET", "dev_secret_change_me")
	days := 14
	if v := os.Getenv("JWT_EXPIRES_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			days = n
		}
	}
	exp := time.Now().Add(time.Duration(days) * 24 * time.Hour)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  id,
		"exp": exp.Unix(),
		"iat": time.Now().Unix(),
	})
	ss, err := t.SignedString([]byte(secret))
	return ss, exp, err
}

// setAuthCookie writes the auth token cookie with appropriate security attributes.
func setAuthCookie(w http.ResponseWriter, token string, exp time.Time) {
	name := getEnv("COOKIE_NAME", "contexto_token")
	secure := os.Getenv("APP_ENV") == "production"
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode // required for third-party contexts when Secure
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  exp,
	})
}

// clearAuthCookie deletes the auth token cookie.
func clearAuthCookie(w http.ResponseWriter) {
	name := getEnv("COOKIE_NAME", "contexto_token")
	secure := os.Getenv("APP_ENV") == "production"
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		MaxAge:   -1,
	})
}

// bearerOrCookie extracts a token from the Authorization header, the auth
// cookie, or a ?token= query parameter (websocket clients).
func bearerOrCookie(r *http.Request) string {
	// Authorization: Bearer <token>
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(getEnv("COOKIE_NAME", "contexto_token")); err == nil {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// ------------------------------- small util --------------------------------

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
