// internal/oracle/oracle.go
//
// Client for the external semantic-distance oracle.
// The oracle scores a guessed word against the hidden target of a puzzle
// day: GET {base}/game/{gameId}/{word} → {"word","lemma","distance"}.
// A 404 means the word is unknown to the oracle's vocabulary.
//
// The core only ever talks to the Oracle interface; the HTTP client here is
// the production implementation, tests use stubs.

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrUnknownWord marks a word the oracle cannot score (out of vocabulary).
var ErrUnknownWord = errors.New("oracle: unknown word")

// Scored is a successful oracle result.
type Scored struct {
	Word     string `json:"word"`
	Lemma    string `json:"lemma"`
	Distance int    `json:"distance"`
}

// Oracle computes a word's distance to the target of a given puzzle day.
type Oracle interface {
	Score(ctx context.Context, gameID int, word string) (Scored, error)
}

// Client is the HTTP Oracle implementation.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a Client for the given base URL (e.g. https://api.example.com).
func NewClient(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Score calls the oracle endpoint for (gameID, word).
func (c *Client) Score(ctx context.Context, gameID int, word string) (Scored, error) {
	u := fmt.Sprintf("%s/game/%d/%s", c.base, gameID, url.PathEscape(word))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Scored{}, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return Scored{}, fmt.Errorf("oracle request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		var s Scored
		if err := json.NewDecoder(res.Body).Decode(&s); err != nil {
			return Scored{}, fmt.Errorf("oracle decode: %w", err)
		}
		return s, nil
	case http.StatusNotFound:
		return Scored{}, ErrUnknownWord
	default:
		log.Warn().Int("status", res.StatusCode).Int("gameId", gameID).Msg("oracle error response")
		return Scored{}, fmt.Errorf("oracle status %d", res.StatusCode)
	}
}
