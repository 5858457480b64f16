// internal/snowflake/snowflake.go
//
// Room-code generator.
// Responsibilities:
//   - Produce short, collision-resistant, human-friendly room codes.
//   - Compose codes Snowflake-style: (ms-since-epoch << 12) | (machine << 8) | sequence.
//   - Pick the per-millisecond sequence randomly (codes must not be sequential
//     or guessable), retrying on collision against a per-millisecond used set.
//   - Encode the composite integer into a restricted alphabet that excludes
//     visually ambiguous characters (0/O, 1/I/L).
//
// Notes:
//   - The machine id is chosen randomly once per generator, never 0, so codes
//     from different processes diverge without coordination.
//   - A backwards-moving clock is treated as host corruption and panics; id
//     issuance must not continue against a regressed clock.

package snowflake

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

const (
	machineIDBits = 4
	sequenceBits  = 8

	maxMachineID = 1<<machineIDBits - 1
	maxSequence  = 1<<sequenceBits - 1

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits

	// Digits and uppercase letters minus 0, O, 1, I and L.
	alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

	minCodeLength = 6
	maxCodeLength = 13
)

// epoch is the custom epoch (2024-01-01T00:00:00Z) in Unix milliseconds.
// Keeping it recent keeps encoded codes short.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

var (
	// ErrInvalidCode is returned by Parse for codes that fail the alphabet,
	// length or decode checks.
	ErrInvalidCode = errors.New("snowflake: invalid code")
)

// Generator issues room codes. Safe for concurrent use.
type Generator struct {
	mu        sync.Mutex
	machineID int64
	lastTS    int64
	used      map[int64]struct{} // sequences issued in the current millisecond
	now       func() int64       // overridable for tests
}

// New constructs a Generator with a random machine id in [1, maxMachineID].
func New() *Generator {
	n, _ := rand.Int(rand.Reader, big.NewInt(maxMachineID))
	return &Generator{
		machineID: n.Int64() + 1, // never 0
		lastTS:    -1,
		used:      make(map[int64]struct{}, maxSequence+1),
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

// MachineID reports the machine id baked into this generator's codes.
func (g *Generator) MachineID() int64 { return g.machineID }

// Generate returns a new room code.
//
// The sequence for the current millisecond is drawn randomly and retried on
// collision; once the millisecond's sequence space is exhausted the call
// blocks until the clock advances, then starts over. A clock observed moving
// backwards panics: that signals host-clock corruption, not a recoverable
// request error.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.lastTS {
		panic(fmt.Sprintf("snowflake: clock moved backwards (last=%d now=%d)", g.lastTS, ts))
	}
	if ts != g.lastTS {
		g.used = make(map[int64]struct{}, maxSequence+1)
		g.lastTS = ts
	}

	for {
		if len(g.used) > maxSequence {
			// Sequence space exhausted: wait for the next millisecond.
			for ts <= g.lastTS {
				time.Sleep(100 * time.Microsecond)
				ts = g.now()
				if ts < g.lastTS {
					panic(fmt.Sprintf("snowflake: clock moved backwards (last=%d now=%d)", g.lastTS, ts))
				}
			}
			g.used = make(map[int64]struct{}, maxSequence+1)
			g.lastTS = ts
		}
		seq := randSequence()
		if _, taken := g.used[seq]; taken {
			continue
		}
		g.used[seq] = struct{}{}
		id := (ts-epoch)<<timestampShift | g.machineID<<machineIDShift | seq
		return encode(id)
	}
}

// randSequence draws a random sequence in [0, maxSequence].
func randSequence() int64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(maxSequence+1))
	return n.Int64()
}

// Parts is the decomposition of a parsed room code.
type Parts struct {
	Timestamp time.Time // millisecond the code was issued
	MachineID int64
	Sequence  int64
}

// Parse decodes a room code back into its timestamp, machine id and sequence.
func Parse(code string) (Parts, error) {
	id, err := decode(code)
	if err != nil {
		return Parts{}, err
	}
	return Parts{
		Timestamp: time.UnixMilli((id >> timestampShift) + epoch),
		MachineID: (id >> machineIDShift) & maxMachineID,
		Sequence:  id & maxSequence,
	}, nil
}

// IsValid reports whether code has a plausible length, uses only the
// restricted alphabet, and decodes cleanly.
func IsValid(code string) bool {
	_, err := decode(code)
	return err == nil
}

// encode converts an id to the restricted alphabet, left-padded to the
// minimum code length.
func encode(id int64) string {
	base := int64(len(alphabet))
	var b [maxCodeLength]byte
	i := len(b)
	for id > 0 {
		i--
		b[i] = alphabet[id%base]
		id /= base
	}
	for len(b)-i < minCodeLength {
		i--
		b[i] = alphabet[0]
	}
	return string(b[i:])
}

// decode is the inverse of encode. Rejects bad lengths, characters outside
// the alphabet, and values that overflow int64.
func decode(code string) (int64, error) {
	if len(code) < minCodeLength || len(code) > maxCodeLength {
		return 0, ErrInvalidCode
	}
	base := int64(len(alphabet))
	var id int64
	for _, r := range code {
		idx := strings.IndexRune(alphabet, r)
		if idx < 0 {
			return 0, ErrInvalidCode
		}
		next := id*base + int64(idx)
		if next < id {
			return 0, ErrInvalidCode
		}
		id = next
	}
	return id, nil
}
