package snowflake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	g := New()
	before := time.Now().UnixMilli()
	code := g.Generate()
	after := time.Now().UnixMilli()

	require.True(t, IsValid(code))
	p, err := Parse(code)
	require.NoError(t, err)

	assert.Equal(t, g.MachineID(), p.MachineID)
	assert.GreaterOrEqual(t, p.Sequence, int64(0))
	assert.LessOrEqual(t, p.Sequence, int64(maxSequence))
	assert.GreaterOrEqual(t, p.Timestamp.UnixMilli(), before)
	assert.LessOrEqual(t, p.Timestamp.UnixMilli(), after)
}

func TestMachineIDNeverZero(t *testing.T) {
	for i := 0; i < 100; i++ {
		g := New()
		require.GreaterOrEqual(t, g.MachineID(), int64(1))
		require.LessOrEqual(t, g.MachineID(), int64(maxMachineID))
	}
}

func TestUniquenessUnderLoad(t *testing.T) {
	// 10k codes far exceed a single millisecond's sequence space; the
	// generator must stall across milliseconds rather than repeat a code.
	g := New()
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		code := g.Generate()
		_, dup := seen[code]
		require.False(t, dup, "duplicate code %q at iteration %d", code, i)
		seen[code] = struct{}{}
	}
}

func TestCodeLengthAndAlphabet(t *testing.T) {
	g := New()
	for i := 0; i < 500; i++ {
		code := g.Generate()
		assert.GreaterOrEqual(t, len(code), minCodeLength)
		assert.LessOrEqual(t, len(code), maxCodeLength)
		for _, r := range code {
			assert.Contains(t, alphabet, string(r))
		}
	}
}

func TestClockRegressionPanics(t *testing.T) {
	g := New()
	ts := int64(1_000_000)
	g.now = func() int64 { return ts }
	g.Generate()

	ts = 999_999
	assert.Panics(t, func() { g.Generate() })
}

func TestIsValidRejectsGarbage(t *testing.T) {
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("abc"))                 // too short, lowercase
	assert.False(t, IsValid("O0IL11"))              // ambiguous characters excluded
	assert.False(t, IsValid("ZZZZZZZZZZZZZZZZZZ")) // too long
	assert.True(t, IsValid("222222"))               // zero value, padded
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse("not a code")
	assert.ErrorIs(t, err, ErrInvalidCode)
}
