package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAttempt() AuthAttempt {
	return AuthAttempt{
		Seq:         1,
		ID:          "attempt-1",
		SessionID:   "session-1",
		Identity:    "alice",
		Timestamp:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Fingerprint: FactorPass,
		Face:        FactorPass,
		Outcome:     OutcomeSuccess,
		Frames:      1,
		PrevHash:    GenesisHash,
	}
}

func TestCanonicalAttempt(t *testing.T) {
	data, err := CanonicalAttempt(testAttempt())
	require.NoError(t, err)

	expected := `{"face":"pass","fingerprint":"pass","frames":1,"id":"attempt-1",` +
		`"identity":"alice","outcome":"SUCCESS","prev_hash":"` + GenesisHash + `",` +
		`"reason":"","seq":1,"session_id":"session-1","timestamp":"2026-01-01T00:00:00Z"}`
	assert.Equal(t, expected, string(data))
}

func TestAttemptHashDeterminism(t *testing.T) {
	h1, err := AttemptHash(testAttempt())
	require.NoError(t, err)
	h2, err := AttemptHash(testAttempt())
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "AttemptHash must be deterministic")
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestAttemptHashIgnoresHashField(t *testing.T) {
	a := testAttempt()
	h1, err := AttemptHash(a)
	require.NoError(t, err)

	a.Hash = "something else"
	h2, err := AttemptHash(a)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestAttemptHashChangesWithInput(t *testing.T) {
	base, err := AttemptHash(testAttempt())
	require.NoError(t, err)

	mutations := map[string]func(*AuthAttempt){
		"outcome":   func(a *AuthAttempt) { a.Outcome = OutcomeFailed },
		"face":      func(a *AuthAttempt) { a.Face = FactorFail },
		"identity":  func(a *AuthAttempt) { a.Identity = "Alice" },
		"prev_hash": func(a *AuthAttempt) { a.PrevHash = "ab" },
		"seq":       func(a *AuthAttempt) { a.Seq = 2 },
		"timestamp": func(a *AuthAttempt) { a.Timestamp = a.Timestamp.Add(time.Nanosecond) },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			a := testAttempt()
			mutate(&a)
			h, err := AttemptHash(a)
			require.NoError(t, err)
			assert.NotEqual(t, base, h)
		})
	}
}

func TestTemplateDigestDomainSeparated(t *testing.T) {
	d1 := TemplateDigest([]byte("abc"))
	d2 := TemplateDigest([]byte("abc"))
	d3 := TemplateDigest([]byte("abd"))

	assert.Equal(t, d1, d2)
	assert.NotEqual(t, d1, d3)
	assert.Len(t, d1, 32)
}
