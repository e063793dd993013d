package ir

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityValidate(t *testing.T) {
	valid := []Identity{"alice", "Alice", "user-42", "\u00e9lodie", Identity(strings.Repeat("a", MaxIdentityLength))}
	for _, id := range valid {
		assert.NoError(t, id.Validate(), "identity %q", id)
	}

	invalid := []Identity{"", "tab\there", "nul\x00", Identity(strings.Repeat("a", MaxIdentityLength+1)), Identity("\xff"), "e\u0301lodie"}
	for _, id := range invalid {
		err := id.Validate()
		require.Error(t, err, "identity %q", id)
		assert.True(t, errors.Is(err, ErrInvalidIdentity))
	}
}

func TestIdentityValidate_RequiresNFC(t *testing.T) {
	decomposed := Identity("e\u0301lodie")
	err := decomposed.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "normalization form C")

	// The canonical form that the audit hash covers is the stored form.
	composed := Identity("\u00e9lodie")
	require.NoError(t, composed.Validate())
	a := AuthAttempt{Identity: composed}
	b := AuthAttempt{Identity: decomposed}
	ca, err := CanonicalAttempt(a)
	require.NoError(t, err)
	cb, err := CanonicalAttempt(b)
	require.NoError(t, err)
	assert.Equal(t, ca, cb, "forms differ only before normalization")
}

func TestIdentityIsCaseSensitive(t *testing.T) {
	assert.NotEqual(t, Identity("alice"), Identity("Alice"))
}

func TestValidateVector(t *testing.T) {
	assert.NoError(t, ValidateVector([]float64{0, 1.5, -2}))

	for name, v := range map[string][]float64{
		"nil":   nil,
		"empty": {},
		"nan":   {1, math.NaN()},
		"inf":   {math.Inf(-1)},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateVector(v), ErrInvalidVector)
		})
	}
}

func TestCloneVector(t *testing.T) {
	orig := []float64{1, 2, 3}
	clone := CloneVector(orig)
	clone[0] = 9

	assert.Equal(t, []float64{1, 2, 3}, orig)
	assert.Nil(t, CloneVector(nil))
}

func TestIdentitySummaryEligible(t *testing.T) {
	assert.False(t, IdentitySummary{HasFingerprint: true}.Eligible())
	assert.False(t, IdentitySummary{FaceEmbeddings: 2}.Eligible())
	assert.True(t, IdentitySummary{HasFingerprint: true, FaceEmbeddings: 1}.Eligible())
}
