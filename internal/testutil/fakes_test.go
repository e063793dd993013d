package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/biogate/internal/ir"
)

func TestCountingFace_Script(t *testing.T) {
	f := &CountingFace{Results: []bool{false, true}}
	ctx := context.Background()

	ok, err := f.VerifyFrame(ctx, "alice", nil, 0.5)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.VerifyFrame(ctx, "alice", nil, 0.5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.VerifyFrame(ctx, "alice", nil, 0.5)
	require.NoError(t, err)
	assert.False(t, ok, "script exhausted")
	assert.Equal(t, 3, f.Calls())
}

func TestRecorder_AssignsSeq(t *testing.T) {
	r := &Recorder{}

	a, err := r.Append(context.Background(), ir.AuthAttempt{Identity: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Seq)

	r.Err = errors.New("disk full")
	_, err = r.Append(context.Background(), ir.AuthAttempt{Identity: "bob"})
	assert.Error(t, err)
	assert.Len(t, r.Attempts(), 1)
}

func TestEligible(t *testing.T) {
	e := Eligible("alice")

	s, err := e.GetIdentity(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, s.Eligible())

	s, err = e.GetIdentity(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, s.Eligible())
}

func TestNewClock(t *testing.T) {
	c := NewClock()
	assert.True(t, c.Now().Equal(Epoch))
}
