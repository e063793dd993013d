package face

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/biogate/internal/ir"
)

func TestFrameBudget_FrameBound(t *testing.T) {
	b := NewFrameBudget(3, 0, clockwork.NewFakeClock())

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Check(), "frame %d", i+1)
	}
	assert.True(t, b.Exhausted())
	assert.Equal(t, 3, b.Used())

	err := b.Check()
	require.Error(t, err)
	assert.True(t, IsBudgetExceeded(err))
	assert.False(t, IsTimeout(err))
	assert.Equal(t, 3, b.Used(), "a rejected check consumes nothing")
}

func TestFrameBudget_Deadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := NewFrameBudget(30, time.Second, clock)

	require.NoError(t, b.Check())
	clock.Advance(time.Second)
	assert.False(t, b.Expired(), "deadline itself is still in budget")
	require.NoError(t, b.Check())

	clock.Advance(time.Millisecond)
	err := b.Check()
	assert.True(t, IsTimeout(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestFrameBudget_Defaults(t *testing.T) {
	b := NewFrameBudget(0, 0, nil)
	assert.Equal(t, DefaultMaxFrames, b.MaxFrames())
	assert.True(t, b.Deadline().IsZero())
}

func TestVerifyFrames(t *testing.T) {
	ctx := context.Background()
	m := createTestMatcher(t)
	require.NoError(t, m.Enroll(ctx, "alice", ir.FaceEmbedding{0, 0}))

	frames := []Image{
		testImage(t),
		Image("garbage"),
		testImage(t, ir.FaceEmbedding{9, 9}),
		testImage(t, ir.FaceEmbedding{0.1, 0}),
		testImage(t, ir.FaceEmbedding{0, 0}),
	}

	result, err := m.VerifyFrames(ctx, "alice", frames, 0.5, NewFrameBudget(30, 0, nil))
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, 4, result.Frames, "stops at the first verifying frame")
}

func TestVerifyFrames_BudgetExhausted(t *testing.T) {
	ctx := context.Background()
	m := createTestMatcher(t)
	require.NoError(t, m.Enroll(ctx, "alice", ir.FaceEmbedding{0, 0}))

	var frames []Image
	for i := 0; i < 5; i++ {
		frames = append(frames, testImage(t, ir.FaceEmbedding{9, 9}))
	}
	frames = append(frames, testImage(t, ir.FaceEmbedding{0, 0}))

	result, err := m.VerifyFrames(ctx, "alice", frames, 0.5, NewFrameBudget(5, 0, nil))
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, 5, result.Frames)
	assert.False(t, result.TimedOut)
}

func TestVerifyFrames_CameraRunsDry(t *testing.T) {
	ctx := context.Background()
	m := createTestMatcher(t)
	require.NoError(t, m.Enroll(ctx, "alice", ir.FaceEmbedding{0, 0}))

	result, err := m.VerifyFrames(ctx, "alice", []Image{testImage(t)}, 0.5, NewFrameBudget(30, 0, nil))
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, 1, result.Frames)
}
