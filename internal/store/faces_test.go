package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/biogate/internal/ir"
)

func TestAddFaceEmbedding_Accumulates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq1, err := s.AddFaceEmbedding(ctx, "alice", ir.FaceEmbedding{0.1, 0.2}, 0)
	require.NoError(t, err)
	seq2, err := s.AddFaceEmbedding(ctx, "alice", ir.FaceEmbedding{0.1, 0.2}, 0)
	require.NoError(t, err)
	assert.Greater(t, seq2, seq1)

	count, err := s.CountFaceEmbeddings(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "identical embeddings are not deduplicated")
}

func TestAddFaceEmbedding_DimensionMismatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.AddFaceEmbedding(ctx, "alice", ir.FaceEmbedding{1, 2, 3}, 0)
	require.NoError(t, err)

	_, err = s.AddFaceEmbedding(ctx, "bob", ir.FaceEmbedding{1, 2}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.False(t, IsStorageError(err))

	dims, err := s.FaceDimensions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dims)

	count, err := s.CountFaceEmbeddings(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, count, "rejected embedding must not be stored")
}

func TestAddFaceEmbedding_RejectsEmpty(t *testing.T) {
	s := createTestStore(t)

	_, err := s.AddFaceEmbedding(context.Background(), "alice", ir.FaceEmbedding{}, 0)
	assert.True(t, errors.Is(err, ErrEmptyVector))
}

func TestAddFaceEmbedding_EvictsOldest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, err := s.AddFaceEmbedding(ctx, "alice", ir.FaceEmbedding{float64(i)}, 2)
		require.NoError(t, err)
	}
	_, err := s.AddFaceEmbedding(ctx, "bob", ir.FaceEmbedding{9}, 2)
	require.NoError(t, err)

	records, err := s.ListFaceEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ir.FaceEmbedding{3}, records[0].Embedding)
	assert.Equal(t, ir.FaceEmbedding{4}, records[1].Embedding)
	assert.Equal(t, ir.Identity("bob"), records[2].Identity)
}

func TestListFaceEmbeddings_InsertionOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ids := []ir.Identity{"zed", "alice", "mia", "alice"}
	for i, id := range ids {
		_, err := s.AddFaceEmbedding(ctx, id, ir.FaceEmbedding{float64(i), 0}, 0)
		require.NoError(t, err)
	}

	records, err := s.ListFaceEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, records, len(ids))
	for i, rec := range records {
		assert.Equal(t, ids[i], rec.Identity)
		assert.Equal(t, float64(i), rec.Embedding[0])
		if i > 0 {
			assert.Greater(t, rec.Seq, records[i-1].Seq)
		}
	}
}

func TestListFaceEmbeddings_ReturnsCopies(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.AddFaceEmbedding(ctx, "alice", ir.FaceEmbedding{1, 2}, 0)
	require.NoError(t, err)

	first, err := s.ListFaceEmbeddings(ctx)
	require.NoError(t, err)
	first[0].Embedding[0] = 99

	second, err := s.ListFaceEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.FaceEmbedding{1, 2}, second[0].Embedding)
}

func TestListFaceEmbeddings_Empty(t *testing.T) {
	s := createTestStore(t)

	records, err := s.ListFaceEmbeddings(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	dims, err := s.FaceDimensions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dims)
}

func embeddingOf(i, dims int) ir.FaceEmbedding {
	e := make(ir.FaceEmbedding, dims)
	for j := range e {
		e[j] = float64(i)
	}
	return e
}

func TestEnrollment_ConcurrentIdentitiesStayIsolated(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const (
		n    = 12
		dims = 16
	)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ir.Identity(fmt.Sprintf("user-%d", i))
			assert.NoError(t, s.PutFingerprint(ctx, id, ir.FingerprintTemplate{float64(i), 1}))
			_, err := s.AddFaceEmbedding(ctx, id, embeddingOf(i, dims), 0)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		id := ir.Identity(fmt.Sprintf("user-%d", i))
		tmpl, err := s.GetFingerprint(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ir.FingerprintTemplate{float64(i), 1}, tmpl)
	}

	faces, err := s.ListFaceEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, faces, n)
	for _, rec := range faces {
		var i int
		_, err := fmt.Sscanf(string(rec.Identity), "user-%d", &i)
		require.NoError(t, err)
		assert.Equal(t, embeddingOf(i, dims), rec.Embedding, "identity %s", rec.Identity)
	}
}

func TestListFaceEmbeddings_ConsistentDuringAppends(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const (
		n    = 20
		dims = 32
	)
	done := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		last := 0
		for {
			select {
			case <-done:
				return
			default:
			}
			faces, err := s.ListFaceEmbeddings(ctx)
			if !assert.NoError(t, err) {
				return
			}
			assert.GreaterOrEqual(t, len(faces), last, "snapshot never shrinks")
			last = len(faces)
			for _, rec := range faces {
				var i int
				_, err := fmt.Sscanf(string(rec.Identity), "user-%d", &i)
				assert.NoError(t, err)
				assert.Equal(t, embeddingOf(i, dims), rec.Embedding, "partial record for %s", rec.Identity)
			}
		}
	}()

	var writers sync.WaitGroup
	for i := 0; i < n; i++ {
		writers.Add(1)
		go func(i int) {
			defer writers.Done()
			_, err := s.AddFaceEmbedding(ctx, ir.Identity(fmt.Sprintf("user-%d", i)), embeddingOf(i, dims), 0)
			assert.NoError(t, err)
		}(i)
	}
	writers.Wait()
	close(done)
	readers.Wait()

	faces, err := s.ListFaceEmbeddings(ctx)
	require.NoError(t, err)
	assert.Len(t, faces, n)
}
