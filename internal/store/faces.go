package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/biogate/internal/codec"
	"github.com/roach88/biogate/internal/ir"
)

// AddFaceEmbedding appends a face embedding for an identity and returns its seq.
//
// Embeddings accumulate: nothing is deduplicated or overwritten. The
// dimensionality check against already enrolled embeddings runs inside the
// write transaction, so concurrent enrollments cannot mix model outputs.
//
// When maxPerIdentity > 0, the oldest embeddings of this identity beyond
// the cap are evicted in the same transaction (keep most recent N).
func (s *Store) AddFaceEmbedding(ctx context.Context, id ir.Identity, emb ir.FaceEmbedding, maxPerIdentity int) (int64, error) {
	if len(emb) == 0 {
		return 0, fmt.Errorf("add face embedding: %w", ErrEmptyVector)
	}
	data, err := codec.EncodeVector(emb)
	if err != nil {
		return 0, fmt.Errorf("add face embedding: %w", err)
	}

	var seq int64
	err = s.withTx(ctx, "add face embedding", func(tx *sql.Tx) error {
		var err error
		seq, err = s.insertFaceTx(ctx, tx, "add face embedding", id, len(emb), data, maxPerIdentity)
		return err
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// insertFaceTx checks dimensionality, inserts one encoded embedding and
// applies the per-identity cap, all within tx.
func (s *Store) insertFaceTx(ctx context.Context, tx *sql.Tx, op string, id ir.Identity, dims int, data []byte, maxPerIdentity int) (int64, error) {
	var enrolled int
	err := tx.QueryRowContext(ctx, `
		SELECT dims FROM face_embeddings ORDER BY seq ASC LIMIT 1
	`).Scan(&enrolled)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First embedding fixes the dimensionality.
	case err != nil:
		return 0, storageErr(op+": read dims", err)
	case enrolled != dims:
		return 0, fmt.Errorf("%s: %w (enrolled %d, got %d)", op, ErrDimensionMismatch, enrolled, dims)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO face_embeddings (identity, dims, embedding, enrolled_at)
		VALUES (?, ?, ?, ?)
	`, string(id), dims, data, s.now().Format(timeLayout))
	if err != nil {
		return 0, storageErr(op+": insert", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return 0, storageErr(op+": last insert id", err)
	}

	if maxPerIdentity > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM face_embeddings
			WHERE identity = ? AND seq NOT IN (
				SELECT seq FROM face_embeddings
				WHERE identity = ?
				ORDER BY seq DESC
				LIMIT ?
			)
		`, string(id), string(id), maxPerIdentity)
		if err != nil {
			return 0, storageErr(op+": evict", err)
		}
	}
	return seq, nil
}

// ListFaceEmbeddings returns every enrolled (identity, embedding) pair in
// insertion order. The result is a snapshot read in a single query; callers
// own the returned slices.
func (s *Store) ListFaceEmbeddings(ctx context.Context) ([]ir.FaceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, identity, embedding
		FROM face_embeddings
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, storageErr("list face embeddings", err)
	}
	defer rows.Close()

	records := []ir.FaceRecord{}
	for rows.Next() {
		var (
			rec  ir.FaceRecord
			id   string
			data []byte
		)
		if err := rows.Scan(&rec.Seq, &id, &data); err != nil {
			return nil, storageErr("scan face embedding", err)
		}
		v, err := codec.DecodeVector(data)
		if err != nil {
			return nil, storageErr("decode face embedding", err)
		}
		rec.Identity = ir.Identity(id)
		rec.Embedding = ir.FaceEmbedding(v)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate face embeddings", err)
	}

	return records, nil
}

// CountFaceEmbeddings returns how many embeddings an identity has enrolled.
func (s *Store) CountFaceEmbeddings(ctx context.Context, id ir.Identity) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM face_embeddings WHERE identity = ?
	`, string(id)).Scan(&count)
	if err != nil {
		return 0, storageErr("count face embeddings", err)
	}
	return count, nil
}

// FaceDimensions returns the dimensionality of enrolled embeddings,
// or 0 when none are enrolled.
func (s *Store) FaceDimensions(ctx context.Context) (int, error) {
	var dims int
	err := s.db.QueryRowContext(ctx, `
		SELECT dims FROM face_embeddings ORDER BY seq ASC LIMIT 1
	`).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("face dimensions", err)
	}
	return dims, nil
}
