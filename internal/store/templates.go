package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/biogate/internal/codec"
	"github.com/roach88/biogate/internal/ir"
)

// PutFingerprint stores the fingerprint template for an identity,
// overwriting any earlier template (last writer wins).
// The template content is opaque; only emptiness is rejected.
func (s *Store) PutFingerprint(ctx context.Context, id ir.Identity, tmpl ir.FingerprintTemplate) error {
	if len(tmpl) == 0 {
		return fmt.Errorf("put fingerprint: %w", ErrEmptyVector)
	}
	data, err := codec.EncodeVector(tmpl)
	if err != nil {
		return fmt.Errorf("put fingerprint: %w", err)
	}

	return s.withTx(ctx, "put fingerprint", func(tx *sql.Tx) error {
		return s.putFingerprintTx(ctx, tx, "put fingerprint", id, len(tmpl), data)
	})
}

func (s *Store) putFingerprintTx(ctx context.Context, tx *sql.Tx, op string, id ir.Identity, dims int, data []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO fingerprint_templates (identity, template, dims, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			template = excluded.template,
			dims = excluded.dims,
			updated_at = excluded.updated_at
	`, string(id), data, dims, s.now().Format(timeLayout))
	return storageErr(op, err)
}

// RegisterIdentity enrolls a fingerprint template and a first face embedding
// for an identity that has nothing enrolled yet.
//
// The existence check and both writes share one transaction: either the
// identity ends up with both factors or nothing is written. Returns
// ErrIdentityExists when the identity already has either factor, and
// ErrDimensionMismatch when emb does not fit the enrolled embeddings.
func (s *Store) RegisterIdentity(ctx context.Context, id ir.Identity, tmpl ir.FingerprintTemplate, emb ir.FaceEmbedding, maxPerIdentity int) error {
	if len(tmpl) == 0 || len(emb) == 0 {
		return fmt.Errorf("register identity: %w", ErrEmptyVector)
	}
	tmplData, err := codec.EncodeVector(tmpl)
	if err != nil {
		return fmt.Errorf("register identity: %w", err)
	}
	embData, err := codec.EncodeVector(emb)
	if err != nil {
		return fmt.Errorf("register identity: %w", err)
	}

	return s.withTx(ctx, "register identity", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM fingerprint_templates WHERE identity = ?)
			    OR EXISTS (SELECT 1 FROM face_embeddings WHERE identity = ?)
		`, string(id), string(id)).Scan(&exists)
		if err != nil {
			return storageErr("register identity: check existing", err)
		}
		if exists == 1 {
			return fmt.Errorf("register identity %q: %w", id, ErrIdentityExists)
		}

		if err := s.putFingerprintTx(ctx, tx, "register identity: put fingerprint", id, len(tmpl), tmplData); err != nil {
			return err
		}
		_, err = s.insertFaceTx(ctx, tx, "register identity: add face embedding", id, len(emb), embData, maxPerIdentity)
		return err
	})
}

// GetFingerprint returns the template enrolled for an identity.
// Returns ErrNotFound if the identity has no fingerprint.
func (s *Store) GetFingerprint(ctx context.Context, id ir.Identity) (ir.FingerprintTemplate, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT template FROM fingerprint_templates WHERE identity = ?
	`, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get fingerprint %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get fingerprint", err)
	}

	v, err := codec.DecodeVector(data)
	if err != nil {
		return nil, storageErr("get fingerprint", err)
	}
	return ir.FingerprintTemplate(v), nil
}

// HasFingerprint reports whether an identity has an enrolled fingerprint.
func (s *Store) HasFingerprint(ctx context.Context, id ir.Identity) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fingerprint_templates WHERE identity = ?
	`, string(id)).Scan(&count)
	if err != nil {
		return false, storageErr("check fingerprint", err)
	}
	return count > 0, nil
}

// ListIdentities returns every identity with at least one enrolled factor,
// ordered by identity (binary collation).
func (s *Store) ListIdentities(ctx context.Context) ([]ir.IdentitySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, MAX(has_fp), SUM(faces)
		FROM (
			SELECT identity, 1 AS has_fp, 0 AS faces FROM fingerprint_templates
			UNION ALL
			SELECT identity, 0 AS has_fp, COUNT(*) AS faces FROM face_embeddings GROUP BY identity
		)
		GROUP BY identity
		ORDER BY identity COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, storageErr("list identities", err)
	}
	defer rows.Close()

	summaries := []ir.IdentitySummary{}
	for rows.Next() {
		var (
			id    string
			hasFP int
			faces int
		)
		if err := rows.Scan(&id, &hasFP, &faces); err != nil {
			return nil, storageErr("scan identity", err)
		}
		summaries = append(summaries, ir.IdentitySummary{
			Identity:       ir.Identity(id),
			HasFingerprint: hasFP == 1,
			FaceEmbeddings: faces,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate identities", err)
	}

	return summaries, nil
}

// GetIdentity returns the enrollment summary for one identity.
// An identity with nothing enrolled yields a zero summary, not an error.
func (s *Store) GetIdentity(ctx context.Context, id ir.Identity) (ir.IdentitySummary, error) {
	summary := ir.IdentitySummary{Identity: id}

	hasFP, err := s.HasFingerprint(ctx, id)
	if err != nil {
		return summary, err
	}
	summary.HasFingerprint = hasFP

	faces, err := s.CountFaceEmbeddings(ctx, id)
	if err != nil {
		return summary, err
	}
	summary.FaceEmbeddings = faces

	return summary, nil
}
