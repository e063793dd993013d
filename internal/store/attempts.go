package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/biogate/internal/ir"
)

// AppendAttempt appends an audit record to the hash chain and returns the
// record as stored.
//
// Seq, PrevHash and Hash are assigned here, inside the write transaction, so
// the chain has no gaps or forks regardless of how many sessions finish at
// once. A zero Timestamp is set to the store clock; all timestamps are UTC.
// A Timestamp earlier than the chain head is raised to the head's, so seq
// order and timestamp order never disagree. An empty ID gets a fresh UUIDv7.
func (s *Store) AppendAttempt(ctx context.Context, a ir.AuthAttempt) (ir.AuthAttempt, error) {
	if a.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return ir.AuthAttempt{}, fmt.Errorf("append attempt: generate id: %w", err)
		}
		a.ID = id.String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}
	a.Timestamp = a.Timestamp.UTC()

	var stored ir.AuthAttempt
	err := s.withTx(ctx, "append attempt", func(tx *sql.Tx) error {
		rec := a

		var (
			lastSeq  int64
			lastHash string
			lastTS   string
		)
		err := tx.QueryRowContext(ctx, `
			SELECT seq, hash, timestamp FROM auth_attempts ORDER BY seq DESC LIMIT 1
		`).Scan(&lastSeq, &lastHash, &lastTS)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			lastHash = ir.GenesisHash
		case err != nil:
			return storageErr("append attempt: read chain head", err)
		default:
			head, err := time.Parse(timeLayout, lastTS)
			if err != nil {
				return storageErr("append attempt: parse head timestamp", err)
			}
			if rec.Timestamp.Before(head) {
				rec.Timestamp = head.UTC()
			}
		}

		rec.Seq = lastSeq + 1
		rec.PrevHash = lastHash
		rec.Hash = ""
		hash, err := ir.AttemptHash(rec)
		if err != nil {
			return fmt.Errorf("append attempt: %w", err)
		}
		rec.Hash = hash

		_, err = tx.ExecContext(ctx, `
			INSERT INTO auth_attempts
				(seq, id, session_id, identity, timestamp, fingerprint, face,
				 outcome, reason, frames, prev_hash, hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.Seq, rec.ID, rec.SessionID, string(rec.Identity),
			rec.Timestamp.Format(timeLayout), string(rec.Fingerprint), string(rec.Face),
			string(rec.Outcome), string(rec.Reason), rec.Frames, rec.PrevHash, rec.Hash)
		if err != nil {
			return storageErr("append attempt: insert", err)
		}

		stored = rec
		return nil
	})
	if err != nil {
		return ir.AuthAttempt{}, err
	}
	return stored, nil
}

// ReadAttempts returns every audit record in chain order.
func (s *Store) ReadAttempts(ctx context.Context) ([]ir.AuthAttempt, error) {
	return s.queryAttempts(ctx, "read attempts", `
		SELECT seq, id, session_id, identity, timestamp, fingerprint, face,
		       outcome, reason, frames, prev_hash, hash
		FROM auth_attempts
		ORDER BY seq ASC
	`)
}

// ReadAttemptsFor returns the audit records of one identity in chain order.
func (s *Store) ReadAttemptsFor(ctx context.Context, id ir.Identity) ([]ir.AuthAttempt, error) {
	return s.queryAttempts(ctx, "read attempts for identity", `
		SELECT seq, id, session_id, identity, timestamp, fingerprint, face,
		       outcome, reason, frames, prev_hash, hash
		FROM auth_attempts
		WHERE identity = ?
		ORDER BY seq ASC
	`, string(id))
}

func (s *Store) queryAttempts(ctx context.Context, op, query string, args ...any) ([]ir.AuthAttempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	// Return empty slice, not nil
	attempts := []ir.AuthAttempt{}
	for rows.Next() {
		var (
			a                         ir.AuthAttempt
			id, ts, fp, face, outcome string
			reason                    string
		)
		if err := rows.Scan(&a.Seq, &a.ID, &a.SessionID, &id, &ts, &fp, &face,
			&outcome, &reason, &a.Frames, &a.PrevHash, &a.Hash); err != nil {
			return nil, storageErr(op+": scan", err)
		}
		parsed, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, storageErr(op+": parse timestamp", err)
		}
		a.Identity = ir.Identity(id)
		a.Timestamp = parsed.UTC()
		a.Fingerprint = ir.FactorResult(fp)
		a.Face = ir.FactorResult(face)
		a.Outcome = ir.Outcome(outcome)
		a.Reason = ir.Reason(reason)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op+": iterate", err)
	}

	return attempts, nil
}
