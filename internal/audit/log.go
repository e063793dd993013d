// Package audit is the append-only record of verification attempts.
//
// Records are hash-chained: each carries the hash of its predecessor and a
// hash over its own canonical form. VerifyChain recomputes every link, so
// any edit or deletion made below this package is detected.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/roach88/biogate/internal/ir"
)

// Store is the persistence the log needs.
type Store interface {
	AppendAttempt(ctx context.Context, a ir.AuthAttempt) (ir.AuthAttempt, error)
	ReadAttempts(ctx context.Context) ([]ir.AuthAttempt, error)
	ReadAttemptsFor(ctx context.Context, id ir.Identity) ([]ir.AuthAttempt, error)
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	Generate() string
}

type uuidV7 struct{}

func (uuidV7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Log appends and reads audit records.
type Log struct {
	store  Store
	clock  clockwork.Clock
	ids    IDGenerator
	logger *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithClock sets the clock used to timestamp records.
func WithClock(c clockwork.Clock) Option {
	return func(l *Log) {
		l.clock = c
	}
}

// WithIDGenerator sets the record ID generator. Default: UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Log) {
		l.ids = g
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// New creates a Log over s.
func New(s Store, opts ...Option) *Log {
	l := &Log{
		store:  s,
		clock:  clockwork.NewRealClock(),
		ids:    uuidV7{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records an attempt and returns it as stored.
//
// Missing ID and Timestamp are filled in. Append fails only when the store
// does; the error is returned, never swallowed.
func (l *Log) Append(ctx context.Context, a ir.AuthAttempt) (ir.AuthAttempt, error) {
	if a.ID == "" {
		a.ID = l.ids.Generate()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = l.clock.Now()
	}
	a.Timestamp = a.Timestamp.UTC()

	stored, err := l.store.AppendAttempt(ctx, a)
	if err != nil {
		l.logger.Error("audit append failed",
			"identity", a.Identity.String(),
			"session", a.SessionID,
			"outcome", string(a.Outcome),
			"error", err)
		return ir.AuthAttempt{}, fmt.Errorf("audit append: %w", err)
	}

	l.logger.Info("audit record appended",
		"seq", stored.Seq,
		"identity", stored.Identity.String(),
		"session", stored.SessionID,
		"outcome", string(stored.Outcome),
		"reason", string(stored.Reason))
	return stored, nil
}

// ReadAll returns every record in chronological order.
func (l *Log) ReadAll(ctx context.Context) ([]ir.AuthAttempt, error) {
	attempts, err := l.store.ReadAttempts(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit read: %w", err)
	}
	return attempts, nil
}

// ReadFor returns the records of one identity in chronological order.
func (l *Log) ReadFor(ctx context.Context, id ir.Identity) ([]ir.AuthAttempt, error) {
	attempts, err := l.store.ReadAttemptsFor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("audit read %q: %w", id, err)
	}
	return attempts, nil
}
