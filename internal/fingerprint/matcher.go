package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/biogate/internal/ir"
	"github.com/roach88/biogate/internal/store"
)

// ErrInvalidSample is returned when a sample is empty or malformed.
var ErrInvalidSample = errors.New("invalid fingerprint sample")

// TemplateStore is the storage the matcher needs.
type TemplateStore interface {
	PutFingerprint(ctx context.Context, id ir.Identity, tmpl ir.FingerprintTemplate) error
	GetFingerprint(ctx context.Context, id ir.Identity) (ir.FingerprintTemplate, error)
}

// Matcher enrolls and verifies fingerprints against a TemplateStore.
type Matcher struct {
	store    TemplateStore
	strategy Strategy
	logger   *slog.Logger
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithLogger sets the matcher's logger.
func WithLogger(l *slog.Logger) MatcherOption {
	return func(m *Matcher) {
		m.logger = l
	}
}

// NewMatcher creates a Matcher. A nil strategy selects ExactMatch.
func NewMatcher(s TemplateStore, strategy Strategy, opts ...MatcherOption) *Matcher {
	if strategy == nil {
		strategy = ExactMatch{}
	}
	m := &Matcher{
		store:    s,
		strategy: strategy,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Strategy returns the strategy in use.
func (m *Matcher) Strategy() Strategy {
	return m.strategy
}

// Enroll extracts a template from sample and stores it for id,
// replacing any earlier template.
func (m *Matcher) Enroll(ctx context.Context, id ir.Identity, sample ir.FingerprintSample) error {
	if err := id.Validate(); err != nil {
		return fmt.Errorf("enroll fingerprint: %w", err)
	}
	tmpl, err := Extract(sample)
	if err != nil {
		return fmt.Errorf("enroll fingerprint %q: %w", id, err)
	}
	if err := m.store.PutFingerprint(ctx, id, tmpl); err != nil {
		return fmt.Errorf("enroll fingerprint %q: %w", id, err)
	}
	m.logger.Info("fingerprint enrolled", "identity", id.String(), "dims", len(tmpl))
	return nil
}

// Verify reports whether sample matches the template enrolled for id.
//
// An identity without a template yields false, not an error. Errors are
// returned only for storage failures. Verify never writes.
func (m *Matcher) Verify(ctx context.Context, id ir.Identity, sample ir.FingerprintSample) (bool, error) {
	stored, err := m.store.GetFingerprint(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("verify fingerprint %q: %w", id, err)
	}

	live, err := Extract(sample)
	if err != nil {
		// A malformed live sample can never match.
		return false, nil
	}

	score, err := m.strategy.Compare(stored, live)
	if err != nil {
		return false, fmt.Errorf("verify fingerprint %q: %w", id, err)
	}
	m.logger.Debug("fingerprint compared",
		"identity", id.String(),
		"strategy", m.strategy.Name(),
		"similarity", score.Similarity,
		"matched", score.Matched)
	return score.Matched, nil
}

// Extract turns a raw sample into a template.
// Samples are already feature vectors, so extraction validates and copies.
func Extract(sample ir.FingerprintSample) (ir.FingerprintTemplate, error) {
	if err := ir.ValidateVector(sample); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	return ir.FingerprintTemplate(ir.CloneVector(sample)), nil
}
