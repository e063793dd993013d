// Package verifier is the operation surface biogate exposes to its host
// application: enrollment, two-factor verification sessions and the audit
// log. The CLI and the local HTTP API are thin layers over Service.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/jonboulle/clockwork"

	"github.com/roach88/biogate/internal/audit"
	"github.com/roach88/biogate/internal/distance"
	"github.com/roach88/biogate/internal/face"
	"github.com/roach88/biogate/internal/fingerprint"
	"github.com/roach88/biogate/internal/ir"
	"github.com/roach88/biogate/internal/session"
	"github.com/roach88/biogate/internal/store"
)

// DefaultSessionTTL is how long an unfinished session is kept.
const DefaultSessionTTL = 5 * time.Minute

// Service wires the store, both matchers and the audit log.
type Service struct {
	store        *store.Store
	fingerprints *fingerprint.Matcher
	faces        *face.Matcher
	audit        *audit.Log

	clock   clockwork.Clock
	handles session.Generator
	logger  *slog.Logger
	cfg     session.Config
	ttl     time.Duration

	strategy      fingerprint.Strategy
	metric        distance.Func
	maxEmbeddings int
	extractor     face.Extractor
	auditIDs      audit.IDGenerator

	mu       sync.Mutex
	sessions *linkedhashmap.Map // handle -> *session.Session, in start order
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock for sessions, timeouts and audit timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithLogger sets the logger used by the service and its components.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithHandleGenerator sets the session handle generator. Default: UUIDv7.
func WithHandleGenerator(g session.Generator) Option {
	return func(s *Service) {
		s.handles = g
	}
}

// WithAuditIDGenerator sets the audit record ID generator. Default: UUIDv7.
func WithAuditIDGenerator(g audit.IDGenerator) Option {
	return func(s *Service) {
		s.auditIDs = g
	}
}

// WithSessionConfig sets face tolerance and frame bounds.
func WithSessionConfig(cfg session.Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithSessionTTL sets how long unfinished sessions live. Zero disables expiry.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) {
		s.ttl = d
	}
}

// WithFingerprintStrategy sets the fingerprint matching strategy.
func WithFingerprintStrategy(st fingerprint.Strategy) Option {
	return func(s *Service) {
		s.strategy = st
	}
}

// WithFaceMetric sets the face distance metric.
func WithFaceMetric(f distance.Func) Option {
	return func(s *Service) {
		s.metric = f
	}
}

// WithMaxEmbeddings caps face embeddings per identity. Zero disables the cap.
func WithMaxEmbeddings(n int) Option {
	return func(s *Service) {
		s.maxEmbeddings = n
	}
}

// WithExtractor sets the face extractor. Default: JSONExtractor.
func WithExtractor(e face.Extractor) Option {
	return func(s *Service) {
		s.extractor = e
	}
}

// New creates a Service over an open store.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:         st,
		clock:         clockwork.NewRealClock(),
		handles:       session.UUIDv7Generator{},
		logger:        slog.Default(),
		cfg:           session.DefaultConfig(),
		ttl:           DefaultSessionTTL,
		strategy:      fingerprint.ExactMatch{},
		metric:        distance.Euclidean,
		maxEmbeddings: face.DefaultMaxEmbeddings,
		extractor:     face.JSONExtractor{},
		sessions:      linkedhashmap.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.fingerprints = fingerprint.NewMatcher(st, s.strategy, fingerprint.WithLogger(s.logger))
	s.faces = face.NewMatcher(st, s.extractor,
		face.WithMetric(s.metric),
		face.WithMaxEmbeddings(s.maxEmbeddings),
		face.WithLogger(s.logger))

	auditOpts := []audit.Option{audit.WithClock(s.clock), audit.WithLogger(s.logger)}
	if s.auditIDs != nil {
		auditOpts = append(auditOpts, audit.WithIDGenerator(s.auditIDs))
	}
	s.audit = audit.New(st, auditOpts...)
	return s
}

// SessionConfig returns the face-stage configuration in use.
func (s *Service) SessionConfig() session.Config {
	return s.cfg
}

// FingerprintStrategy returns the name of the fingerprint matching strategy.
func (s *Service) FingerprintStrategy() string {
	return s.fingerprints.Strategy().Name()
}

// classify maps component errors onto the operation error taxonomy.
func classify(id ir.Identity, err error) error {
	if err == nil {
		return nil
	}
	var se *session.Error
	if errors.As(err, &se) {
		return err
	}

	code := session.ErrCodeStorage
	switch {
	case errors.Is(err, ir.ErrInvalidIdentity):
		code = session.ErrCodeInvalidInput
	case errors.Is(err, fingerprint.ErrInvalidSample):
		code = session.ErrCodeInvalidSample
	case errors.Is(err, face.ErrInvalidEmbedding), errors.Is(err, store.ErrDimensionMismatch):
		code = session.ErrCodeInvalidEmbedding
	case errors.Is(err, face.ErrNoFaceDetected):
		code = session.ErrCodeNoFaceDetected
	case errors.Is(err, face.ErrUnreadableImage):
		code = session.ErrCodeInvalidInput
	case errors.Is(err, store.ErrIdentityExists):
		code = session.ErrCodeIdentityExists
	case store.IsStorageError(err):
		code = session.ErrCodeStorage
	}
	return &session.Error{Code: code, Identity: id.String(), Err: err}
}

// EnrollFingerprint stores the fingerprint template for id, replacing any
// earlier one.
func (s *Service) EnrollFingerprint(ctx context.Context, id ir.Identity, sample ir.FingerprintSample) error {
	return classify(id, s.fingerprints.Enroll(ctx, id, sample))
}

// EnrollFace enrolls the first face found in img for id.
func (s *Service) EnrollFace(ctx context.Context, id ir.Identity, img face.Image) error {
	return classify(id, s.faces.EnrollImage(ctx, id, img))
}

// EnrollFaceEmbedding enrolls a precomputed embedding for id.
func (s *Service) EnrollFaceEmbedding(ctx context.Context, id ir.Identity, emb ir.FaceEmbedding) error {
	return classify(id, s.faces.Enroll(ctx, id, emb))
}

// Register enrolls both factors for a new identity.
//
// An identity with anything enrolled is rejected with IDENTITY_EXISTS. Both
// inputs are validated before anything is written, and both factors are
// written in one store transaction that repeats the existence check, so
// concurrent registrations of the same identity cannot both succeed and a
// failed face write leaves no fingerprint behind.
func (s *Service) Register(ctx context.Context, id ir.Identity, sample ir.FingerprintSample, img face.Image) error {
	if err := id.Validate(); err != nil {
		return classify(id, err)
	}
	summary, err := s.store.GetIdentity(ctx, id)
	if err != nil {
		return classify(id, err)
	}
	if summary.HasFingerprint || summary.FaceEmbeddings > 0 {
		return classify(id, fmt.Errorf("register %q: %w", id, store.ErrIdentityExists))
	}

	tmpl, err := fingerprint.Extract(sample)
	if err != nil {
		return classify(id, err)
	}
	detections, err := s.extractor.Extract(ctx, img)
	if err != nil {
		return classify(id, err)
	}
	if len(detections) == 0 {
		return classify(id, fmt.Errorf("register %q: %w", id, face.ErrNoFaceDetected))
	}
	emb := detections[0].Embedding
	if err := ir.ValidateVector(emb); err != nil {
		return classify(id, fmt.Errorf("register %q: %w: %v", id, face.ErrInvalidEmbedding, err))
	}

	err = s.store.RegisterIdentity(ctx, id, tmpl, ir.FaceEmbedding(ir.CloneVector(emb)), s.maxEmbeddings)
	if err != nil {
		return classify(id, fmt.Errorf("register %q: %w", id, err))
	}
	s.logger.Info("identity registered", "identity", id.String(), "dims", len(emb))
	return nil
}

// Identities lists every identity with at least one enrolled factor.
func (s *Service) Identities(ctx context.Context) ([]ir.IdentitySummary, error) {
	ids, err := s.store.ListIdentities(ctx)
	if err != nil {
		return nil, classify("", err)
	}
	return ids, nil
}

// GetAuditLog returns every audit record in chronological order.
func (s *Service) GetAuditLog(ctx context.Context) ([]ir.AuthAttempt, error) {
	attempts, err := s.audit.ReadAll(ctx)
	if err != nil {
		return nil, classify("", err)
	}
	return attempts, nil
}

// AuditFor returns the audit records of one identity.
func (s *Service) AuditFor(ctx context.Context, id ir.Identity) ([]ir.AuthAttempt, error) {
	attempts, err := s.audit.ReadFor(ctx, id)
	if err != nil {
		return nil, classify(id, err)
	}
	return attempts, nil
}

// VerifyAuditChain recomputes the audit hash chain.
func (s *Service) VerifyAuditChain(ctx context.Context) (audit.ChainReport, error) {
	report, err := s.audit.VerifyChain(ctx)
	if err != nil {
		return audit.ChainReport{}, classify("", err)
	}
	return report, nil
}
