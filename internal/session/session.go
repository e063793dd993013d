// Package session implements the two-factor verification state machine.
//
// A session moves START -> FINGERPRINT_PENDING -> FACE_PENDING and ends in
// SUCCESS, FAILED or ABANDONED. The fingerprint gate is fail-fast: a face is
// never evaluated unless the fingerprint for the same session matched.
//
// Every terminal transition records exactly one AuthAttempt. Nothing in a
// terminal session can be retried; a new session must be started.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/roach88/biogate/internal/face"
	"github.com/roach88/biogate/internal/ir"
)

// State is a session state.
type State string

const (
	StateStart              State = "START"
	StateFingerprintPending State = "FINGERPRINT_PENDING"
	StateFacePending        State = "FACE_PENDING"
	StateSuccess            State = "SUCCESS"
	StateFailed             State = "FAILED"
	StateAbandoned          State = "ABANDONED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateAbandoned
}

func (s State) outcome() ir.Outcome {
	switch s {
	case StateSuccess:
		return ir.OutcomeSuccess
	case StateAbandoned:
		return ir.OutcomeAbandoned
	default:
		return ir.OutcomeFailed
	}
}

// FingerprintVerifier checks a live fingerprint sample for an identity.
type FingerprintVerifier interface {
	Verify(ctx context.Context, id ir.Identity, sample ir.FingerprintSample) (bool, error)
}

// FaceVerifier checks whether a frame shows the claimed identity.
type FaceVerifier interface {
	VerifyFrame(ctx context.Context, id ir.Identity, img face.Image, tolerance float64) (bool, error)
}

// EnrollmentChecker reports what an identity has enrolled.
type EnrollmentChecker interface {
	GetIdentity(ctx context.Context, id ir.Identity) (ir.IdentitySummary, error)
}

// AttemptRecorder persists the final audit record of a session.
type AttemptRecorder interface {
	Append(ctx context.Context, a ir.AuthAttempt) (ir.AuthAttempt, error)
}

// Deps are the collaborators of a session.
type Deps struct {
	Enrollment  EnrollmentChecker
	Fingerprint FingerprintVerifier
	Face        FaceVerifier
	Recorder    AttemptRecorder
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Config bounds the face stage.
type Config struct {
	// Tolerance is the maximum face distance that matches.
	Tolerance float64

	// MaxFrames is the number of frames the face stage accepts.
	MaxFrames int

	// FrameTimeout bounds the face stage in wall-clock time. Zero disables it.
	FrameTimeout time.Duration
}

// DefaultConfig returns the default face-stage bounds.
func DefaultConfig() Config {
	return Config{
		Tolerance:    face.DefaultTolerance,
		MaxFrames:    face.DefaultMaxFrames,
		FrameTimeout: 30 * time.Second,
	}
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Handle      string          `json:"handle"`
	Identity    ir.Identity     `json:"identity"`
	State       State           `json:"state"`
	Reason      ir.Reason       `json:"reason,omitempty"`
	Fingerprint ir.FactorResult `json:"fingerprint"`
	Face        ir.FactorResult `json:"face"`
	Frames      int             `json:"frames"`
	MaxFrames   int             `json:"max_frames"`
	StartedAt   time.Time       `json:"started_at"`

	// Attempt is the recorded audit entry once the session is terminal.
	Attempt *ir.AuthAttempt `json:"attempt,omitempty"`
}

// Session is one verification attempt. It is safe for concurrent use;
// operations on one session are serialized.
type Session struct {
	mu sync.Mutex

	handle   string
	identity ir.Identity
	cfg      Config
	deps     Deps

	state       State
	reason      ir.Reason
	fingerprint ir.FactorResult
	face        ir.FactorResult
	budget      *face.FrameBudget
	startedAt   time.Time
	recorded    bool
	attempt     *ir.AuthAttempt
}

// New creates a session in START. Call Start to check enrollment.
func New(handle string, id ir.Identity, cfg Config, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = face.DefaultMaxFrames
	}
	return &Session{
		handle:      handle,
		identity:    id,
		cfg:         cfg,
		deps:        deps,
		state:       StateStart,
		fingerprint: ir.FactorNotAttempted,
		face:        ir.FactorNotAttempted,
		startedAt:   deps.Clock.Now().UTC(),
	}
}

// Handle returns the session handle.
func (s *Session) Handle() string {
	return s.handle
}

// Identity returns the claimed identity.
func (s *Session) Identity() ir.Identity {
	return s.identity
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		Handle:      s.handle,
		Identity:    s.identity,
		State:       s.state,
		Reason:      s.reason,
		Fingerprint: s.fingerprint,
		Face:        s.face,
		MaxFrames:   s.cfg.MaxFrames,
		StartedAt:   s.startedAt,
	}
	if s.budget != nil {
		snap.Frames = s.budget.Used()
	}
	if s.attempt != nil {
		a := *s.attempt
		snap.Attempt = &a
	}
	return snap
}

// Start checks that the identity is eligible for verification.
//
// No fingerprint template ends the session FAILED with UnknownIdentity; a
// fingerprint without any face embedding ends it FAILED with
// IncompleteEnrollment. Otherwise the session waits for a fingerprint.
func (s *Session) Start(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStart {
		return s.state, NewStateError(s.handle, s.state, "start")
	}

	summary, err := s.deps.Enrollment.GetIdentity(ctx, s.identity)
	if err != nil {
		return s.state, NewStorageError(s.handle, err)
	}
	switch {
	case !summary.HasFingerprint:
		return s.finish(ctx, StateFailed, ir.ReasonUnknownIdentity)
	case summary.FaceEmbeddings == 0:
		return s.finish(ctx, StateFailed, ir.ReasonIncompleteEnrollment)
	}

	s.transition(StateFingerprintPending)
	return s.state, nil
}

// SubmitFingerprint evaluates the one fingerprint sample the session accepts.
//
// A mismatch ends the session FAILED with FingerprintMismatch and the face
// factor is never evaluated.
func (s *Session) SubmitFingerprint(ctx context.Context, sample ir.FingerprintSample) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFingerprintPending {
		return s.state, NewStateError(s.handle, s.state, "fingerprint")
	}

	ok, err := s.deps.Fingerprint.Verify(ctx, s.identity, sample)
	if err != nil {
		return s.state, NewStorageError(s.handle, err)
	}
	if !ok {
		s.fingerprint = ir.FactorFail
		return s.finish(ctx, StateFailed, ir.ReasonFingerprintMismatch)
	}

	s.fingerprint = ir.FactorPass
	s.budget = face.NewFrameBudget(s.cfg.MaxFrames, s.cfg.FrameTimeout, s.deps.Clock)
	s.transition(StateFacePending)
	return s.state, nil
}

// SubmitFaceFrame evaluates one camera frame.
//
// Every frame consumes budget, with or without a face in it. The first
// frame that shows the claimed identity ends the session in SUCCESS. When
// the last frame fails the session ends FAILED with FaceMismatch; a frame
// arriving after the deadline ends it FAILED with FaceTimeout.
func (s *Session) SubmitFaceFrame(ctx context.Context, img face.Image) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFacePending {
		return s.state, NewStateError(s.handle, s.state, "face frame")
	}

	if err := s.budget.Check(); err != nil {
		s.face = ir.FactorFail
		if face.IsTimeout(err) {
			return s.finish(ctx, StateFailed, ir.ReasonFaceTimeout)
		}
		return s.finish(ctx, StateFailed, ir.ReasonFaceMismatch)
	}

	ok, err := s.deps.Face.VerifyFrame(ctx, s.identity, img, s.cfg.Tolerance)
	if err != nil {
		return s.state, NewStorageError(s.handle, err)
	}
	if ok {
		s.face = ir.FactorPass
		return s.finish(ctx, StateSuccess, ir.ReasonNone)
	}
	if s.budget.Exhausted() {
		s.face = ir.FactorFail
		return s.finish(ctx, StateFailed, ir.ReasonFaceMismatch)
	}

	s.deps.Logger.Debug("face frame rejected",
		"session", s.handle,
		"identity", s.identity.String(),
		"frames", s.budget.Used())
	return s.state, nil
}

// Abandon ends a non-terminal session and records it as ABANDONED.
// Factors that were not concluded are recorded as not_attempted.
func (s *Session) Abandon(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return s.state, NewStateError(s.handle, s.state, "abandon")
	}
	return s.finish(ctx, StateAbandoned, ir.ReasonAbandoned)
}

func (s *Session) transition(to State) {
	s.deps.Logger.Info("session transition",
		"session", s.handle,
		"identity", s.identity.String(),
		"from", string(s.state),
		"state", string(to))
	s.state = to
}

// finish moves to a terminal state and records the attempt. The state is
// terminal even when recording fails; the storage error is returned.
func (s *Session) finish(ctx context.Context, to State, reason ir.Reason) (State, error) {
	s.transition(to)
	s.reason = reason

	if s.recorded {
		return s.state, nil
	}
	s.recorded = true

	var frames int64
	if s.budget != nil {
		frames = int64(s.budget.Used())
	}
	attempt := ir.AuthAttempt{
		SessionID:   s.handle,
		Identity:    s.identity,
		Timestamp:   s.deps.Clock.Now().UTC(),
		Fingerprint: s.fingerprint,
		Face:        s.face,
		Outcome:     to.outcome(),
		Reason:      reason,
		Frames:      frames,
	}
	stored, err := s.deps.Recorder.Append(ctx, attempt)
	if err != nil {
		s.deps.Logger.Error("session outcome not recorded",
			"session", s.handle,
			"identity", s.identity.String(),
			"state", string(to),
			"reason", string(reason),
			"error", err)
		return s.state, NewStorageError(s.handle, err)
	}
	s.attempt = &stored

	s.deps.Logger.Info("session finished",
		"session", s.handle,
		"identity", s.identity.String(),
		"state", string(to),
		"reason", string(reason))
	return s.state, nil
}
