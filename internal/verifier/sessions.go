package verifier

import (
	"context"

	"github.com/roach88/biogate/internal/face"
	"github.com/roach88/biogate/internal/ir"
	"github.com/roach88/biogate/internal/session"
)

// StartVerification opens a session for id and checks its enrollment.
//
// The returned snapshot may already be terminal (unknown identity or
// incomplete enrollment); that outcome is recorded in the audit log.
func (s *Service) StartVerification(ctx context.Context, id ir.Identity) (session.Snapshot, error) {
	if err := id.Validate(); err != nil {
		return session.Snapshot{}, classify(id, err)
	}
	if _, err := s.SweepExpired(ctx); err != nil {
		s.logger.Warn("session sweep failed", "error", err)
	}

	sess := session.New(s.handles.Generate(), id, s.cfg, session.Deps{
		Enrollment:  s.store,
		Fingerprint: s.fingerprints,
		Face:        s.faces,
		Recorder:    s.audit,
		Clock:       s.clock,
		Logger:      s.logger,
	})
	state, err := sess.Start(ctx)
	if err != nil && !state.Terminal() {
		return sess.Snapshot(), err
	}
	if !state.Terminal() {
		s.mu.Lock()
		s.sessions.Put(sess.Handle(), sess)
		s.mu.Unlock()
	}
	return sess.Snapshot(), err
}

// SubmitFingerprint feeds the session's one fingerprint sample.
func (s *Service) SubmitFingerprint(ctx context.Context, handle string, sample ir.FingerprintSample) (session.Snapshot, error) {
	return s.withSession(ctx, handle, func(sess *session.Session) error {
		_, err := sess.SubmitFingerprint(ctx, sample)
		return err
	})
}

// SubmitFaceFrame feeds one camera frame to the session.
func (s *Service) SubmitFaceFrame(ctx context.Context, handle string, img face.Image) (session.Snapshot, error) {
	return s.withSession(ctx, handle, func(sess *session.Session) error {
		_, err := sess.SubmitFaceFrame(ctx, img)
		return err
	})
}

// Abandon ends a session and records it as ABANDONED.
func (s *Service) Abandon(ctx context.Context, handle string) (session.Snapshot, error) {
	return s.withSession(ctx, handle, func(sess *session.Session) error {
		_, err := sess.Abandon(ctx)
		return err
	})
}

// Session returns the current snapshot of a live session.
func (s *Service) Session(ctx context.Context, handle string) (session.Snapshot, error) {
	return s.withSession(ctx, handle, func(*session.Session) error { return nil })
}

// ActiveSessions returns the number of unfinished sessions.
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Size()
}

// SweepExpired abandons sessions older than the TTL and releases them.
// Returns the number of sessions swept.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.clock.Now().Add(-s.ttl)

	var expired []*session.Session
	s.mu.Lock()
	it := s.sessions.Iterator()
	for it.Next() {
		sess := it.Value().(*session.Session)
		// Start order: the first live session ends the expired prefix.
		if !sess.StartedAt().Before(cutoff) {
			break
		}
		expired = append(expired, sess)
	}
	for _, sess := range expired {
		s.sessions.Remove(sess.Handle())
	}
	s.mu.Unlock()

	var firstErr error
	for _, sess := range expired {
		if _, err := sess.Abandon(ctx); err != nil && !session.IsInvalidState(err) && firstErr == nil {
			firstErr = err
		}
		s.logger.Info("session expired", "session", sess.Handle(), "identity", sess.Identity().String())
	}
	return len(expired), firstErr
}

func (s *Service) lookup(handle string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sessions.Get(handle)
	if !ok {
		return nil, false
	}
	return v.(*session.Session), true
}

func (s *Service) release(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Remove(handle)
}

// withSession runs fn against a live session and releases the session once
// it is terminal.
func (s *Service) withSession(ctx context.Context, handle string, fn func(*session.Session) error) (session.Snapshot, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		s.logger.Warn("session sweep failed", "error", err)
	}
	sess, ok := s.lookup(handle)
	if !ok {
		return session.Snapshot{}, session.NewNotFoundError(handle)
	}

	err := fn(sess)
	snap := sess.Snapshot()
	if snap.State.Terminal() {
		s.release(handle)
	}
	return snap, err
}
