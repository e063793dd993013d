package testutil

import (
	"context"
	"sync"

	"github.com/roach88/biogate/internal/face"
	"github.com/roach88/biogate/internal/ir"
)

// StubFingerprint is a fingerprint verifier with a fixed answer.
// Thread-safety: safe for concurrent use.
type StubFingerprint struct {
	mu     sync.Mutex
	Result bool
	Err    error
	calls  int
}

// Verify returns the configured result and counts the call.
func (s *StubFingerprint) Verify(_ context.Context, _ ir.Identity, _ ir.FingerprintSample) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.Result, s.Err
}

// Calls returns how many times Verify was invoked.
func (s *StubFingerprint) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// CountingFace is a face verifier that answers from a script and counts
// invocations. Once the script runs out it answers false.
type CountingFace struct {
	mu      sync.Mutex
	Results []bool
	Err     error
	calls   int
}

// VerifyFrame implements the session face verifier.
func (c *CountingFace) VerifyFrame(_ context.Context, _ ir.Identity, _ face.Image, _ float64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.Err != nil {
		return false, c.Err
	}
	if c.calls <= len(c.Results) {
		return c.Results[c.calls-1], nil
	}
	return false, nil
}

// Calls returns how many frames were evaluated.
func (c *CountingFace) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Enrollment answers enrollment checks from a fixed table.
type Enrollment struct {
	Summaries map[ir.Identity]ir.IdentitySummary
	Err       error
}

// GetIdentity implements the session enrollment checker.
func (e Enrollment) GetIdentity(_ context.Context, id ir.Identity) (ir.IdentitySummary, error) {
	if e.Err != nil {
		return ir.IdentitySummary{}, e.Err
	}
	s, ok := e.Summaries[id]
	if !ok {
		return ir.IdentitySummary{Identity: id}, nil
	}
	return s, nil
}

// Eligible returns an Enrollment in which every given identity has both
// factors enrolled.
func Eligible(ids ...ir.Identity) Enrollment {
	e := Enrollment{Summaries: map[ir.Identity]ir.IdentitySummary{}}
	for _, id := range ids {
		e.Summaries[id] = ir.IdentitySummary{Identity: id, HasFingerprint: true, FaceEmbeddings: 1}
	}
	return e
}

// Recorder keeps appended attempts in memory and assigns seqs.
type Recorder struct {
	mu       sync.Mutex
	Err      error
	attempts []ir.AuthAttempt
}

// Append implements the session attempt recorder.
func (r *Recorder) Append(_ context.Context, a ir.AuthAttempt) (ir.AuthAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return ir.AuthAttempt{}, r.Err
	}
	a.Seq = int64(len(r.attempts) + 1)
	r.attempts = append(r.attempts, a)
	return a, nil
}

// Attempts returns a copy of everything appended.
func (r *Recorder) Attempts() []ir.AuthAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.AuthAttempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}
