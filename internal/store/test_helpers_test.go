package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/roach88/biogate/internal/ir"
)

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(clockwork.NewFakeClockAt(testEpoch)))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestAttempt creates an attempt with the fields a session would fill.
func createTestAttempt(session string, id ir.Identity, outcome ir.Outcome, reason ir.Reason) ir.AuthAttempt {
	a := ir.AuthAttempt{
		SessionID:   session,
		Identity:    id,
		Timestamp:   testEpoch,
		Fingerprint: ir.FactorPass,
		Face:        ir.FactorPass,
		Outcome:     outcome,
		Reason:      reason,
		Frames:      1,
	}
	if outcome != ir.OutcomeSuccess {
		a.Face = ir.FactorFail
	}
	return a
}
