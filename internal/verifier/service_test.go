package verifier

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/biogate/internal/face"
	"github.com/roach88/biogate/internal/ir"
	"github.com/roach88/biogate/internal/session"
	"github.com/roach88/biogate/internal/store"
	"github.com/roach88/biogate/internal/testutil"
)

func createTestService(t *testing.T, opts ...Option) (*Service, *clockwork.FakeClock) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := testutil.NewClock()
	opts = append([]Option{
		WithClock(clock),
		WithHandleGenerator(session.NewSequenceGenerator("session")),
	}, opts...)
	return New(st, opts...), clock
}

func faceImage(t *testing.T, embs ...ir.FaceEmbedding) face.Image {
	t.Helper()
	var dets []face.Detection
	for _, e := range embs {
		dets = append(dets, face.Detection{Embedding: e})
	}
	img, err := face.EncodeJSONImage(dets...)
	require.NoError(t, err)
	return img
}

func vec(n int, v float64) ir.FaceEmbedding {
	e := make(ir.FaceEmbedding, n)
	for i := range e {
		e[i] = v
	}
	return e
}

func enrollAlice(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.EnrollFingerprint(ctx, "alice", ir.FingerprintSample{1, 2, 3}))
	require.NoError(t, svc.EnrollFace(ctx, "alice", faceImage(t, vec(128, 0.1))))
}

func TestScenario_AliceSucceeds(t *testing.T) {
	svc, _ := createTestService(t)
	ctx := context.Background()
	enrollAlice(t, svc)

	snap, err := svc.StartVerification(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, session.StateFingerprintPending, snap.State)
	assert.Equal(t, "session-1", snap.Handle)

	snap, err = svc.SubmitFingerprint(ctx, snap.Handle, ir.FingerprintSample{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, session.StateFacePending, snap.State)

	probe := vec(128, 0.1)
	probe[0] += 0.3
	snap, err = svc.SubmitFaceFrame(ctx, snap.Handle, faceImage(t, probe))
	require.NoError(t, err)
	assert.Equal(t, session.StateSuccess, snap.State)

	log, err := svc.GetAuditLog(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, ir.OutcomeSuccess, log[0].Outcome)
	assert.Equal(t, ir.FactorPass, log[0].Fingerprint)
	assert.Equal(t, ir.FactorPass, log[0].Face)
	assert.Equal(t, 0, svc.ActiveSessions(), "terminal sessions are released")
}

func TestScenario_AliceWrongFingerprint(t *testing.T) {
	svc, _ := createTestService(t)
	ctx := context.Background()
	enrollAlice(t, svc)

	snap, err := svc.StartVerification(ctx, "alice")
	require.NoError(t, err)

	snap, err = svc.SubmitFingerprint(ctx, snap.Handle, ir.FingerprintSample{9, 9, 9})
	require.NoError(t, err)
	assert.Equal(t, session.StateFailed, snap.State)
	assert.Equal(t, ir.ReasonFingerprintMismatch, snap.Reason)

	_, err = svc.SubmitFaceFrame(ctx, snap.Handle, faceImage(t, vec(128, 0.1)))
	assert.True(t, session.IsNotFound(err), "released session accepts nothing")

	log, err := svc.GetAuditLog(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, ir.FactorFail, log[0].Fingerprint)
	assert.Equal(t, ir.FactorNotAttempted, log[0].Face)
}

func TestStartVerification_NeverEnrolled(t *testing.T) {
	svc, _ := createTestService(t)
	ctx := context.Background()

	snap, err := svc.StartVerification(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, session.StateFailed, snap.State)
	assert.Equal(t, ir.ReasonUnknownIdentity, snap.Reason)
	assert.Equal(t, 0, svc.ActiveSessions())

	log, err := svc.GetAuditLog(ctx)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestStartVerification_InvalidIdentity(t *testing.T) {
	svc, _ := createTestService(t)

	_, err := svc.StartVerification(context.Background(), "")
	assert.Equal(t, session.ErrCodeInvalidInput, session.CodeOf(err))
}

func TestAuditGrowsByOnePerSession(t *testing.T) {
	svc, _ := createTestService(t, WithSessionConfig(session.Config{Tolerance: 0.5, MaxFrames: 2}))
	ctx := context.Background()
	enrollAlice(t, svc)

	run := []func(string){
		func(h string) { svc.SubmitFingerprint(ctx, h, ir.FingerprintSample{0}) },
		func(h string) {
			svc.SubmitFingerprint(ctx, h, ir.FingerprintSample{1, 2, 3})
			svc.SubmitFaceFrame(ctx, h, faceImage(t))
			svc.SubmitFaceFrame(ctx, h, faceImage(t, vec(128, 5)))
		},
		func(h string) {
			svc.SubmitFingerprint(ctx, h, ir.FingerprintSample{1, 2, 3})
			svc.SubmitFaceFrame(ctx, h, faceImage(t, vec(128, 0.1)))
		},
		func(h string) { svc.Abandon(ctx, h) },
	}
	for i, fn := range run {
		snap, err := svc.StartVerification(ctx, "alice")
		require.NoError(t, err)
		fn(snap.Handle)

		log, err := svc.GetAuditLog(ctx)
		require.NoError(t, err)
		assert.Len(t, log, i+1)
	}

	report, err := svc.VerifyAuditChain(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 4, report.Records)
}

func TestSweepExpired(t *testing.T) {
	svc, clock := createTestService(t, WithSessionTTL(time.Minute))
	ctx := context.Background()
	enrollAlice(t, svc)

	first, err := svc.StartVerification(ctx, "alice")
	require.NoError(t, err)
	clock.Advance(45 * time.Second)
	second, err := svc.StartVerification(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, svc.ActiveSessions())

	clock.Advance(30 * time.Second)
	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Session(ctx, first.Handle)
	assert.True(t, session.IsNotFound(err))
	snap, err := svc.Session(ctx, second.Handle)
	require.NoError(t, err)
	assert.Equal(t, session.StateFingerprintPending, snap.State)

	log, err := svc.GetAuditLog(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, ir.OutcomeAbandoned, log[0].Outcome)
	assert.Equal(t, first.Handle, log[0].SessionID)
}

func TestRegister(t *testing.T) {
	svc, _ := createTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "alice", ir.FingerprintSample{1, 2, 3}, faceImage(t, vec(4, 0))))

	err := svc.Register(ctx, "alice", ir.FingerprintSample{4}, faceImage(t, vec(4, 1)))
	assert.Equal(t, session.ErrCodeIdentityExists, session.CodeOf(err))

	err = svc.Register(ctx, "bob", ir.FingerprintSample{4}, faceImage(t))
	assert.Equal(t, session.ErrCodeNoFaceDetected, session.CodeOf(err))

	err = svc.Register(ctx, "bob", ir.FingerprintSample{}, faceImage(t, vec(4, 1)))
	assert.Equal(t, session.ErrCodeInvalidSample, session.CodeOf(err))

	err = svc.Register(ctx, "bob", ir.FingerprintSample{4}, faceImage(t, vec(3, 1)))
	assert.Equal(t, session.ErrCodeInvalidEmbedding, session.CodeOf(err))

	ids, err := svc.Identities(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1, "failed registrations write nothing")
	assert.True(t, ids[0].Eligible())
}

// rendezvousExtractor holds every caller inside Extract until all of them
// have arrived, so each has already passed Register's early existence check.
type rendezvousExtractor struct {
	arrived sync.WaitGroup
}

func (r *rendezvousExtractor) Extract(ctx context.Context, img face.Image) ([]face.Detection, error) {
	r.arrived.Done()
	r.arrived.Wait()
	return face.JSONExtractor{}.Extract(ctx, img)
}

func TestRegister_ConcurrentSameIdentity(t *testing.T) {
	const n = 2
	ex := &rendezvousExtractor{}
	ex.arrived.Add(n)
	svc, _ := createTestService(t, WithExtractor(ex))
	ctx := context.Background()

	images := make([]face.Image, n)
	for i := range images {
		images[i] = faceImage(t, vec(4, float64(i)))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Register(ctx, "alice", ir.FingerprintSample{float64(i + 1)}, images[i])
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "only one registration succeeds")
			winner = i
			continue
		}
		assert.Equal(t, session.ErrCodeIdentityExists, session.CodeOf(err), "registration %d: %v", i, err)
	}
	require.NotEqual(t, -1, winner)

	ids, err := svc.Identities(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, 1, ids[0].FaceEmbeddings, "no embeddings from the losing registrant")

	tmpl, err := svc.store.GetFingerprint(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, ir.FingerprintTemplate{float64(winner + 1)}, tmpl)
}

// racingExtractor enrolls another identity's embedding of a different
// length while the registration is between validation and its write.
type racingExtractor struct {
	svc *Service
}

func (r *racingExtractor) Extract(ctx context.Context, img face.Image) ([]face.Detection, error) {
	if err := r.svc.EnrollFaceEmbedding(ctx, "bob", vec(3, 0)); err != nil {
		return nil, err
	}
	return face.JSONExtractor{}.Extract(ctx, img)
}

func TestRegister_FailedFaceWriteLeavesNoFingerprint(t *testing.T) {
	ex := &racingExtractor{}
	svc, _ := createTestService(t, WithExtractor(ex))
	ex.svc = svc
	ctx := context.Background()

	err := svc.Register(ctx, "alice", ir.FingerprintSample{1, 2, 3}, faceImage(t, vec(4, 0)))
	assert.Equal(t, session.ErrCodeInvalidEmbedding, session.CodeOf(err))

	has, err := svc.store.HasFingerprint(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, has, "fingerprint is not left behind")

	// alice is not stuck: a corrected registration goes through.
	svc.extractor = face.JSONExtractor{}
	require.NoError(t, svc.Register(ctx, "alice", ir.FingerprintSample{1, 2, 3}, faceImage(t, vec(3, 1))))
}

func TestEnroll_ConcurrentIdentities(t *testing.T) {
	svc, _ := createTestService(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ir.Identity(fmt.Sprintf("user-%d", i))
			assert.NoError(t, svc.EnrollFingerprint(ctx, id, ir.FingerprintSample{float64(i), 1}))
			assert.NoError(t, svc.EnrollFaceEmbedding(ctx, id, vec(8, float64(i))))
		}(i)
	}
	wg.Wait()

	ids, err := svc.Identities(ctx)
	require.NoError(t, err)
	require.Len(t, ids, n)
	for _, summary := range ids {
		assert.True(t, summary.Eligible(), "identity %s", summary.Identity)
		assert.Equal(t, 1, summary.FaceEmbeddings)
	}

	// Each identity verifies with its own factors only.
	for i := 0; i < n; i++ {
		id := ir.Identity(fmt.Sprintf("user-%d", i))
		snap, err := svc.StartVerification(ctx, id)
		require.NoError(t, err)
		snap, err = svc.SubmitFingerprint(ctx, snap.Handle, ir.FingerprintSample{float64(i), 1})
		require.NoError(t, err)
		require.Equal(t, session.StateFacePending, snap.State, "identity %s", id)
		snap, err = svc.SubmitFaceFrame(ctx, snap.Handle, faceImage(t, vec(8, float64(i))))
		require.NoError(t, err)
		assert.Equal(t, session.StateSuccess, snap.State, "identity %s", id)
	}
}

func TestMatchingSettings(t *testing.T) {
	svc, _ := createTestService(t, WithSessionConfig(session.Config{Tolerance: 0.4, MaxFrames: 3}))
	assert.Equal(t, "exact", svc.FingerprintStrategy())
	assert.Equal(t, 0.4, svc.SessionConfig().Tolerance)
	assert.Equal(t, 3, svc.SessionConfig().MaxFrames)
}

func TestEnroll_ErrorCodes(t *testing.T) {
	svc, _ := createTestService(t)
	ctx := context.Background()

	err := svc.EnrollFingerprint(ctx, "alice", nil)
	assert.Equal(t, session.ErrCodeInvalidSample, session.CodeOf(err))

	err = svc.EnrollFace(ctx, "alice", faceImage(t))
	assert.Equal(t, session.ErrCodeNoFaceDetected, session.CodeOf(err))

	err = svc.EnrollFace(ctx, "alice", face.Image("{"))
	assert.Equal(t, session.ErrCodeInvalidInput, session.CodeOf(err))

	require.NoError(t, svc.EnrollFaceEmbedding(ctx, "alice", vec(3, 0)))
	err = svc.EnrollFaceEmbedding(ctx, "bob", vec(2, 0))
	assert.Equal(t, session.ErrCodeInvalidEmbedding, session.CodeOf(err))
}

func TestUnknownHandle(t *testing.T) {
	svc, _ := createTestService(t)

	_, err := svc.SubmitFingerprint(context.Background(), "nope", ir.FingerprintSample{1})
	assert.True(t, session.IsNotFound(err))
}
