package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/roach88/biogate/internal/face"
	"github.com/roach88/biogate/internal/ir"
	"github.com/roach88/biogate/internal/session"
	"github.com/roach88/biogate/internal/store"
	"github.com/roach88/biogate/internal/testutil"
	"github.com/roach88/biogate/internal/verifier"
)

// Harness is the scenario execution engine.
type Harness struct {
	store  *store.Store
	svc    *verifier.Service
	clock  *clockwork.FakeClock
	logger *slog.Logger

	// handle is the session flow steps act on.
	handle string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a fake clock and
// sequential session handles, so results are reproducible.
//
// Execution flow:
// 1. Create fresh in-memory database and service
// 2. Execute setup steps (any failure aborts the run)
// 3. Execute flow steps, checking expect clauses
// 4. Read back the audit log
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewClock()
	h := &Harness{
		store:  st,
		clock:  clock,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.svc = verifier.New(st, h.options(scenario.Config)...)

	ctx := context.Background()
	result := NewResult()

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	h.executeFlow(ctx, scenario.Flow, result)

	attempts, err := h.svc.GetAuditLog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	for _, a := range attempts {
		result.Audit = append(result.Audit, auditEvent(a))
	}

	actx := &AssertionContext{Service: h.svc, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) options(cfg ScenarioConfig) []verifier.Option {
	sc := session.DefaultConfig()
	if cfg.Tolerance > 0 {
		sc.Tolerance = cfg.Tolerance
	}
	if cfg.MaxFrames > 0 {
		sc.MaxFrames = cfg.MaxFrames
	}
	if cfg.FrameTimeout > 0 {
		sc.FrameTimeout = cfg.FrameTimeout
	}

	opts := []verifier.Option{
		verifier.WithClock(h.clock),
		verifier.WithLogger(h.logger),
		verifier.WithHandleGenerator(session.NewSequenceGenerator("session")),
		verifier.WithAuditIDGenerator(session.NewSequenceGenerator("attempt")),
		verifier.WithSessionConfig(sc),
	}
	if cfg.SessionTTL > 0 {
		opts = append(opts, verifier.WithSessionTTL(cfg.SessionTTL))
	}
	if cfg.MaxEmbeddings > 0 {
		opts = append(opts, verifier.WithMaxEmbeddings(cfg.MaxEmbeddings))
	}
	return opts
}

// executeSetup runs all setup steps. Setup steps are assumed to succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []SetupStep) error {
	for i, step := range setup {
		id := ir.Identity(step.Identity)

		var err error
		switch step.Enroll {
		case EnrollFingerprint:
			err = h.svc.EnrollFingerprint(ctx, id, step.Sample)
		case EnrollFace:
			err = h.svc.EnrollFaceEmbedding(ctx, id, step.Embedding)
		case EnrollRegister:
			var img face.Image
			img, err = frame([][]float64{step.Embedding})
			if err == nil {
				err = h.svc.Register(ctx, id, step.Sample, img)
			}
		}
		if err != nil {
			return fmt.Errorf("setup step %d (%s %s): %w", i, step.Enroll, step.Identity, err)
		}
		h.logger.Info("setup step completed", "step", i, "enroll", step.Enroll, "identity", step.Identity)
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses. Operation
// errors are recorded in the trace; unexpected ones fail the result.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) {
	for i, step := range flow {
		var (
			snap session.Snapshot
			ev   StepEvent
			err  error
		)

		switch step.Do {
		case DoStart:
			snap, err = h.svc.StartVerification(ctx, ir.Identity(step.Identity))
			if snap.Handle != "" {
				h.handle = snap.Handle
			}
		case DoFingerprint:
			snap, err = h.svc.SubmitFingerprint(ctx, h.handle, step.Sample)
		case DoFace:
			snap, err = h.submitFrames(ctx, step, result)
		case DoAbandon:
			snap, err = h.svc.Abandon(ctx, h.handle)
		case DoAdvance:
			h.clock.Advance(step.Duration)
			result.AddStep(StepEvent{Do: DoAdvance})
			continue
		case DoSweep:
			n, sweepErr := h.svc.SweepExpired(ctx)
			if sweepErr != nil {
				result.AddError(fmt.Sprintf("flow[%d]: sweep: %v", i, sweepErr))
			}
			result.AddStep(StepEvent{Do: DoSweep, Swept: n})
			continue
		}

		ev = stepEvent(step.Do, snap, err)
		if step.Do != DoFace {
			result.AddStep(ev)
		}
		for _, msg := range checkExpect(i, step.Expect, ev, snap) {
			result.AddError(msg)
		}
	}
}

// submitFrames submits the step's frame Repeat times, recording each
// submission, and returns the last snapshot.
func (h *Harness) submitFrames(ctx context.Context, step FlowStep, result *Result) (session.Snapshot, error) {
	img, err := frame(step.Faces)
	if err != nil {
		return session.Snapshot{}, err
	}
	n := step.Repeat
	if n == 0 {
		n = 1
	}

	var snap session.Snapshot
	for k := 0; k < n; k++ {
		snap, err = h.svc.SubmitFaceFrame(ctx, h.handle, img)
		result.AddStep(stepEvent(DoFace, snap, err))
		if err != nil || snap.State.Terminal() {
			break
		}
	}
	return snap, err
}

// frame encodes the detected embeddings as one image.
func frame(faces [][]float64) (face.Image, error) {
	dets := make([]face.Detection, 0, len(faces))
	for _, emb := range faces {
		dets = append(dets, face.Detection{Embedding: emb})
	}
	return face.EncodeJSONImage(dets...)
}

func stepEvent(do string, snap session.Snapshot, err error) StepEvent {
	ev := StepEvent{
		Do:     do,
		Handle: snap.Handle,
		State:  string(snap.State),
		Reason: string(snap.Reason),
		Frames: snap.Frames,
	}
	if err != nil {
		ev.Error = string(session.CodeOf(err))
		if ev.Error == "" {
			ev.Error = err.Error()
		}
	}
	return ev
}

// checkExpect compares a step event against its expect clause. Without a
// clause any operation error is a failure.
func checkExpect(index int, expect *ExpectClause, ev StepEvent, snap session.Snapshot) []string {
	if expect == nil {
		if ev.Error != "" {
			return []string{fmt.Sprintf("flow[%d] %s: unexpected error %s", index, ev.Do, ev.Error)}
		}
		return nil
	}

	var errs []string
	check := func(field, want, got string) {
		if want != "" && want != got {
			errs = append(errs, fmt.Sprintf("flow[%d] %s: expected %s %q, got %q", index, ev.Do, field, want, got))
		}
	}
	check("error", expect.Error, ev.Error)
	if expect.Error == "" && ev.Error != "" {
		errs = append(errs, fmt.Sprintf("flow[%d] %s: unexpected error %s", index, ev.Do, ev.Error))
	}
	check("state", expect.State, ev.State)
	check("reason", expect.Reason, ev.Reason)
	check("fingerprint", expect.Fingerprint, string(snap.Fingerprint))
	check("face", expect.Face, string(snap.Face))
	if expect.Frames != nil && *expect.Frames != ev.Frames {
		errs = append(errs, fmt.Sprintf("flow[%d] %s: expected frames %d, got %d", index, ev.Do, *expect.Frames, ev.Frames))
	}
	return errs
}

func auditEvent(a ir.AuthAttempt) AuditEvent {
	return AuditEvent{
		Seq:         a.Seq,
		Identity:    a.Identity.String(),
		Fingerprint: string(a.Fingerprint),
		Face:        string(a.Face),
		Outcome:     string(a.Outcome),
		Reason:      string(a.Reason),
		Frames:      a.Frames,
	}
}
