package face

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/roach88/biogate/internal/distance"
	"github.com/roach88/biogate/internal/ir"
	"github.com/roach88/biogate/internal/store"
)

// DefaultTolerance is the maximum distance at which two faces match.
const DefaultTolerance = 0.5

// DefaultMaxEmbeddings is the default per-identity embedding cap.
const DefaultMaxEmbeddings = 10

var (
	// ErrInvalidEmbedding is returned for empty, non-finite or
	// dimensionally inconsistent embeddings.
	ErrInvalidEmbedding = errors.New("invalid face embedding")

	// ErrNoFaceDetected is returned when an enrollment image has no face.
	ErrNoFaceDetected = errors.New("no face detected")
)

// EmbeddingStore is the storage the matcher needs.
type EmbeddingStore interface {
	AddFaceEmbedding(ctx context.Context, id ir.Identity, emb ir.FaceEmbedding, maxPerIdentity int) (int64, error)
	ListFaceEmbeddings(ctx context.Context) ([]ir.FaceRecord, error)
}

// Match is the result of matching one embedding against the store.
type Match struct {
	Matched bool
	// Identity is set only when Matched.
	Identity mo.Option[ir.Identity]
	// Distance is the best distance found; zero when nothing is enrolled.
	Distance float64
}

// Recognition is one face in a frame that matched an enrolled identity.
type Recognition struct {
	Identity ir.Identity `json:"identity"`
	Distance float64     `json:"distance"`
	Box      Box         `json:"box"`
}

// FrameResult describes one processed frame.
type FrameResult struct {
	Faces      int           `json:"faces"`
	Recognized []Recognition `json:"recognized"`
}

// Identities returns the recognized identities in detection order.
func (r FrameResult) Identities() []ir.Identity {
	return lo.Map(r.Recognized, func(rec Recognition, _ int) ir.Identity {
		return rec.Identity
	})
}

// Contains reports whether id was recognized in the frame.
func (r FrameResult) Contains(id ir.Identity) bool {
	return lo.Contains(r.Identities(), id)
}

// Matcher enrolls face embeddings and matches probes against them.
type Matcher struct {
	store          EmbeddingStore
	extractor      Extractor
	metric         distance.Func
	maxPerIdentity int
	logger         *slog.Logger
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithMetric sets the distance metric. Default: Euclidean.
func WithMetric(f distance.Func) MatcherOption {
	return func(m *Matcher) {
		m.metric = f
	}
}

// WithMaxEmbeddings caps enrolled embeddings per identity, keeping the most
// recent. Zero disables the cap.
func WithMaxEmbeddings(n int) MatcherOption {
	return func(m *Matcher) {
		m.maxPerIdentity = n
	}
}

// WithLogger sets the matcher's logger.
func WithLogger(l *slog.Logger) MatcherOption {
	return func(m *Matcher) {
		m.logger = l
	}
}

// NewMatcher creates a Matcher. A nil extractor uses JSONExtractor.
func NewMatcher(s EmbeddingStore, extractor Extractor, opts ...MatcherOption) *Matcher {
	if extractor == nil {
		extractor = JSONExtractor{}
	}
	m := &Matcher{
		store:          s,
		extractor:      extractor,
		metric:         distance.Euclidean,
		maxPerIdentity: DefaultMaxEmbeddings,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enroll appends an embedding for id. Earlier embeddings are kept, up to the
// configured cap.
func (m *Matcher) Enroll(ctx context.Context, id ir.Identity, emb ir.FaceEmbedding) error {
	if err := id.Validate(); err != nil {
		return fmt.Errorf("enroll face: %w", err)
	}
	if err := ir.ValidateVector(emb); err != nil {
		return fmt.Errorf("enroll face %q: %w: %v", id, ErrInvalidEmbedding, err)
	}

	seq, err := m.store.AddFaceEmbedding(ctx, id, ir.FaceEmbedding(ir.CloneVector(emb)), m.maxPerIdentity)
	if errors.Is(err, store.ErrDimensionMismatch) || errors.Is(err, store.ErrEmptyVector) {
		return fmt.Errorf("enroll face %q: %w: %v", id, ErrInvalidEmbedding, err)
	}
	if err != nil {
		return fmt.Errorf("enroll face %q: %w", id, err)
	}

	m.logger.Info("face enrolled", "identity", id.String(), "seq", seq, "dims", len(emb))
	return nil
}

// EnrollImage extracts faces from img and enrolls the first one.
func (m *Matcher) EnrollImage(ctx context.Context, id ir.Identity, img Image) error {
	detections, err := m.extractor.Extract(ctx, img)
	if err != nil {
		return fmt.Errorf("enroll face %q: %w", id, err)
	}
	if len(detections) == 0 {
		return fmt.Errorf("enroll face %q: %w", id, ErrNoFaceDetected)
	}
	if len(detections) > 1 {
		m.logger.Warn("multiple faces in enrollment image, using the first",
			"identity", id.String(), "faces", len(detections))
	}
	return m.Enroll(ctx, id, detections[0].Embedding)
}

// Verify matches emb against every enrolled embedding.
//
// The best candidate is the smallest distance, first-inserted on ties, and
// it matches only if its distance is within tolerance. An empty store, or a
// probe whose length differs from the enrolled embeddings, never matches.
func (m *Matcher) Verify(ctx context.Context, emb ir.FaceEmbedding, tolerance float64) (Match, error) {
	if err := ir.ValidateVector(emb); err != nil {
		return Match{}, fmt.Errorf("verify face: %w: %v", ErrInvalidEmbedding, err)
	}
	records, err := m.store.ListFaceEmbeddings(ctx)
	if err != nil {
		return Match{}, fmt.Errorf("verify face: %w", err)
	}
	return m.match(records, emb, tolerance)
}

// VerifyIdentity reports whether emb matches and the best match is id.
func (m *Matcher) VerifyIdentity(ctx context.Context, id ir.Identity, emb ir.FaceEmbedding, tolerance float64) (bool, error) {
	match, err := m.Verify(ctx, emb, tolerance)
	if err != nil {
		return false, err
	}
	return match.Matched && match.Identity.OrEmpty() == id, nil
}

// RecognizeFrame matches every face in img against one snapshot of the
// enrolled embeddings.
//
// Extractor failures are returned wrapped; callers decide whether an
// unreadable frame is fatal.
func (m *Matcher) RecognizeFrame(ctx context.Context, img Image, tolerance float64) (FrameResult, error) {
	detections, err := m.extractor.Extract(ctx, img)
	if err != nil {
		return FrameResult{}, fmt.Errorf("recognize frame: %w", err)
	}
	result := FrameResult{Faces: len(detections), Recognized: []Recognition{}}
	if len(detections) == 0 {
		return result, nil
	}

	records, err := m.store.ListFaceEmbeddings(ctx)
	if err != nil {
		return FrameResult{}, fmt.Errorf("recognize frame: %w", err)
	}

	for _, det := range detections {
		if ir.ValidateVector(det.Embedding) != nil {
			continue
		}
		match, err := m.match(records, det.Embedding, tolerance)
		if err != nil {
			return FrameResult{}, fmt.Errorf("recognize frame: %w", err)
		}
		if id, ok := match.Identity.Get(); ok && match.Matched {
			result.Recognized = append(result.Recognized, Recognition{
				Identity: id,
				Distance: match.Distance,
				Box:      det.Box,
			})
		}
	}
	return result, nil
}

// FramesResult is the outcome of a bounded multi-frame verification.
type FramesResult struct {
	Matched  bool
	Frames   int
	TimedOut bool
}

// VerifyFrames checks frames in order until one recognizes id or the budget
// is spent. Unreadable frames consume budget like frames without a face.
func (m *Matcher) VerifyFrames(ctx context.Context, id ir.Identity, frames []Image, tolerance float64, budget *FrameBudget) (FramesResult, error) {
	return m.CaptureAndVerify(ctx, id, NewFrameQueue(frames...), tolerance, budget)
}

// CaptureAndVerify pulls frames from cam until one recognizes id, the
// budget is spent, or the camera runs dry.
func (m *Matcher) CaptureAndVerify(ctx context.Context, id ir.Identity, cam Camera, tolerance float64, budget *FrameBudget) (FramesResult, error) {
	for {
		if err := budget.Check(); err != nil {
			return FramesResult{Frames: budget.Used(), TimedOut: IsTimeout(err)}, nil
		}

		img, err := cam.Frame(ctx)
		if errors.Is(err, io.EOF) {
			return FramesResult{Frames: budget.Used() - 1}, nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return FramesResult{Frames: budget.Used()}, ctxErr
			}
			m.logger.Warn("camera frame failed", "identity", id.String(), "error", err)
			continue
		}

		ok, err := m.verifyFrame(ctx, id, img, tolerance)
		if err != nil {
			return FramesResult{Frames: budget.Used()}, err
		}
		if ok {
			return FramesResult{Matched: true, Frames: budget.Used()}, nil
		}
	}
}

// VerifyFrame reports whether any face in img is recognized as id.
// Unreadable images count as frames without a face.
func (m *Matcher) VerifyFrame(ctx context.Context, id ir.Identity, img Image, tolerance float64) (bool, error) {
	return m.verifyFrame(ctx, id, img, tolerance)
}

func (m *Matcher) verifyFrame(ctx context.Context, id ir.Identity, img Image, tolerance float64) (bool, error) {
	result, err := m.RecognizeFrame(ctx, img, tolerance)
	if errors.Is(err, ErrUnreadableImage) {
		m.logger.Warn("unreadable face frame", "identity", id.String(), "error", err)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result.Contains(id), nil
}

func (m *Matcher) match(records []ir.FaceRecord, emb ir.FaceEmbedding, tolerance float64) (Match, error) {
	if len(records) == 0 {
		return Match{Identity: mo.None[ir.Identity]()}, nil
	}

	best := -1
	var bestDist float64
	for i, rec := range records {
		d, err := m.metric(rec.Embedding, emb)
		if errors.Is(err, distance.ErrDimension) {
			continue
		}
		if err != nil {
			return Match{}, err
		}
		// Strict less-than keeps the first-inserted embedding on ties.
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Match{Identity: mo.None[ir.Identity]()}, nil
	}

	if bestDist > tolerance {
		return Match{Identity: mo.None[ir.Identity](), Distance: bestDist}, nil
	}
	return Match{
		Matched:  true,
		Identity: mo.Some(records[best].Identity),
		Distance: bestDist,
	}, nil
}
