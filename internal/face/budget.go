package face

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultMaxFrames is the frame bound of one live verification.
const DefaultMaxFrames = 30

// FrameBudget bounds one live face verification by frame count and,
// optionally, by wall-clock time.
//
// Every submitted frame consumes budget, including frames in which no face
// was found. A FrameBudget belongs to one session and is not safe for
// concurrent use.
type FrameBudget struct {
	maxFrames int
	used      int
	deadline  time.Time
	clock     clockwork.Clock
}

// NewFrameBudget creates a budget of maxFrames frames. A zero timeout
// disables the wall-clock bound. A nil clock uses the real clock.
func NewFrameBudget(maxFrames int, timeout time.Duration, clock clockwork.Clock) *FrameBudget {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	b := &FrameBudget{
		maxFrames: maxFrames,
		clock:     clock,
	}
	if timeout > 0 {
		b.deadline = clock.Now().Add(timeout)
	}
	return b
}

// Check consumes one frame.
//
// Returns BudgetExceededError, without consuming, if the frame bound is
// already spent or the deadline has passed.
func (b *FrameBudget) Check() error {
	if b.Expired() {
		return &BudgetExceededError{Frames: b.used, Limit: b.maxFrames, Timeout: true}
	}
	if b.used >= b.maxFrames {
		return &BudgetExceededError{Frames: b.used, Limit: b.maxFrames}
	}
	b.used++
	return nil
}

// Exhausted reports whether every frame has been consumed.
func (b *FrameBudget) Exhausted() bool {
	return b.used >= b.maxFrames
}

// Expired reports whether the wall-clock deadline has passed.
func (b *FrameBudget) Expired() bool {
	return !b.deadline.IsZero() && b.clock.Now().After(b.deadline)
}

// Used returns the number of frames consumed.
func (b *FrameBudget) Used() int {
	return b.used
}

// MaxFrames returns the frame bound.
func (b *FrameBudget) MaxFrames() int {
	return b.maxFrames
}

// Deadline returns the wall-clock deadline, or the zero time when none is set.
func (b *FrameBudget) Deadline() time.Time {
	return b.deadline
}

// BudgetExceededError is returned by Check once the budget is spent.
type BudgetExceededError struct {
	Frames  int
	Limit   int
	Timeout bool
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("face verification timed out after %d frames", e.Frames)
	}
	return fmt.Sprintf("face frame budget exhausted: %d frames >= %d limit", e.Frames, e.Limit)
}

// IsBudgetExceeded returns true if err is a BudgetExceededError.
// Uses errors.As to handle wrapped errors.
func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}

// IsTimeout returns true if err is a BudgetExceededError caused by the deadline.
func IsTimeout(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be) && be.Timeout
}
