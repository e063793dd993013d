package testutil

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Epoch is the instant every test clock starts at.
var Epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// NewClock returns a fake clock set to Epoch.
//
// Time only moves when the test calls Advance, so timestamps, TTLs and
// frame deadlines are deterministic.
func NewClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(Epoch)
}
