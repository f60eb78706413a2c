package trigger

import (
	"sync"
	"time"
)

// DefaultHoldThreshold is the continuous hold required to fire panic.
const DefaultHoldThreshold = 3 * time.Second

// HoldTracker implements the hold-to-confirm panic gesture. The caller
// reports hold start, "still holding" ticks and releases; the tracker fires
// once the hold spans the threshold without interruption. It is pure
// timestamp arithmetic with no timers of its own, so headless tests can
// drive it with synthetic events and assert exact boundary outcomes.
type HoldTracker struct {
	threshold time.Duration

	mu        sync.Mutex
	holding   bool
	fired     bool
	holdStart time.Time
}

func NewHoldTracker(threshold time.Duration) *HoldTracker {
	if threshold <= 0 {
		threshold = DefaultHoldThreshold
	}
	return &HoldTracker{threshold: threshold}
}

// Start begins a new hold at the given instant. Any prior progress is
// discarded; an interrupted hold requires the full threshold again.
func (h *HoldTracker) Start(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.holding = true
	h.fired = false
	h.holdStart = now
}

// Hold reports a "still holding" tick. It returns true exactly once per
// continuous hold, on the first tick at or past the threshold.
func (h *HoldTracker) Hold(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.holding || h.fired {
		return false
	}
	if now.Sub(h.holdStart) >= h.threshold {
		h.fired = true
		return true
	}
	return false
}

// Release ends the hold. Releasing before the threshold resets progress to
// zero and produces no signal.
func (h *HoldTracker) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.holding = false
	h.fired = false
	h.holdStart = time.Time{}
}

// Progress returns how long the current hold has been sustained, zero when
// not holding.
func (h *HoldTracker) Progress(now time.Time) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.holding {
		return 0
	}
	return now.Sub(h.holdStart)
}
