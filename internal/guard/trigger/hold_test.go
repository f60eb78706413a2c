package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHoldFiresAtExactThreshold(t *testing.T) {
	tr := NewHoldTracker(3 * time.Second)
	start := time.Date(2026, 3, 1, 22, 0, 10, 0, time.UTC)

	tr.Start(start)
	assert.False(t, tr.Hold(start.Add(1*time.Second)))
	assert.False(t, tr.Hold(start.Add(2*time.Second)))
	assert.True(t, tr.Hold(start.Add(3*time.Second)))
}

func TestHoldJustShortDoesNotFire(t *testing.T) {
	tr := NewHoldTracker(3 * time.Second)
	start := time.Now()

	tr.Start(start)
	assert.False(t, tr.Hold(start.Add(2990*time.Millisecond)))
	tr.Release()

	// Released short of the threshold: progress is gone.
	assert.Equal(t, time.Duration(0), tr.Progress(start.Add(3*time.Second)))
	assert.False(t, tr.Hold(start.Add(4*time.Second)))
}

func TestInterruptedHoldRequiresFullThresholdAgain(t *testing.T) {
	tr := NewHoldTracker(3 * time.Second)
	start := time.Now()

	tr.Start(start)
	assert.False(t, tr.Hold(start.Add(2*time.Second)))
	tr.Release()

	restart := start.Add(5 * time.Second)
	tr.Start(restart)
	// 2s sustained before + 2s now must not add up.
	assert.False(t, tr.Hold(restart.Add(2*time.Second)))
	assert.True(t, tr.Hold(restart.Add(3*time.Second)))
}

func TestHoldFiresOnlyOnce(t *testing.T) {
	tr := NewHoldTracker(3 * time.Second)
	start := time.Now()

	tr.Start(start)
	assert.True(t, tr.Hold(start.Add(3*time.Second)))
	assert.False(t, tr.Hold(start.Add(4*time.Second)))
	assert.False(t, tr.Hold(start.Add(10*time.Second)))
}

func TestHoldWithoutStartIsInert(t *testing.T) {
	tr := NewHoldTracker(3 * time.Second)
	assert.False(t, tr.Hold(time.Now().Add(time.Hour)))
}

func TestZeroThresholdFallsBackToDefault(t *testing.T) {
	tr := NewHoldTracker(0)
	start := time.Now()

	tr.Start(start)
	assert.False(t, tr.Hold(start.Add(DefaultHoldThreshold-time.Millisecond)))
	assert.True(t, tr.Hold(start.Add(DefaultHoldThreshold)))
}
