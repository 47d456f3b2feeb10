package ratebudget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestInProcessBudget_AdmitsUpToMaxThenRejects models S2: a credential may
// make exactly maxRequests calls inside one window before being denied.
func TestInProcessBudget_AdmitsUpToMaxThenRejects(t *testing.T) {
	b := NewInProcessBudget(time.Minute, 3)

	assert.True(t, b.TryAcquire("fp-1"))
	assert.True(t, b.TryAcquire("fp-1"))
	assert.True(t, b.TryAcquire("fp-1"))
	assert.False(t, b.TryAcquire("fp-1"), "fourth call in the same window must be rejected")
}

func TestInProcessBudget_ExactlyAtMaxBoundary(t *testing.T) {
	b := NewInProcessBudget(time.Minute, 1)

	assert.True(t, b.TryAcquire("fp-1"))
	assert.Equal(t, 0, b.RemainingQuota("fp-1"))
	assert.False(t, b.TryAcquire("fp-1"))
}

func TestInProcessBudget_WindowSlidesOldCallsExpire(t *testing.T) {
	b := NewInProcessBudget(30*time.Millisecond, 1)

	assert.True(t, b.TryAcquire("fp-1"))
	assert.False(t, b.TryAcquire("fp-1"))

	time.Sleep(40 * time.Millisecond)
	assert.True(t, b.TryAcquire("fp-1"), "window should have slid past the first call")
}

func TestInProcessBudget_RemainingQuotaUnknownFingerprint(t *testing.T) {
	b := NewInProcessBudget(time.Minute, 5)
	assert.Equal(t, 5, b.RemainingQuota("never-seen"))
}

func TestInProcessBudget_FingerprintsAreIndependent(t *testing.T) {
	b := NewInProcessBudget(time.Minute, 1)

	assert.True(t, b.TryAcquire("fp-1"))
	assert.True(t, b.TryAcquire("fp-2"))
	assert.False(t, b.TryAcquire("fp-1"))
}

func TestInProcessBudget_CleanupDropsStaleWindows(t *testing.T) {
	b := NewInProcessBudget(10*time.Millisecond, 2)
	b.TryAcquire("fp-1")

	time.Sleep(30 * time.Millisecond)
	b.cleanup()

	b.mu.RLock()
	_, stillPresent := b.windows["fp-1"]
	b.mu.RUnlock()
	assert.False(t, stillPresent)
}
