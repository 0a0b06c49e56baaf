package backoff

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpinFor_ReportsFailureWhenPredicateStaysFalse(t *testing.T) {
	calls := 0
	ok := SpinFor(16, func() bool { calls++; return false })

	assert.False(t, ok)
	assert.GreaterOrEqual(t, calls, 8)
	assert.LessOrEqual(t, calls, 17)
}

func TestSpinFor_StopsAtFirstSuccess(t *testing.T) {
	calls := 0
	ok := SpinFor(64, func() bool { calls++; return calls == 3 })

	assert.True(t, ok)
	assert.Equal(t, 3, calls)
}

// TestSpinUntil_WaitsForOtherGoroutine verifies the wait completes once a
// concurrent writer publishes, escalating through the supplied hook.
func TestSpinUntil_WaitsForOtherGoroutine(t *testing.T) {
	var flag atomic.Bool
	var escalations atomic.Int32
	go func() {
		time.Sleep(10 * time.Millisecond)
		flag.Store(true)
	}()

	SpinUntil(flag.Load, EscalatorFunc(func(int) {
		escalations.Add(1)
		time.Sleep(time.Millisecond)
	}))

	assert.True(t, flag.Load())
	assert.Positive(t, escalations.Load())
}

func TestBudget_Range(t *testing.T) {
	for i := 0; i < 100; i++ {
		b := budget(10)
		assert.GreaterOrEqual(t, b, 5)
		assert.LessOrEqual(t, b, 10)
	}
	assert.Equal(t, 1, budget(0))
}

// TestBudget_Spread verifies budgets vary between bursts, which is what keeps
// concurrent spinners out of lockstep.
func TestBudget_Spread(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		seen[budget(DefaultSpins)] = true
	}
	assert.Greater(t, len(seen), DefaultSpins/8)
}
