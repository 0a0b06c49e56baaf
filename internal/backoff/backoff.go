// Package backoff implements the bounded busy-wait used when a consumer
// observes a producer between its two publication steps.
package backoff

import (
	"math/rand/v2"
	"runtime"
)

const (
	// DefaultSpins is the base spin budget of one burst.
	DefaultSpins = 128
	// burstsBeforeEscalate is the number of spin bursts SpinUntil performs
	// before it hands the processor back through the Escalator.
	burstsBeforeEscalate = 4
)

// Escalator is invoked once a spin budget is exhausted.
type Escalator interface {
	Escalate(attempt int)
}

// EscalatorFunc adapts a function to Escalator.
type EscalatorFunc func(attempt int)

func (f EscalatorFunc) Escalate(attempt int) { f(attempt) }

// Yield is the default Escalator. It gives the processor to another goroutine.
var Yield Escalator = EscalatorFunc(func(int) { runtime.Gosched() })

// budget returns a randomized spin count in [n/2, n].
func budget(n int) int {
	if n <= 1 {
		return 1
	}
	half := n / 2
	return half + rand.IntN(n-half+1)
}

// SpinFor polls pred up to a randomized number of times bounded by max and
// reports whether pred became true.
func SpinFor(max int, pred func() bool) bool {
	for i := budget(max); i > 0; i-- {
		if pred() {
			return true
		}
		pause()
	}
	return pred()
}

// SpinUntil polls pred until it returns true, escalating through esc between
// bursts. A nil esc uses Yield.
func SpinUntil(pred func() bool, esc Escalator) {
	if esc == nil {
		esc = Yield
	}
	for attempt := 0; ; attempt++ {
		for burst := 0; burst < burstsBeforeEscalate; burst++ {
			if SpinFor(DefaultSpins, pred) {
				return
			}
		}
		esc.Escalate(attempt)
	}
}

// pause is a call the compiler cannot remove. Go exposes no CPU pause
// instruction, so spinners are de-phased by the randomized budget alone.
//
//go:noinline
func pause() {}
