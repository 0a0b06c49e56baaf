package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravynsoft/go-dispatch/internal/atomics"
)

func TestPriority_Encoding(t *testing.T) {
	tests := []struct {
		name     string
		qos      QoSClass
		relative int
		wantQoS  QoSClass
		wantRel  int
		want     string
	}{
		{"default", QoSDefault, 0, QoSDefault, 0, "default"},
		{"relative", QoSUtility, -4, QoSUtility, -4, "utility-4"},
		{"clamp low", QoSBackground, -100, QoSBackground, MinRelativePriority, "background-15"},
		{"clamp high", QoSUserInitiated, 3, QoSUserInitiated, 0, "user-initiated"},
		{"unspecified", QoSUnspecified, -2, QoSUnspecified, 0, "unspecified"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPriority(tt.qos, tt.relative)
			assert.Equal(t, tt.wantQoS, p.QoS())
			assert.Equal(t, tt.wantRel, p.RelativePriority())
			assert.Equal(t, tt.want, p.String())
			assert.False(t, p.Overcommit())
		})
	}
}

func TestPriority_Overcommit(t *testing.T) {
	p := NewPriority(QoSUtility, -1).WithOvercommit(true)
	assert.True(t, p.Overcommit())
	assert.Equal(t, QoSUtility, p.QoS())
	assert.Equal(t, "utility-1+overcommit", p.String())
	assert.False(t, p.WithOvercommit(false).Overcommit())
}

// Normalized tokens order by class alone.
func TestPriority_Normalize(t *testing.T) {
	for c := QoSMaintenance; c < QoSUserInteractive; c++ {
		lo := NewPriority(c, 0).WithOvercommit(true)
		hi := NewPriority(c+1, MinRelativePriority)
		assert.Less(t, uint32(lo.Normalize()), uint32(hi.Normalize()), "%s < %s", c, c+1)
		assert.Equal(t, NewPriority(c, 0), NewPriority(c, -7).Normalize())
	}
	assert.Equal(t, Priority(0), Priority(0).Normalize())

	// a token carrying several class bits normalizes to the highest
	mixed := NewPriority(QoSBackground, 0) | NewPriority(QoSUserInitiated, 0)
	assert.Equal(t, NewPriority(QoSUserInitiated, 0), mixed.Normalize())
	assert.Equal(t, QoSUserInitiated, mixed.QoS())

	assert.Equal(t, NewPriority(QoSUtility, 0), maxPriority(NewPriority(QoSUtility, -3), NewPriority(QoSBackground, 0)))
	assert.Equal(t, NewPriority(QoSUtility, 0), maxPriority(0, NewPriority(QoSUtility, -3).WithOvercommit(true)))
}

func TestParseQoSClass(t *testing.T) {
	for c := QoSUnspecified; c <= QoSUserInteractive; c++ {
		got, err := ParseQoSClass(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseQoSClass("urgent")
	assert.EqualError(t, err, `dispatch: unknown qos class "urgent"`)
}

func TestQoSClass_Nice(t *testing.T) {
	prev := 20
	for c := QoSMaintenance; c <= QoSUserInteractive; c++ {
		assert.Less(t, c.nice(), prev, "%s", c)
		prev = c.nice()
	}
	assert.Equal(t, 0, QoSDefault.nice())
}

// TestQueue_OverrideRatchet verifies the override only moves up while the
// queue has work, and resetOverride yields to a concurrent raise.
func TestQueue_OverrideRatchet(t *testing.T) {
	e := NewEngine(ThreadPoolFunc(func(DrainRequest) {}), nil)
	q := e.NewQueue("ratchet", SerialAttr(QoSBackground))
	base := uint32(q.base.Normalize())

	var wg sync.WaitGroup
	for c := QoSMaintenance; c <= QoSUserInteractive; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.overrideQueue(NewPriority(c, -i%16))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, QoSUserInteractive, q.Override().QoS())
	assert.False(t, q.propagate(NewPriority(QoSUserInitiated, 0)))
	assert.False(t, q.overrideQueue(NewPriority(QoSUtility, 0)))

	// a raise between observing and resetting wins
	observed := q.override.Load(atomics.Relaxed)
	q.resetOverride(uint32(NewPriority(QoSUtility, 0)))
	assert.Equal(t, observed, q.override.Load(atomics.Relaxed))

	q.resetOverride(observed)
	assert.Equal(t, base, q.override.Load(atomics.Relaxed))

	// roots never take an override
	assert.False(t, e.Root(QoSMaintenance, false).propagate(NewPriority(QoSUserInteractive, 0)))
}
