// Package atomics provides the ordered atomic operations used by the
// dispatch core.
//
// Every operation takes an Order naming the ordering the call site relies on.
// The Go memory model only offers sequentially consistent atomics, so all
// orders are served by the same (stronger) instruction; the tag is kept so
// that the reasoning behind each access stays visible in the code that
// performs it. On a single core the operations degrade to plain accesses
// inside the runtime, which needs no handling here.
package atomics

import (
	"math/bits"
	"sync/atomic"
)

// Order is a memory ordering annotation.
type Order uint8

const (
	Relaxed Order = iota
	Acquire
	Release
	AcqRel
	SeqCst
)

func (o Order) String() string {
	switch o {
	case Relaxed:
		return "relaxed"
	case Acquire:
		return "acquire"
	case Release:
		return "release"
	case AcqRel:
		return "acq_rel"
	case SeqCst:
		return "seq_cst"
	default:
		return "unknown"
	}
}

// NoBit is returned by ClaimBit when every bit of the word is already set.
const NoBit = -1

// Uint32 is an atomic uint32.
type Uint32 struct {
	_ noCopy
	v atomic.Uint32
}

func (a *Uint32) Load(Order) uint32             { return a.v.Load() }
func (a *Uint32) Store(v uint32, _ Order)       { a.v.Store(v) }
func (a *Uint32) Swap(v uint32, _ Order) uint32 { return a.v.Swap(v) }
func (a *Uint32) Add(d uint32, _ Order) uint32  { return a.v.Add(d) }

func (a *Uint32) CompareAndSwap(old, new uint32, _ Order) bool {
	return a.v.CompareAndSwap(old, new)
}

// Int32 is an atomic int32.
type Int32 struct {
	_ noCopy
	v atomic.Int32
}

func (a *Int32) Load(Order) int32            { return a.v.Load() }
func (a *Int32) Store(v int32, _ Order)      { a.v.Store(v) }
func (a *Int32) Swap(v int32, _ Order) int32 { return a.v.Swap(v) }
func (a *Int32) Add(d int32, _ Order) int32  { return a.v.Add(d) }

func (a *Int32) CompareAndSwap(old, new int32, _ Order) bool {
	return a.v.CompareAndSwap(old, new)
}

// Int64 is an atomic int64.
type Int64 struct {
	_ noCopy
	v atomic.Int64
}

func (a *Int64) Load(Order) int64           { return a.v.Load() }
func (a *Int64) Store(v int64, _ Order)     { a.v.Store(v) }
func (a *Int64) Add(d int64, _ Order) int64 { return a.v.Add(d) }

func (a *Int64) CompareAndSwap(old, new int64, _ Order) bool {
	return a.v.CompareAndSwap(old, new)
}

// Uint64 is an atomic uint64.
type Uint64 struct {
	_ noCopy
	v atomic.Uint64
}

func (a *Uint64) Load(Order) uint64             { return a.v.Load() }
func (a *Uint64) Store(v uint64, _ Order)       { a.v.Store(v) }
func (a *Uint64) Swap(v uint64, _ Order) uint64 { return a.v.Swap(v) }
func (a *Uint64) Add(d uint64, _ Order) uint64  { return a.v.Add(d) }

func (a *Uint64) CompareAndSwap(old, new uint64, _ Order) bool {
	return a.v.CompareAndSwap(old, new)
}

// Pointer is an atomic *T.
type Pointer[T any] struct {
	_ noCopy
	v atomic.Pointer[T]
}

func (a *Pointer[T]) Load(Order) *T         { return a.v.Load() }
func (a *Pointer[T]) Store(v *T, _ Order)   { a.v.Store(v) }
func (a *Pointer[T]) Swap(v *T, _ Order) *T { return a.v.Swap(v) }

func (a *Pointer[T]) CompareAndSwap(old, new *T, _ Order) bool {
	return a.v.CompareAndSwap(old, new)
}

// ClaimBit atomically sets the lowest clear bit of word and returns its
// index, or NoBit if the word is full.
func ClaimBit(word *Uint64, order Order) int {
	for {
		cur := word.Load(order)
		if cur == ^uint64(0) {
			return NoBit
		}
		bit := bits.TrailingZeros64(^cur)
		if word.CompareAndSwap(cur, cur|1<<uint(bit), order) {
			return bit
		}
	}
}

// ReleaseBit clears bit in word.
func ReleaseBit(word *Uint64, bit int, order Order) {
	for {
		cur := word.Load(order)
		if word.CompareAndSwap(cur, cur&^(1<<uint(bit)), order) {
			return
		}
	}
}

// StoreMax raises word to v if v is larger, returning the previous value and
// whether the store happened. The value never decreases through this call.
func StoreMax(word *Uint32, v uint32, order Order) (old uint32, raised bool) {
	for {
		old = word.Load(order)
		if v <= old {
			return old, false
		}
		if word.CompareAndSwap(old, v, order) {
			return old, true
		}
	}
}

// noCopy triggers go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
