package core

import "github.com/ravynsoft/go-dispatch/internal/atomics"

// DefaultCacheLimit bounds the number of records a thread keeps cached.
const DefaultCacheLimit = 1024

// allocContinuation takes a record from th's cache, or from the heap when th
// is nil or its cache is empty.
func (th *Thread) allocContinuation() *Continuation {
	if th == nil {
		return &Continuation{state: stateLive}
	}
	c := th.cacheHead
	if c == nil {
		th.stats.heapAllocs.Add(1, atomics.Relaxed)
		return &Continuation{state: stateLive}
	}
	if c.state != stateCached {
		th.engine.fatalf(nil, "alloc", "cached continuation in state %d", c.state)
	}
	th.cacheHead = c.cacheNext
	th.cacheCount--
	c.cacheNext = nil
	c.state = stateLive
	th.stats.cacheHits.Add(1, atomics.Relaxed)
	return c
}

// freeContinuation returns c to th's cache, or releases it to the heap when
// the cache is full. Records have no affinity to the thread that allocated
// them.
func (th *Thread) freeContinuation(c *Continuation) {
	if c.state != stateLive {
		th.engine.fatalf(c.queue, "free", "continuation freed twice (state %d, generation %d)", c.state, c.gen)
	}
	c.gen++
	c.fn = nil
	c.arg = nil
	c.flags = 0
	c.kind = KindWork
	c.priority = 0
	c.group = nil
	c.queue = nil
	c.inner = nil
	c.innerGen = 0
	c.next.Store(nil, atomics.Relaxed)

	if th.cacheCount >= th.cacheLimit {
		c.state = stateHeap
		th.stats.heapFrees.Add(1, atomics.Relaxed)
		return
	}
	c.state = stateCached
	c.cacheNext = th.cacheHead
	th.cacheHead = c
	th.cacheCount++
}

// CacheLen returns the number of cached records.
func (th *Thread) CacheLen() int { return th.cacheCount }

// TrimCache releases cached records until at most limit remain, returning the
// number released. Used under memory pressure.
func (th *Thread) TrimCache(limit int) int {
	th.checkOwner("TrimCache")
	released := 0
	for th.cacheCount > max(limit, 0) {
		c := th.cacheHead
		th.cacheHead = c.cacheNext
		c.cacheNext = nil
		c.state = stateHeap
		th.cacheCount--
		released++
	}
	th.stats.heapFrees.Add(uint64(released), atomics.Relaxed)
	return released
}
