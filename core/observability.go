package core

// QueueStats represents runtime observability state for a queue.
type QueueStats struct {
	Label     string
	Root      bool
	Target    string
	Width     int
	Pending   int
	Draining  bool
	Inflight  int
	Suspended bool
	Base      QoSClass
	Override  QoSClass
	Executed  uint64
	Discarded uint64
}

// ThreadStats represents the counters of a worker Thread.
type ThreadStats struct {
	Name       string
	ID         int
	CacheHits  uint64
	HeapAllocs uint64
	HeapFrees  uint64
	Executed   uint64
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID         string
	Workers    int
	Overcommit int
	Queued     int
	Active     int
	Running    bool
}
