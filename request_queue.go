package dispatch

import (
	"container/heap"
	"sync"

	"github.com/ravynsoft/go-dispatch/core"
)

const (
	defaultRequestCap = 16
	compactMinCap     = 64
)

// requestItem is one pending drain request.
type requestItem struct {
	req      core.DrainRequest
	sequence uint64
	index    int
}

// requestHeap orders requests by class (highest first), then FIFO.
type requestHeap []*requestItem

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	pi, pj := h[i].req.Priority.Normalize(), h[j].req.Priority.Normalize()
	if pi != pj {
		return pi > pj
	}
	return h[i].sequence < h[j].sequence
}

func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *requestHeap) Push(x any) {
	item := x.(*requestItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// RequestQueue holds drain requests waiting for a worker. Requests for a
// queue that already has one pending are coalesced: the pending request
// keeps its place and is raised to the higher priority.
type RequestQueue struct {
	mu        sync.Mutex
	items     requestHeap
	pending   map[*core.Queue]*requestItem
	sequence  uint64
	coalesced uint64
}

func NewRequestQueue() *RequestQueue {
	return &RequestQueue{
		items:   make(requestHeap, 0, defaultRequestCap),
		pending: make(map[*core.Queue]*requestItem),
	}
}

// Push adds req and reports whether it created a new pending entry.
func (q *RequestQueue) Push(req core.DrainRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item, ok := q.pending[req.Queue]; ok {
		q.coalesced++
		if req.Priority.Normalize() > item.req.Priority.Normalize() {
			item.req.Priority = req.Priority
			heap.Fix(&q.items, item.index)
		}
		return false
	}

	q.sequence++
	item := &requestItem{req: req, sequence: q.sequence}
	heap.Push(&q.items, item)
	q.pending[req.Queue] = item
	return true
}

// Pop removes the highest priority request.
func (q *RequestQueue) Pop() (core.DrainRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return core.DrainRequest{}, false
	}
	item := heap.Pop(&q.items).(*requestItem)
	delete(q.pending, item.req.Queue)
	q.maybeCompactLocked()
	return item.req, true
}

func (q *RequestQueue) maybeCompactLocked() {
	n, c := len(q.items), cap(q.items)
	if c < compactMinCap || n*4 >= c {
		return
	}
	items := make(requestHeap, n, max(c/2, defaultRequestCap, n))
	copy(items, q.items)
	q.items = items
}

func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Coalesced returns how many requests were merged into a pending one.
func (q *RequestQueue) Coalesced() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.coalesced
}

// Clear drops every pending request and returns how many there were.
func (q *RequestQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = make(requestHeap, 0, defaultRequestCap)
	clear(q.pending)
	return n
}
