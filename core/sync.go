package core

import "context"

// Sync submits work to q and waits for it to finish or for ctx to be done.
// When ctx ends first the work still runs, exactly once, and Sync returns
// ctx.Err().
//
// Calling Sync on a serial queue from work already running on that queue
// (directly or through a queue targeting it) would deadlock and is fatal.
func (q *Queue) Sync(ctx context.Context, work Work) error {
	return q.sync(ctx, 0, work)
}

// BarrierSync is Sync with BarrierAsync semantics.
func (q *Queue) BarrierSync(ctx context.Context, work Work) error {
	return q.sync(ctx, FlagBarrier, work)
}

func (q *Queue) sync(ctx context.Context, flags Flags, work Work) error {
	if work == nil {
		q.engine.fatalf(q, "Sync", "nil work function")
	}
	if (q.Width() == 1 || flags&FlagBarrier != 0) && OnQueue(ctx, q) {
		q.engine.fatalf(q, "Sync", "synchronous submission to the current queue would deadlock")
	}
	done := make(chan struct{})
	wrapped := Work(func(ctx context.Context) {
		defer close(done)
		work(ctx)
	})
	q.submit(ctx, 0, flags|FlagSync, nil, callWork, wrapped, false)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
