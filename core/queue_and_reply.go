package core

import "context"

// =============================================================================
// AsyncAndReply
// =============================================================================

// AsyncAndReply runs work on q and, once it returns, reply on replyQueue.
// If work panics the reply is not submitted; the panic goes to the engine's
// PanicHandler as usual. A nil replyQueue behaves like q.Async(ctx, work).
func AsyncAndReply(ctx context.Context, q *Queue, work Work, replyQueue *Queue, reply Work) {
	if replyQueue == nil {
		q.Async(ctx, work)
		return
	}
	replyQueue.Retain()
	q.Async(ctx, func(ctx context.Context) {
		defer replyQueue.Release()
		work(ctx)
		// only reached when work did not panic
		replyQueue.Async(ctx, reply)
	})
}

// =============================================================================
// Generic AsyncAndReply with Result
// =============================================================================

// WorkWithResult is work that produces a value.
type WorkWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult consumes the value produced by a WorkWithResult.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// AsyncAndReplyWithResult runs work on q and passes its result to reply on
// replyQueue. The reply always observes the final values written by work.
//
// Example:
//
//	AsyncAndReplyWithResult(ctx, background,
//	    func(ctx context.Context) (int, error) {
//	        return len("Hello"), nil
//	    },
//	    ui,
//	    func(ctx context.Context, length int, err error) {
//	        fmt.Printf("Length: %d\n", length)
//	    },
//	)
func AsyncAndReplyWithResult[T any](
	ctx context.Context,
	q *Queue,
	work WorkWithResult[T],
	replyQueue *Queue,
	reply ReplyWithResult[T],
) {
	var (
		result T
		err    error
	)
	AsyncAndReply(ctx, q,
		func(ctx context.Context) {
			result, err = work(ctx)
		},
		replyQueue,
		func(ctx context.Context) {
			reply(ctx, result, err)
		},
	)
}
