package dispatch_test

import (
	"context"
	"fmt"

	dispatch "github.com/ravynsoft/go-dispatch"
)

// ExampleNewSerialQueue demonstrates FIFO execution on a serial queue.
func ExampleNewSerialQueue() {
	dispatch.InitGlobalEngine(2)
	defer dispatch.ShutdownGlobalEngine()

	q := dispatch.NewSerialQueue("example.serial", dispatch.QoSUtility)
	defer q.Release()

	for i := 1; i <= 3; i++ {
		q.Async(context.Background(), func(ctx context.Context) {
			fmt.Println("Item", i)
		})
	}
	_ = q.Sync(context.Background(), func(ctx context.Context) {})

	// Output:
	// Item 1
	// Item 2
	// Item 3
}

// ExampleApply demonstrates a parallel loop on a concurrent queue.
func ExampleApply() {
	dispatch.InitGlobalEngine(4)
	defer dispatch.ShutdownGlobalEngine()

	q := dispatch.NewConcurrentQueue("example.apply", dispatch.QoSDefault)
	defer q.Release()

	squares := make([]int, 5)
	_ = dispatch.Apply(context.Background(), q, len(squares), func(ctx context.Context, i int) {
		squares[i] = i * i
	})
	fmt.Println(squares)

	// Output:
	// [0 1 4 9 16]
}

// ExampleAsyncAndReply demonstrates running work in the background and
// handling its result on another queue.
func ExampleAsyncAndReply() {
	dispatch.InitGlobalEngine(2)
	defer dispatch.ShutdownGlobalEngine()

	background := dispatch.NewConcurrentQueue("example.background", dispatch.QoSBackground)
	defer background.Release()
	ui := dispatch.NewSerialQueue("example.main", dispatch.QoSUserInteractive)
	defer ui.Release()

	done := make(chan struct{})
	var length int
	dispatch.AsyncAndReply(context.Background(), background,
		func(ctx context.Context) { length = len("Hello, dispatch") },
		ui,
		func(ctx context.Context) {
			fmt.Println("length:", length, "on ui:", dispatch.CurrentQueue(ctx) == ui)
			close(done)
		},
	)
	<-done

	// Output:
	// length: 15 on ui: true
}
