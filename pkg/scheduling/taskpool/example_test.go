package taskpool_test

import (
	"context"
	"fmt"
	"time"

	"github.com/vnykmshr/greenpool/pkg/scheduling/taskpool"
)

func Example() {
	pool, err := taskpool.New(taskpool.Config{Concurrency: 2})
	if err != nil {
		panic(err)
	}
	if err := pool.OnStart(); err != nil {
		panic(err)
	}

	replies := make(chan taskpool.Reply, 1)
	_, err = pool.OnApply(context.Background(), taskpool.ApplyRequest{
		Target: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			return fmt.Sprintf("hello %s", args[0]), nil
		},
		Args:     []any{"world"},
		Callback: func(r taskpool.Reply) { replies <- r },
	})
	if err != nil {
		panic(err)
	}

	r := <-replies
	fmt.Println(r.Completed, r.Value)

	_ = pool.OnStop(context.Background())
	// Output: true hello world
}

func Example_timeout() {
	pool, _ := taskpool.New(taskpool.Config{Concurrency: 1})
	_ = pool.OnStart()
	defer pool.OnStop(context.Background())

	timedOut := make(chan time.Duration, 1)
	_, _ = pool.OnApply(context.Background(), taskpool.ApplyRequest{
		Target: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Timeout: 10 * time.Millisecond,
		TimeoutCallback: func(completed bool, timeout time.Duration) {
			timedOut <- timeout
		},
	})

	fmt.Println("timed out after", <-timedOut)
	// Output: timed out after 10ms
}

func Example_terminate() {
	pool, _ := taskpool.New(taskpool.Config{Concurrency: 1})
	_ = pool.OnStart()
	defer pool.OnStop(context.Background())

	started := make(chan struct{})
	replies := make(chan taskpool.Reply, 1)
	job, _ := pool.OnApply(context.Background(), taskpool.ApplyRequest{
		JobID: "long-running",
		Target: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		AcceptCallback: func(int, time.Time) { close(started) },
		Callback:       func(r taskpool.Reply) { replies <- r },
	})

	<-started
	pool.TerminateJob(job.ID, nil)
	fmt.Printf("%+v\n", <-replies)
	// Output: {Completed:false Value:<nil> Err:<nil>}
}
