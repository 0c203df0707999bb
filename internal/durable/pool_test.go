package durable

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(_ context.Context, input []byte) ([]byte, error) {
	return input, nil
}

func TestWorkerPool_RunAfterStop(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.Start()
	pool.Stop()

	_, err := pool.Run(context.Background(), "echo", echo, []byte("x"))
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestWorkerPool_QueuedTasksCompleteOnStop(t *testing.T) {
	pool := NewWorkerPool(1, 4)
	pool.Start()

	release := make(chan struct{})
	blocking := func(_ context.Context, input []byte) ([]byte, error) {
		<-release
		return input, nil
	}

	type outcome struct {
		output []byte
		err    error
	}
	results := make(chan outcome, 3)
	for i := 0; i < 3; i++ {
		go func() {
			output, err := pool.Run(context.Background(), "blocking", blocking, []byte("ok"))
			results <- outcome{output, err}
		}()
	}

	require.Eventually(t, func() bool { return pool.QueueLength() == 2 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()
	close(release)

	for i := 0; i < 3; i++ {
		res := <-results
		require.NoError(t, res.err)
		assert.Equal(t, []byte("ok"), res.output)
	}
	<-stopped
}

func TestWorkerPool_ConcurrentRunAndStop(t *testing.T) {
	for round := 0; round < 50; round++ {
		pool := NewWorkerPool(2, 1)
		pool.Start()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := pool.Run(context.Background(), "echo", echo, nil)
				if err != nil {
					assert.ErrorIs(t, err, ErrEngineStopped)
				}
			}()
		}
		pool.Stop()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after Stop")
		}
	}
}

func TestWorkerPool_RunHonoursContextWhileQueueFull(t *testing.T) {
	pool := NewWorkerPool(1, 0)
	pool.Start()
	defer pool.Stop()

	release := make(chan struct{})
	defer close(release)
	busy := make(chan struct{})
	go func() {
		_, _ = pool.Run(context.Background(), "busy", func(context.Context, []byte) ([]byte, error) {
			close(busy)
			<-release
			return nil, nil
		}, nil)
	}()
	<-busy

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.Run(ctx, "echo", echo, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
