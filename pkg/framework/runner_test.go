package framework

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunnerStopsOnError(t *testing.T) {
	failure := errors.New("port gone")
	var stopped bool
	r := NewRunner().Go(
		NamedRun("failing", RunFunc(func(ctx context.Context) error {
			return failure
		})),
		RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			stopped = true
			return ctx.Err()
		}),
	)
	err := r.Wait()
	require.ErrorIs(t, err, failure)
	require.True(t, stopped)
	var agg *AggregatedError
	require.True(t, errors.As(err, &agg))
	require.Len(t, agg.Errors, 1)
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner()
	for i := 0; i < 3; i++ {
		r.Go(RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}))
	}
	r.Stop()
	require.NoError(t, r.Wait())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil, context.Canceled).Aggregate())
	e1, e2 := errors.New("e1"), errors.New("e2")
	err := errs.Add(e1).Aggregate()
	require.Equal(t, "e1", err.Error())
	err = errs.Add(e2).Aggregate()
	require.ErrorIs(t, err, e1)
	require.ErrorIs(t, err, e2)
	require.Equal(t, "multiple errors:\n  e1\n  e2", err.Error())
}

type countingCloser struct {
	lock  sync.Mutex
	count int
	done  chan struct{}
}

func (c *countingCloser) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.count == 0 {
		close(c.done)
	}
	c.count++
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &countingCloser{done: make(chan struct{})}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := RunWithContextCloser(ctx, c, func() error {
		<-c.done
		return errors.New("closed")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, c.count)

	c = &countingCloser{done: make(chan struct{})}
	err = RunWithContextCloser(context.Background(), c, func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, 1, c.count)
}

func TestLoop(t *testing.T) {
	var lock sync.Mutex
	var got []Message
	l := NewLoop(HandleMessageFunc(func(ctx context.Context, msg Message) {
		lock.Lock()
		got = append(got, msg)
		lock.Unlock()
	}))
	l.QueueSize = 2
	require.True(t, l.Post(1))
	require.True(t, l.Post(2))
	require.False(t, l.Post(3))
	require.Equal(t, uint64(1), l.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)

	require.True(t, l.Post(4))
	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(got) == 3
	}, time.Second, time.Millisecond)
	lock.Lock()
	require.Equal(t, []Message{1, 2, 4}, got)
	lock.Unlock()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
