package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

var (
	errCanceled = context.Canceled
	// ErrForcedExit is returned by Wait when stop is requested twice.
	ErrForcedExit = errors.New("forced exit")
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun attaches a name to a Runnable.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// Runner runs Runnables in goroutines and collects their errors.
// When one of them fails, the others are stopped.
type Runner struct {
	Context context.Context

	cancel   func()
	count    int
	errCh    chan error
	exitCh   chan struct{}
	exitOnce sync.Once
}

// NewRunner creates a Runner on a background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a Runner derived from ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	return &Runner{
		Context: ctx,
		cancel:  cancel,
		errCh:   make(chan error, 1),
		exitCh:  make(chan struct{}),
	}
}

// HandleSignals stops the Runnables on SIGINT or SIGTERM.
// A second signal makes Wait return immediately.
func (r *Runner) HandleSignals() *Runner {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		glog.Infof("%v: stopping", sig)
		r.Stop()
		<-sigCh
		glog.Error("stop requested again, exit now")
		r.exitOnce.Do(func() { close(r.exitCh) })
	}()
	return r
}

// Stop cancels the context of all Runnables.
func (r *Runner) Stop() {
	r.cancel()
}

// Go starts Runnables.
func (r *Runner) Go(runners ...Runnable) *Runner {
	for _, runner := range runners {
		name := strconv.Itoa(r.count)
		if named, ok := runner.(Named); ok {
			name = named.Name()
		}
		r.count++
		go r.run(runner, name)
	}
	return r
}

func (r *Runner) run(runner Runnable, name string) {
	glog.V(4).Infof("Runner[%s] started", name)
	err := runner.Run(r.Context)
	if err != nil && !errors.Is(err, errCanceled) {
		glog.Errorf("Runner[%s] failed: %v", name, err)
		r.Stop()
	} else {
		glog.V(4).Infof("Runner[%s] stopped", name)
	}
	r.errCh <- err
}

// Wait blocks until all Runnables return and aggregates the errors.
func (r *Runner) Wait() error {
	defer r.cancel()
	var errs AggregatedError
	for i := 0; i < r.count; i++ {
		select {
		case <-r.exitCh:
			return ErrForcedExit
		case err := <-r.errCh:
			errs.Add(err)
		}
	}
	return errs.Aggregate()
}

// RunWithContextCancel runs fn which doesn't take a context.
// onCancel is called when ctx is done first and must make fn return.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	if onCancel != nil {
		onCancel()
	}
	<-errCh
	return ctx.Err()
}

// RunWithContextCloser runs fn and closes closer when ctx is done or fn
// returns, whichever comes first.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var once sync.Once
	closeIt := func() {
		once.Do(func() {
			if err := closer.Close(); err != nil {
				glog.Warningf("close: %v", err)
			}
		})
	}
	defer closeIt()
	return RunWithContextCancel(ctx, closeIt, fn)
}
