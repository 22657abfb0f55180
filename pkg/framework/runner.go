package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
)

// ErrForcedExit is returned by Run when a second stop is requested before
// the runnables returned.
var ErrForcedExit = errors.New("forced exit")

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// Run is the single call in main: it runs runnables until they all stop or
// the process is interrupted.
func Run(runnables ...Runnable) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	return runUntil(ctx, cancel, sigCh, runnables...)
}

// runUntil cancels ctx on the first stop request and gives up waiting on
// the second one.
func runUntil(ctx context.Context, cancel func(), stopCh <-chan os.Signal, runnables ...Runnable) error {
	errCh := make(chan error, len(runnables))
	for n, runnable := range runnables {
		name := fmt.Sprintf("%d", n)
		if named, ok := runnable.(Named); ok {
			name = named.Name()
		}
		go func(runnable Runnable, name string) {
			glog.V(4).Infof("Runner[%s] started", name)
			err := runnable.Run(ctx)
			glog.V(4).Infof("Runner[%s] stopped: %v", name, err)
			if err != nil && !errors.Is(err, context.Canceled) {
				err = fmt.Errorf("%s: %w", name, err)
			}
			errCh <- err
		}(runnable, name)
	}

	var errs AggregatedError
	var stops int
	for pending := len(runnables); pending > 0; {
		select {
		case <-stopCh:
			if stops++; stops > 1 {
				glog.Error("stop requested again, force exit")
				return ErrForcedExit
			}
			glog.Info("stop requested")
			cancel()
		case err := <-errCh:
			pending--
			if !errors.Is(err, context.Canceled) {
				errs.Add(err)
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCancel runs a func which doesn't accept a context.
// onCancel is called only when the context is canceled, it must make fn
// return.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		<-errCh
		return context.Canceled
	case err := <-errCh:
		return err
	}
}

// RunWithContextCloser ensures closer.Close is called either on cancel or
// on exit of fn. It is how a blocking link read is interrupted.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var closed bool
	err := RunWithContextCancel(ctx, func() {
		closer.Close()
		closed = true
	}, fn)
	if !closed {
		if cerr := closer.Close(); cerr != nil {
			glog.V(4).Infof("close: %v", cerr)
		}
	}
	return err
}
