// Package async runs work that must outlive the request that triggered it.
package async

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/utils/logging"
)

// Executor runs submitted functions in background goroutines. Submitted work
// is detached from the caller's cancellation; errors and panics are logged
// and never reach the caller.
type Executor struct {
	wg      sync.WaitGroup
	timeout time.Duration
}

type Option func(*Executor)

// WithTimeout bounds each submitted function. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(x *Executor) {
		x.timeout = d
	}
}

func New(opts ...Option) *Executor {
	x := &Executor{}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Submit starts fn in the background. ctx values such as the logger are kept.
func (x *Executor) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)

	x.wg.Add(1)
	go func() {
		defer x.wg.Done()

		if x.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, x.timeout)
			defer cancel()
		}

		logger := logging.From(ctx).With("task", name)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("background task panicked", "panic", r, "stack", string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			logger.Error("background task failed", "error", err)
		}
	}()
}

// Wait blocks until all submitted work has finished or ctx is done
func (x *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		x.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "background tasks did not finish")
	}
}
