package async_test

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lily/pkg/utils/async"
	"github.com/m-mizutani/lily/pkg/utils/logging"
)

func TestSubmitOutlivesCaller(t *testing.T) {
	x := async.New()
	ctx, cancel := context.WithCancel(context.Background())

	var ran atomic.Bool
	release := make(chan struct{})
	x.Submit(ctx, "detached", func(ctx context.Context) error {
		<-release
		ran.Store(ctx.Err() == nil)
		return nil
	})

	cancel()
	close(release)
	gt.NoError(t, x.Wait(context.Background()))
	gt.True(t, ran.Load())
}

func TestSubmitRecoversPanic(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logging.With(context.Background(), logging.New("info", buf))

	x := async.New()
	x.Submit(ctx, "boom", func(ctx context.Context) error {
		panic("unexpected")
	})
	x.Submit(ctx, "failing", func(ctx context.Context) error {
		return errors.New("send failed")
	})
	gt.NoError(t, x.Wait(context.Background()))

	gt.S(t, buf.String()).Contains("background task panicked")
	gt.S(t, buf.String()).Contains("background task failed")
}

func TestSubmitTimeout(t *testing.T) {
	x := async.New(async.WithTimeout(10 * time.Millisecond))

	var deadline atomic.Bool
	x.Submit(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		deadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})
	gt.NoError(t, x.Wait(context.Background()))
	gt.True(t, deadline.Load())
}

func TestWaitGivesUp(t *testing.T) {
	x := async.New()
	release := make(chan struct{})
	defer close(release)

	x.Submit(context.Background(), "stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	gt.Error(t, x.Wait(ctx))
}
