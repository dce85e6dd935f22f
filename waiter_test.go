package restbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feik/RestBus/wire"
)

func TestWaiterTimerFiresOnce(t *testing.T) {
	t.Run("timer completes the waiter with the given error", func(t *testing.T) {
		w := newWaiter("t1")
		fired := make(chan struct{})
		w.armTimer(10*time.Millisecond, func() {
			w.complete(nil, wrap(ErrTimeout, nil))
			close(fired)
		})

		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("timer never fired")
		}

		_, err := w.Wait(context.Background())
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("completing before the timer fires stops it", func(t *testing.T) {
		w := newWaiter("t2")
		w.armTimer(50*time.Millisecond, func() {
			w.complete(nil, wrap(ErrTimeout, nil))
		})
		resp := &wire.ResponsePacket{StatusCode: 200}
		assert.True(t, w.complete(resp, nil))

		time.Sleep(100 * time.Millisecond)
		got, err := w.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, resp, got)
	})
}

func TestWaiterCancellationHook(t *testing.T) {
	t.Run("canceling ctx runs the cancellation hook", func(t *testing.T) {
		w := newWaiter("t3")
		ctx, cancel := context.WithCancel(context.Background())
		stop := context.AfterFunc(ctx, func() {
			w.complete(nil, wrap(ErrCanceled, ctx.Err()))
		})
		w.armCancellation(stop)

		cancel()
		_, err := w.Wait(context.Background())
		assert.ErrorIs(t, err, ErrCanceled)
	})
}

func TestSyntheticOKFuture(t *testing.T) {
	t.Run("resolves immediately with a 200 and Content-Length 0", func(t *testing.T) {
		f := syntheticOKFuture("fire-and-forget")
		select {
		case <-f.Done():
		default:
			t.Fatal("synthetic future should already be resolved")
		}
		resp, err := f.Result()
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		v, ok := resp.Headers.Get("Content-Length")
		assert.True(t, ok)
		assert.Equal(t, "0", v)
	})
}
