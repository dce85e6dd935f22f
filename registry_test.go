package restbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feik/RestBus/wire"
)

func TestRegistryCompleteExactlyOnce(t *testing.T) {
	t.Run("second complete after first is a no-op", func(t *testing.T) {
		r := newRegistry()
		w := newWaiter("id-1")
		r.register("id-1", w)

		resp := &wire.ResponsePacket{StatusCode: 200}
		assert.True(t, r.complete("id-1", resp, nil))
		assert.False(t, r.complete("id-1", resp, nil))

		got, err := w.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, resp, got)
	})

	t.Run("completing an unknown id reports false", func(t *testing.T) {
		r := newRegistry()
		assert.False(t, r.complete("nope", nil, nil))
	})
}

func TestRegistryDuplicateRegisterPanics(t *testing.T) {
	t.Run("registering the same id twice panics", func(t *testing.T) {
		r := newRegistry()
		r.register("dup", newWaiter("dup"))
		assert.Panics(t, func() {
			r.register("dup", newWaiter("dup"))
		})
	})
}

func TestRegistryRemove(t *testing.T) {
	t.Run("remove discards without completing", func(t *testing.T) {
		r := newRegistry()
		w := newWaiter("id-2")
		r.register("id-2", w)
		r.remove("id-2")
		assert.False(t, r.complete("id-2", nil, nil))

		select {
		case <-w.done:
			t.Fatal("waiter should not have completed")
		default:
		}
	})
}

func TestRegistryCancelAll(t *testing.T) {
	t.Run("every outstanding waiter fails with the given error", func(t *testing.T) {
		r := newRegistry()
		waiters := make([]*Waiter, 50)
		for i := range waiters {
			id := randomID()
			w := newWaiter(id)
			waiters[i] = w
			r.register(id, w)
		}

		r.cancelAll(ErrDisposed)

		for _, w := range waiters {
			_, err := w.Wait(context.Background())
			assert.ErrorIs(t, err, ErrDisposed)
		}
	})
}

func TestRegistryConcurrentDistinctKeys(t *testing.T) {
	t.Run("completions for distinct ids proceed concurrently", func(t *testing.T) {
		r := newRegistry()
		const n = 200
		var wg sync.WaitGroup
		ids := make([]string, n)
		for i := 0; i < n; i++ {
			id := randomID()
			ids[i] = id
			r.register(id, newWaiter(id))
		}
		wg.Add(n)
		for _, id := range ids {
			id := id
			go func() {
				defer wg.Done()
				r.complete(id, &wire.ResponsePacket{StatusCode: 200}, nil)
			}()
		}
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("concurrent completion did not finish in time")
		}
	})
}
