package restbus

import (
	"context"
	"sync"
	"time"

	"github.com/feik/RestBus/wire"
)

// Waiter is the in-memory record of a caller awaiting a response for one
// correlation ID. Its completion slot is single-shot (I2): whichever of
// {delivery, timer, cancellation, disposal} arrives first wins, and every
// later attempt is a no-op.
type Waiter struct {
	id   string
	done chan struct{}
	once sync.Once

	result *wire.ResponsePacket
	err    error

	timer     *time.Timer
	stopAfter func() bool
}

func newWaiter(id string) *Waiter {
	return &Waiter{id: id, done: make(chan struct{})}
}

// complete fulfils the waiter if it has not already been fulfilled, and
// idempotently tears down its timer/cancellation hook either way. It
// reports whether this call was the one that completed the waiter.
func (w *Waiter) complete(resp *wire.ResponsePacket, err error) bool {
	completed := false
	w.once.Do(func() {
		w.result = resp
		w.err = err
		completed = true
		close(w.done)
	})
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.stopAfter != nil {
		w.stopAfter()
	}
	return completed
}

// armTimer schedules fn to fire the waiter's timeout after d. Firing is
// idempotent against a concurrent complete() via the waiter's sync.Once.
func (w *Waiter) armTimer(d time.Duration, fn func()) {
	w.timer = time.AfterFunc(d, fn)
}

// armCancellation wires stop, the cleanup function returned by
// context.AfterFunc, so it is released once the waiter completes for any
// reason.
func (w *Waiter) armCancellation(stop func() bool) {
	w.stopAfter = stop
}

// Wait blocks until the waiter completes or ctx is done, whichever is
// first. A ctx cancellation observed here does not itself complete the
// waiter — that happens via the cancellation hook wired in Client.Send,
// which fires even if nothing is calling Wait.
func (w *Waiter) Wait(ctx context.Context) (*wire.ResponsePacket, error) {
	select {
	case <-w.done:
		return w.result, w.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Future is the promise a caller gets back from Client.Send. It resolves
// exactly once, to a response or to one of Timeout, Canceled, Disposed,
// BadResponse (undecodable reply) or BrokerUnreachable (connection lost).
type Future struct {
	w *Waiter
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (*wire.ResponsePacket, error) {
	return f.w.Wait(ctx)
}

// Done returns a channel that is closed once the future has resolved.
func (f *Future) Done() <-chan struct{} {
	return f.w.done
}

// Result returns the resolved value. It must only be called after Done has
// been observed closed (or after a successful Wait).
func (f *Future) Result() (*wire.ResponsePacket, error) {
	return f.w.result, f.w.err
}

func syntheticOKFuture(id string) *Future {
	w := newWaiter(id)
	resp := &wire.ResponsePacket{
		StatusCode: 200,
		Reason:     "OK",
		Headers:    wire.Header{},
		Version:    "HTTP/1.1",
	}
	resp.Headers.Set("Content-Length", "0")
	w.complete(resp, nil)
	return &Future{w: w}
}
