package restbus

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// channelFlags classifies the kind of channel a caller wants from the
// pool. Today there is exactly one class: unflagged publisher channels.
type channelFlags uint8

const flagPublisher channelFlags = 0

// channelBorrowWait is the deadline get() puts on its borrow context. get
// does not block on it: with no idle channel it opens a new one at once,
// and the number of channels open at a time is not capped.
const channelBorrowWait = 2 * time.Second

// channelPool is a borrow/return pool of publisher channels over a single
// broker connection. Channels are not safe for concurrent use, so pooling
// amortizes channel setup cost without ever sharing one across concurrent
// publishers (I4: a lease is held by exactly one caller or sits idle in
// the pool, never both, never neither).
type channelPool struct {
	conn *amqp.Connection

	mu      sync.Mutex
	idle    []*amqp.Channel
	maxIdle int
	closed  bool
}

func newChannelPool(conn *amqp.Connection, maxIdle int) *channelPool {
	if maxIdle <= 0 {
		maxIdle = 8
	}
	return &channelPool{conn: conn, maxIdle: maxIdle}
}

// ChannelLease is a borrowed publisher channel. Close returns it to the
// pool, or discards it if the pool has been disposed or the channel itself
// is no longer usable.
type ChannelLease struct {
	ch        *amqp.Channel
	pool      *channelPool
	discarded bool
}

// Channel exposes the underlying AMQP channel for publish/declare calls.
func (l *ChannelLease) Channel() *amqp.Channel {
	return l.ch
}

// Close returns the channel to the pool, or closes it outright when the
// pool or the channel itself is unhealthy. It is safe to call more than
// once.
func (l *ChannelLease) Close() {
	if l.discarded {
		return
	}
	l.discarded = true
	l.pool.put(l.ch)
}

// get borrows a channel, preferring an idle one, falling back to creating
// a fresh channel on the shared connection when none is idle. It does not
// wait for a lease to be returned, so a caller never blocks on a pool under
// pressure.
func (p *channelPool) get(ctx context.Context, _ channelFlags) (*ChannelLease, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, errors.New("channel pool closed")
		}
		if n := len(p.idle); n > 0 {
			ch := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			if ch.IsClosed() {
				continue
			}
			return &ChannelLease{ch: ch, pool: p}, nil
		}
		p.mu.Unlock()
		break
	}

	waitCtx, cancel := context.WithTimeout(ctx, channelBorrowWait)
	defer cancel()
	select {
	case <-waitCtx.Done():
		// The default case makes this select non-blocking: a new channel
		// is created rather than making the caller wait. amqp091-go
		// channels are cheap relative to connections.
	default:
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &ChannelLease{ch: ch, pool: p}, nil
}

// put returns ch to the idle list, or closes it when the pool is closed,
// the channel is already broken, or the idle list is already at capacity.
func (p *channelPool) put(ch *amqp.Channel) {
	if ch.IsClosed() {
		return
	}
	p.mu.Lock()
	if p.closed || len(p.idle) >= p.maxIdle {
		p.mu.Unlock()
		_ = ch.Close()
		return
	}
	p.idle = append(p.idle, ch)
	p.mu.Unlock()
}

// dispose closes every idle channel. Leases already checked out are left
// alone; they become discard-only on release because put() sees p.closed.
func (p *channelPool) dispose() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, ch := range idle {
		_ = ch.Close()
	}
}

// size reports the number of channels currently idle in the pool.
func (p *channelPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
