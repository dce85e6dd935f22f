package restbus

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autom8ter/machine/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/feik/RestBus/wire"
)

type lifecycleState int32

const (
	stateIdle lifecycleState = iota
	stateStarting
	stateRunning
	stateDisposed
)

// supervisor owns the broker connection, the callback queue consumer, and
// the publisher channel pool for one Client. Connection supervision and
// callback consumption are merged into a single type because they share
// every piece of state they'd otherwise need to coordinate across (the
// connection, the pool, the callback queue name) and nothing else in the
// system talks to one without the other.
type supervisor struct {
	url        string
	descriptor ExchangeDescriptor
	clientID   string
	errorf     ErrorHandler

	state   atomic.Int32
	startMu sync.Mutex

	conn atomic.Pointer[amqp.Connection]
	pool atomic.Pointer[channelPool]

	machine machine.Machine
	ctx     context.Context
	cancel  context.CancelFunc

	registry *registry

	// topologyMu serializes re-declaration so only one declare proceeds
	// per stale window; lastDeclareTick is the wall-clock nanosecond of
	// the last successful declare, read lock-free on the fast path.
	topologyMu      sync.Mutex
	lastDeclareTick atomic.Int64

	reconnectDelay time.Duration
	maxRetries     int
}

// SupervisorOption configures reconnection behavior. By default a
// supervisor is lazy: it only dials on the next Send after a break. An
// embedding application that wants the connection kept warm in the
// background can opt into proactive reconnection instead.
type SupervisorOption func(*supervisor)

// WithReconnectPolicy makes the supervisor redial in the background after
// a connection loss, waiting delay between attempts, up to maxRetries
// attempts (maxRetries < 0 means unlimited). In-flight requests still
// fail immediately on connection loss either way (spec requires not
// leaving a caller blocked on a broker that is already gone) — this only
// affects whether the *next* Send has to pay the dial cost itself.
func WithReconnectPolicy(delay time.Duration, maxRetries int) SupervisorOption {
	return func(s *supervisor) {
		s.reconnectDelay = delay
		s.maxRetries = maxRetries
	}
}

func newSupervisor(url string, descriptor ExchangeDescriptor, clientID string, reg *registry, errorf ErrorHandler, opts ...SupervisorOption) *supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &supervisor{
		url:        url,
		descriptor: descriptor,
		clientID:   clientID,
		errorf:     errorf,
		machine:    machine.New(),
		ctx:        ctx,
		cancel:     cancel,
		registry:   reg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ensureStarted brings the supervisor to stateRunning if it is not already
// there, via a double-checked lock so concurrent callers of Send serialize
// on the same dial/declare/consume sequence instead of racing it (I3).
func (s *supervisor) ensureStarted(ctx context.Context) error {
	if lifecycleState(s.state.Load()) == stateRunning {
		return nil
	}
	s.startMu.Lock()
	defer s.startMu.Unlock()

	switch lifecycleState(s.state.Load()) {
	case stateRunning:
		return nil
	case stateDisposed:
		return wrap(ErrDisposed, nil)
	}

	s.state.Store(int32(stateStarting))
	if err := s.start(ctx); err != nil {
		s.state.Store(int32(stateIdle))
		return err
	}
	s.state.Store(int32(stateRunning))
	return nil
}

func (s *supervisor) start(ctx context.Context) error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return wrap(ErrBrokerUnreachable, err)
	}

	declareCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return wrap(ErrBrokerUnreachable, err)
	}
	if err := s.declareTopology(declareCh); err != nil {
		_ = declareCh.Close()
		_ = conn.Close()
		return err
	}

	queue := callbackQueueName(s.descriptor, s.clientID)
	deliveries, err := declareCh.Consume(
		queue,
		"",    // consumer tag
		false, // auto-ack: acked manually in handleDelivery after processing
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = declareCh.Close()
		_ = conn.Close()
		return wrap(ErrBrokerUnreachable, err)
	}

	s.conn.Store(conn)
	s.pool.Store(newChannelPool(conn, 8))

	s.machine.Go(s.ctx, func(ctx context.Context) error {
		s.runDeliveryLoop(ctx, declareCh, deliveries)
		return nil
	})

	closeNotify := conn.NotifyClose(make(chan *amqp.Error, 1))
	s.machine.Go(s.ctx, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
		case <-closeNotify:
			s.teardown()
		}
		return nil
	})

	return nil
}

// declareTopology declares the exchange and the per-client callback queue
// and binds one to the other. It is re-run, cheaply, each time a
// supervisor (re)starts, since a fresh connection implies a fresh channel
// that has never seen the declarations.
func (s *supervisor) declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		exchangeName(s.descriptor),
		exchangeKind(s.descriptor),
		s.descriptor.Durable,
		s.descriptor.AutoDelete,
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return wrap(ErrBrokerUnreachable, fmt.Errorf("declare exchange: %w", err))
	}

	queue := callbackQueueName(s.descriptor, s.clientID)
	args := amqp.Table{}
	if s.descriptor.CallbackQueueTTL > 0 {
		args["x-expires"] = int64(s.descriptor.CallbackQueueTTL / time.Millisecond)
	}
	if _, err := ch.QueueDeclare(
		queue,
		false, // durable: callback queues are ephemeral, scoped to one client instance
		true,  // auto-delete
		false, // exclusive
		false, // no-wait
		args,
	); err != nil {
		return wrap(ErrBrokerUnreachable, fmt.Errorf("declare callback queue: %w", err))
	}

	if err := ch.QueueBind(queue, queue, exchangeName(s.descriptor), false, nil); err != nil {
		return wrap(ErrBrokerUnreachable, fmt.Errorf("bind callback queue: %w", err))
	}

	s.lastDeclareTick.Store(time.Now().UnixNano())
	return nil
}

// topologyRedeclareInterval bounds how long a declared topology is trusted
// before the request engine re-declares it on a borrowed publisher
// channel (spec: 30s, or immediately on a non-positive tick difference,
// i.e. clock wrap).
const topologyRedeclareInterval = 30 * time.Second

// declareTopologyIfStale re-declares the exchange/queue/binding on ch if
// more than topologyRedeclareInterval has elapsed since the last declare,
// serializing concurrent callers so only one declare runs per stale
// window; everyone else observes the refreshed tick and returns at once.
func (s *supervisor) declareTopologyIfStale(ch *amqp.Channel) error {
	if !s.stale() {
		return nil
	}
	s.topologyMu.Lock()
	defer s.topologyMu.Unlock()
	if !s.stale() {
		return nil
	}
	return s.declareTopology(ch)
}

func (s *supervisor) stale() bool {
	last := s.lastDeclareTick.Load()
	now := time.Now().UnixNano()
	return last == 0 || now <= last || now-last > int64(topologyRedeclareInterval)
}

func exchangeKind(d ExchangeDescriptor) string {
	if d.ExchangeType != "" {
		return d.ExchangeType
	}
	return "direct"
}

// runDeliveryLoop drains the callback queue until ctx is canceled or the
// delivery channel closes (broker-side teardown, handled by the
// NotifyClose goroutine started alongside this one).
func (s *supervisor) runDeliveryLoop(ctx context.Context, ch *amqp.Channel, deliveries <-chan amqp.Delivery) {
	defer ch.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			s.machine.Go(ctx, func(ctx context.Context) error {
				s.handleDelivery(d)
				return nil
			})
		}
	}
}

// handleDelivery completes the waiter for d's correlation ID and acks d
// regardless of outcome — responses are one-shot, so there is nothing to
// redeliver whether decoding succeeds or fails.
func (s *supervisor) handleDelivery(d amqp.Delivery) {
	defer d.Ack(false)

	resp, err := wire.DeserializeResponse(d.Body)
	if err != nil {
		s.errorf("handleDelivery", err)
		s.registry.complete(d.CorrelationId, nil, wrap(ErrBadResponse, err))
		return
	}
	resp.Headers.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	s.registry.complete(d.CorrelationId, resp, nil)
}

// teardown fails every outstanding waiter and returns the supervisor to
// stateIdle so the next Send re-dials from scratch, mirroring the
// teacher's reconnect-on-NotifyClose behavior but surfacing the break to
// in-flight callers instead of silently retrying underneath them.
func (s *supervisor) teardown() {
	if lifecycleState(s.state.Load()) == stateDisposed {
		return
	}
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if lifecycleState(s.state.Load()) == stateDisposed {
		return
	}
	s.state.Store(int32(stateIdle))
	if p := s.pool.Swap(nil); p != nil {
		p.dispose()
	}
	s.registry.cancelAll(wrap(ErrBrokerUnreachable, nil))

	if s.reconnectDelay > 0 {
		s.machine.Go(s.ctx, func(ctx context.Context) error {
			s.reconnectLoop(ctx)
			return nil
		})
	}
}

// reconnectLoop redials in the background after a connection loss, so the
// next Send finds a warm connection instead of paying the dial cost
// itself. It gives up after maxRetries attempts (never, if negative) or
// once the supervisor is disposed.
func (s *supervisor) reconnectLoop(ctx context.Context) {
	for attempt := 0; s.maxRetries < 0 || attempt < s.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
		err := s.ensureStarted(ctx)
		if err == nil {
			return
		}
		if lifecycleState(s.state.Load()) == stateDisposed {
			return
		}
		s.errorf("reconnect", err)
	}
}

// borrowChannel hands out a publisher channel from the pool, starting the
// supervisor first if needed, and re-declares topology on it if the last
// declare has gone stale (request engine step 6).
func (s *supervisor) borrowChannel(ctx context.Context) (*ChannelLease, error) {
	if err := s.ensureStarted(ctx); err != nil {
		return nil, err
	}
	p := s.pool.Load()
	if p == nil {
		return nil, wrap(ErrBrokerUnreachable, nil)
	}
	lease, err := p.get(ctx, flagPublisher)
	if err != nil {
		return nil, wrap(ErrBrokerUnreachable, err)
	}
	if err := s.declareTopologyIfStale(lease.Channel()); err != nil {
		lease.Close()
		return nil, err
	}
	return lease, nil
}

// dispose permanently shuts the supervisor down: every waiter fails with
// Disposed, the connection and pool are closed, and the delivery/NotifyClose
// goroutines are stopped.
func (s *supervisor) dispose() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if lifecycleState(s.state.Load()) == stateDisposed {
		return
	}
	s.state.Store(int32(stateDisposed))
	s.cancel()
	_ = s.machine.Wait()
	if p := s.pool.Swap(nil); p != nil {
		p.dispose()
	}
	if conn := s.conn.Swap(nil); conn != nil {
		_ = conn.Close()
	}
	s.registry.cancelAll(wrap(ErrDisposed, nil))
}
