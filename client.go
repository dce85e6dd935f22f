package restbus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/feik/RestBus/wire"
)

// Client sends wire.RequestPacket values over an AMQP broker and resolves
// the matching wire.ResponsePacket through a Future. A Client owns one
// connection, one callback queue, and a pool of publisher channels; it is
// safe for concurrent use by multiple goroutines.
type Client struct {
	descriptor ExchangeDescriptor
	clientID   string

	sup      *supervisor
	registry *registry

	mapper         MessageMapper
	baseURI        string
	defaultTimeout time.Duration
	defaultHeaders wire.Header
	errorHandler   ErrorHandler
	supOpts        []SupervisorOption

	// started latches true the first time Send passes its precondition
	// checks (before dialing) and never clears, independent of whether
	// that dial succeeds or of later connection loss/reconnect (I6:
	// configuration is immutable for the client's lifetime once started,
	// not merely while currently connected).
	started  atomic.Bool
	disposed atomic.Bool
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithBaseURI sets a prefix joined onto every RequestPacket.URI that does
// not already start with it.
func WithBaseURI(uri string) ClientOption {
	return func(c *Client) { c.baseURI = uri }
}

// WithDefaultTimeout sets the timeout Send applies when neither a
// RequestOption nor the request's timeout header specify one.
func WithDefaultTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.defaultTimeout = d }
}

// WithDefaultHeaders sets headers merged onto every outgoing request,
// without overwriting a header the request already carries.
func WithDefaultHeaders(h wire.Header) ClientOption {
	return func(c *Client) { c.defaultHeaders = h.Clone() }
}

// WithMessageMapper overrides the default routing: every outgoing request
// is handed to the mapper to decide its exchange, routing key, and whether
// it may carry a TTL.
func WithMessageMapper(m MessageMapper) ClientOption {
	return func(c *Client) { c.mapper = m }
}

// WithErrorHandler overrides where errors surfaced by background
// machinery (the callback consumer's delivery loop) are reported.
func WithErrorHandler(h ErrorHandler) ClientOption {
	return func(c *Client) { c.errorHandler = h }
}

// WithClientReconnectPolicy opts the client into background reconnection
// after a connection loss, per SupervisorOption's WithReconnectPolicy. The
// default is lazy reconnection on the next Send.
func WithClientReconnectPolicy(delay time.Duration, maxRetries int) ClientOption {
	return func(c *Client) { c.supOpts = append(c.supOpts, WithReconnectPolicy(delay, maxRetries)) }
}

// NewClient constructs a Client against the broker at url, talking the
// topology described by descriptor. The connection is not dialed until
// the first Send (or an explicit call that requires it); construction
// never fails on broker reachability.
func NewClient(url string, descriptor ExchangeDescriptor, opts ...ClientOption) *Client {
	c := &Client{
		descriptor:     descriptor,
		clientID:       randomID(),
		registry:       newRegistry(),
		defaultTimeout: 30 * time.Second,
		errorHandler:   defaultErrorHandler,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mapper == nil {
		c.mapper = DefaultMapper{Descriptor: descriptor}
	}
	c.sup = newSupervisor(url, descriptor, c.clientID, c.registry, c.errorHandler, c.supOpts...)
	return c
}

// SetBaseURI overrides the base URI after construction. It fails with
// InvalidState once Send has been called (I6: configuration is only
// mutable before first use) and with Disposed once the client is closed.
func (c *Client) SetBaseURI(uri string) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.baseURI = uri
	return nil
}

// SetDefaultTimeout overrides the default per-request timeout after
// construction, subject to the same I6 restriction as SetBaseURI.
func (c *Client) SetDefaultTimeout(d time.Duration) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.defaultTimeout = d
	return nil
}

// SetDefaultHeaders replaces the headers merged onto every outgoing
// request, subject to the same I6 restriction as SetBaseURI.
func (c *Client) SetDefaultHeaders(h wire.Header) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.defaultHeaders = h.Clone()
	return nil
}

func (c *Client) checkMutable() error {
	if c.disposed.Load() {
		return wrap(ErrDisposed, nil)
	}
	if c.started.Load() {
		return wrap(ErrInvalidState, fmt.Errorf("client configuration is immutable once Send has been called"))
	}
	return nil
}

// Send publishes req and returns a Future that resolves once a matching
// response arrives, the resolved timeout elapses, ctx is canceled, or the
// client is disposed — whichever happens first.
//
// A resolved timeout of zero sends the request fire-and-forget: Send
// publishes it without a reply-to and returns an already-resolved Future
// carrying a synthetic 200 OK.
func (c *Client) Send(ctx context.Context, req *wire.RequestPacket, opts ...RequestOption) (*Future, error) {
	if req == nil {
		return nil, wrap(ErrInvalidArgument, fmt.Errorf("request must not be nil"))
	}
	if req.Method == "" {
		return nil, wrap(ErrInvalidArgument, fmt.Errorf("request method must not be empty"))
	}
	if req.URI == "" && c.baseURI == "" {
		return nil, wrap(ErrInvalidState, fmt.Errorf("request URI unresolvable: no URI and no base URI set"))
	}
	if c.disposed.Load() {
		return nil, wrap(ErrDisposed, nil)
	}
	c.started.Store(true)

	c.prepare(req)

	timeout := c.resolveTimeout(req, opts)

	if err := c.sup.ensureStarted(ctx); err != nil {
		return nil, err
	}

	if timeout == 0 {
		return c.sendFireAndForget(ctx, req)
	}
	return c.sendAwaiting(ctx, req, timeout)
}

// prepare prefixes the base URI onto request URIs that do not already
// start with it (absolute URIs included) and merges in
// default headers that the request does not already carry.
func (c *Client) prepare(req *wire.RequestPacket) {
	if c.baseURI != "" && !hasPrefix(req.URI, c.baseURI) {
		req.URI = c.baseURI + req.URI
	}
	for _, f := range c.defaultHeaders {
		if _, ok := req.Headers.Get(f.Name); !ok {
			req.Headers.Add(f.Name, f.Value)
		}
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (c *Client) resolveTimeout(req *wire.RequestPacket, opts []RequestOption) time.Duration {
	ro := RequestOptions{Timeout: c.defaultTimeout}
	if d, ok := timeoutFromHeader(req); ok {
		ro.Timeout = d
	}
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.Timeout == InfiniteTimeout {
		return InfiniteTimeout
	}
	if ro.Timeout < 0 {
		return c.defaultTimeout
	}
	return ro.Timeout
}

func (c *Client) sendFireAndForget(ctx context.Context, req *wire.RequestPacket) (*Future, error) {
	id := randomID()
	if err := c.publish(ctx, req, id, "", 0); err != nil {
		return nil, err
	}
	return syntheticOKFuture(id), nil
}

func (c *Client) sendAwaiting(ctx context.Context, req *wire.RequestPacket, timeout time.Duration) (*Future, error) {
	id := randomID()
	w := newWaiter(id)
	c.registry.register(id, w)

	failf := func(err error) (*Future, error) {
		c.registry.remove(id)
		return nil, err
	}

	if timeout != InfiniteTimeout {
		w.armTimer(timeout, func() {
			c.registry.complete(id, nil, wrap(ErrTimeout, nil))
		})
	}
	stop := context.AfterFunc(ctx, func() {
		c.registry.complete(id, nil, wrap(ErrCanceled, ctx.Err()))
	})
	w.armCancellation(stop)

	replyTo := callbackQueueName(c.descriptor, c.clientID)
	if err := c.publish(ctx, req, id, replyTo, timeout); err != nil {
		return failf(err)
	}

	return &Future{w: w}, nil
}

func (c *Client) publish(ctx context.Context, req *wire.RequestPacket, correlationID, replyTo string, timeout time.Duration) error {
	lease, err := c.sup.borrowChannel(ctx)
	if err != nil {
		return err
	}
	defer lease.Close()

	body, err := req.Serialize()
	if err != nil {
		return wrap(ErrInvalidArgument, err)
	}

	pub := amqp.Publishing{
		CorrelationId: correlationID,
		ReplyTo:       replyTo,
		Body:          body,
		ContentType:   "application/restbus",
	}
	if timeout > 0 && c.mapper.Expirable(req) {
		pub.Expiration = fmt.Sprintf("%d", timeout.Milliseconds())
	}

	exchange := exchangeName(c.mapper.Exchange(req))
	routingKey := c.mapper.RoutingKey(req)

	if err := lease.Channel().PublishWithContext(ctx, exchange, routingKey, false, false, pub); err != nil {
		return wrap(ErrPublishFailed, err)
	}
	return nil
}

// Get sends a GET request built from uri and an empty body.
func (c *Client) Get(ctx context.Context, uri string, opts ...RequestOption) (*Future, error) {
	return c.Send(ctx, &wire.RequestPacket{Method: "GET", URI: uri, Version: "HTTP/1.1"}, opts...)
}

// Post sends a POST request carrying body.
func (c *Client) Post(ctx context.Context, uri string, body []byte, opts ...RequestOption) (*Future, error) {
	return c.Send(ctx, &wire.RequestPacket{Method: "POST", URI: uri, Body: body, Version: "HTTP/1.1"}, opts...)
}

// Put sends a PUT request carrying body.
func (c *Client) Put(ctx context.Context, uri string, body []byte, opts ...RequestOption) (*Future, error) {
	return c.Send(ctx, &wire.RequestPacket{Method: "PUT", URI: uri, Body: body, Version: "HTTP/1.1"}, opts...)
}

// Delete sends a DELETE request built from uri and an empty body.
func (c *Client) Delete(ctx context.Context, uri string, opts ...RequestOption) (*Future, error) {
	return c.Send(ctx, &wire.RequestPacket{Method: "DELETE", URI: uri, Version: "HTTP/1.1"}, opts...)
}

// CancelPendingRequests fails every in-flight Send with Canceled without
// disposing the client; a subsequent Send is unaffected.
func (c *Client) CancelPendingRequests() {
	c.registry.cancelAll(wrap(ErrCanceled, nil))
}

// Close disposes the client: every pending Future resolves with Disposed,
// the connection and channel pool are closed, and all subsequent Send
// calls fail with Disposed.
func (c *Client) Close() error {
	c.disposed.Store(true)
	c.sup.dispose()
	return nil
}
