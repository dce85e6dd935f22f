package restbus

import (
	"log"
	"strconv"
	"time"

	"github.com/feik/RestBus/wire"
)

// ExchangeDescriptor names the broker-side topology a client talks to. It is
// immutable after a Client is constructed.
type ExchangeDescriptor struct {
	ServerAddress    string
	ExchangeName     string
	ExchangeType     string
	Durable          bool
	AutoDelete       bool
	CallbackQueueTTL time.Duration
}

// InfiniteTimeout disables the per-request timer entirely: only a response,
// a canceled context, or client disposal will complete the future.
const InfiniteTimeout time.Duration = -1

// RequestOptions holds the per-request overrides a caller may attach to a
// Send call.
type RequestOptions struct {
	Timeout time.Duration
}

// RequestOption configures a RequestOptions value.
type RequestOption func(*RequestOptions)

// WithTimeout overrides the client's default timeout for a single request.
// A timeout of zero requests fire-and-forget delivery; InfiniteTimeout
// disables the timer.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *RequestOptions) {
		o.Timeout = d
	}
}

// timeoutHeader is the well-known request property RestBus also accepts a
// timeout override through, so a caller building a RequestPacket directly
// (without going through WithTimeout) can still express the same intent.
const timeoutHeader = "X-RestBus-Timeout-Ms"

// WithTimeoutHeader stamps the well-known timeout property directly onto
// the request, for callers who construct requests ahead of the Send call
// rather than passing a RequestOption. The value is written in whole
// milliseconds; InfiniteTimeout is written as -1.
func WithTimeoutHeader(req *wire.RequestPacket, d time.Duration) {
	ms := d.Milliseconds()
	if d == InfiniteTimeout {
		ms = -1
	}
	req.Headers.Set(timeoutHeader, strconv.FormatInt(ms, 10))
}

func timeoutFromHeader(req *wire.RequestPacket) (time.Duration, bool) {
	v, ok := req.Headers.Get(timeoutHeader)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	if n == -1 {
		return InfiniteTimeout, true
	}
	return time.Duration(n) * time.Millisecond, true
}

// ErrorHandler receives errors from background machinery (responses the
// callback consumer could not decode, failed background reconnect
// attempts) that have no caller to propagate to.
type ErrorHandler func(op string, err error)

func defaultErrorHandler(op string, err error) {
	if err != nil {
		log.Printf("restbus: %s: %v", op, err)
	}
}
