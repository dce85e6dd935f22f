package restbus

import "fmt"

// ErrorCode identifies one of the error kinds a Send call can surface.
type ErrorCode int

const (
	CodeInvalidArgument ErrorCode = iota + 1
	CodeInvalidState
	CodeDisposed
	CodeBrokerUnreachable
	CodeTimeout
	CodeCanceled
	CodeBadResponse
	CodePublishFailed
)

func (c ErrorCode) String() string {
	switch c {
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeInvalidState:
		return "InvalidState"
	case CodeDisposed:
		return "Disposed"
	case CodeBrokerUnreachable:
		return "BrokerUnreachable"
	case CodeTimeout:
		return "Timeout"
	case CodeCanceled:
		return "Canceled"
	case CodeBadResponse:
		return "BadResponse"
	case CodePublishFailed:
		return "PublishFailed"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type every sentinel below, every error Send
// returns, and every error a Future resolves with, is an instance of.
// Future.Wait returns its own ctx's error instead when that ctx is done
// before the future resolves.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("restbus: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("restbus: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTimeout) succeed against a wrapped *Error that
// shares ErrTimeout's code, regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrInvalidState      = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrDisposed          = &Error{Code: CodeDisposed, Message: "client has been disposed"}
	ErrBrokerUnreachable = &Error{Code: CodeBrokerUnreachable, Message: "broker unreachable"}
	ErrTimeout           = &Error{Code: CodeTimeout, Message: "request timed out"}
	ErrCanceled          = &Error{Code: CodeCanceled, Message: "request canceled"}
	ErrBadResponse       = &Error{Code: CodeBadResponse, Message: "response could not be deserialized"}
	ErrPublishFailed     = &Error{Code: CodePublishFailed, Message: "publish failed"}
)

// wrap returns a new *Error carrying sentinel's code/message and cause as
// its unwrap target, so callers can both errors.Is(err, sentinel) and
// inspect the underlying cause.
func wrap(sentinel *Error, cause error) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Err: cause}
}
