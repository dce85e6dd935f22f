package restbus

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	t.Run("wrapped error matches its sentinel by code", func(t *testing.T) {
		cause := fmt.Errorf("dial tcp: connection refused")
		err := wrap(ErrBrokerUnreachable, cause)
		assert.True(t, errors.Is(err, ErrBrokerUnreachable))
		assert.False(t, errors.Is(err, ErrTimeout))
	})

	t.Run("Unwrap exposes the underlying cause", func(t *testing.T) {
		cause := fmt.Errorf("boom")
		err := wrap(ErrPublishFailed, cause)
		assert.Same(t, cause, errors.Unwrap(err))
	})

	t.Run("a sentinel with no cause still matches itself", func(t *testing.T) {
		err := wrap(ErrDisposed, nil)
		assert.True(t, errors.Is(err, ErrDisposed))
	})
}

func TestErrorCodeString(t *testing.T) {
	t.Run("known codes stringify to their name", func(t *testing.T) {
		assert.Equal(t, "Timeout", CodeTimeout.String())
	})

	t.Run("unknown code stringifies to Unknown", func(t *testing.T) {
		assert.Equal(t, "Unknown", ErrorCode(999).String())
	})
}
