package restbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestSupervisor() *supervisor {
	return newSupervisor("amqp://unused", ExchangeDescriptor{}, "client-1", newRegistry(), defaultErrorHandler)
}

func TestSupervisorStale(t *testing.T) {
	t.Run("never declared is stale", func(t *testing.T) {
		s := newTestSupervisor()
		assert.True(t, s.stale())
	})

	t.Run("freshly declared is not stale", func(t *testing.T) {
		s := newTestSupervisor()
		s.lastDeclareTick.Store(time.Now().UnixNano())
		assert.False(t, s.stale())
	})

	t.Run("older than the redeclare interval is stale", func(t *testing.T) {
		s := newTestSupervisor()
		s.lastDeclareTick.Store(time.Now().Add(-2 * topologyRedeclareInterval).UnixNano())
		assert.True(t, s.stale())
	})

	t.Run("a non-positive tick difference (clock wrap) is stale", func(t *testing.T) {
		s := newTestSupervisor()
		s.lastDeclareTick.Store(time.Now().Add(time.Hour).UnixNano())
		assert.True(t, s.stale())
	})
}
