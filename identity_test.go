package restbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExchangeName(t *testing.T) {
	t.Run("falls back to default when unset", func(t *testing.T) {
		assert.Equal(t, defaultExchangeName, exchangeName(ExchangeDescriptor{}))
	})

	t.Run("honors an explicit name", func(t *testing.T) {
		assert.Equal(t, "orders.requests", exchangeName(ExchangeDescriptor{ExchangeName: "orders.requests"}))
	})
}

func TestCallbackQueueName(t *testing.T) {
	t.Run("scopes the queue to both exchange and client id", func(t *testing.T) {
		got := callbackQueueName(ExchangeDescriptor{ExchangeName: "orders"}, "abc123")
		assert.Equal(t, "orders.callback.abc123", got)
	})

	t.Run("two client ids never collide", func(t *testing.T) {
		d := ExchangeDescriptor{}
		a := callbackQueueName(d, randomID())
		b := callbackQueueName(d, randomID())
		assert.NotEqual(t, a, b)
	})
}

func TestRandomID(t *testing.T) {
	t.Run("produces distinct ids", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			id := randomID()
			assert.False(t, seen[id])
			seen[id] = true
		}
	})
}
