package restbus

import (
	"fmt"

	"github.com/google/uuid"
)

const defaultExchangeName = "restbus.requests"

// exchangeName is the exchange a request is published to. Callers may
// override it through ExchangeDescriptor.ExchangeName; otherwise a stable
// default is used so a client is usable without further configuration.
func exchangeName(d ExchangeDescriptor) string {
	if d.ExchangeName != "" {
		return d.ExchangeName
	}
	return defaultExchangeName
}

// callbackQueueName is the per-client queue that receives responses. It is
// deterministic for a given (descriptor, clientID) pair but clientID is
// freshly random per client instance, so two clients never share a queue.
func callbackQueueName(d ExchangeDescriptor, clientID string) string {
	return fmt.Sprintf("%s.callback.%s", exchangeName(d), clientID)
}

// defaultRoutingKey is used when a MessageMapper does not supply one.
func defaultRoutingKey() string {
	return "restbus.request"
}

// randomID mints an identifier unique across all live waiters of a single
// client instance (I1): a v4 UUID carries 122 bits of randomness, which
// satisfies the invariant directly.
func randomID() string {
	return uuid.NewString()
}
