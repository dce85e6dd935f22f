package restbus

import "github.com/feik/RestBus/wire"

// MessageMapper supplies the broker-side shape of an outgoing request: the
// exchange to publish to, the routing key, and whether the request is
// allowed to expire on the broker (carry a per-message TTL). It is an
// external collaborator — RestBus only calls it, never implements request
// dispatch itself.
type MessageMapper interface {
	Exchange(req *wire.RequestPacket) ExchangeDescriptor
	RoutingKey(req *wire.RequestPacket) string
	Expirable(req *wire.RequestPacket) bool
}

// DefaultMapper routes every request to a single, fixed exchange with the
// default routing key, and treats every request as expirable. It is the
// mapper a Client uses when none is supplied.
type DefaultMapper struct {
	Descriptor ExchangeDescriptor
}

func (m DefaultMapper) Exchange(*wire.RequestPacket) ExchangeDescriptor {
	return m.Descriptor
}

func (m DefaultMapper) RoutingKey(*wire.RequestPacket) string {
	return defaultRoutingKey()
}

func (m DefaultMapper) Expirable(*wire.RequestPacket) bool {
	return true
}
