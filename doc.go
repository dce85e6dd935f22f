// Package restbus is a request/response RPC client that tunnels
// HTTP-shaped requests over an AMQP 0-9-1 broker such as RabbitMQ. Callers
// submit a *wire.RequestPacket through Client.Send and get back a *Future
// that resolves to a *wire.ResponsePacket once a reply with a matching
// correlation ID arrives on the client's callback queue, the request times
// out, the caller's context is canceled, or the client is disposed.
package restbus
