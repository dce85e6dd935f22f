package restbus

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/feik/RestBus/wire"
)

// registryShardCount splits the pending-request registry so that
// completions for distinct correlation IDs never contend on the same
// mutex, per the spec's "mutation across keys is free to proceed in
// parallel" requirement.
const registryShardCount = 32

type registryShard struct {
	mu      sync.Mutex
	waiters map[string]*Waiter
}

// registry is the concurrent correlation-ID -> Waiter mapping mutated by
// the request engine (insert), the callback consumer (complete on
// delivery), timers (complete on timeout), and cancellation (complete on
// cancel).
type registry struct {
	shards [registryShardCount]*registryShard
}

func newRegistry() *registry {
	r := &registry{}
	for i := range r.shards {
		r.shards[i] = &registryShard{waiters: make(map[string]*Waiter)}
	}
	return r
}

func (r *registry) shardFor(id string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%registryShardCount]
}

// register installs w under id. A duplicate ID is impossible under I1 (122
// bits of UUIDv4 entropy); seeing one anyway means the caller minted IDs
// outside randomID, which is a programmer error, so this panics rather
// than returning a recoverable error.
func (r *registry) register(id string, w *Waiter) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.waiters[id]; exists {
		panic(fmt.Sprintf("restbus: correlation id %q already registered", id))
	}
	s.waiters[id] = w
}

// complete removes and fulfils the waiter for id, if one is registered. It
// reports whether a waiter existed; a delivery for an id with no waiter
// (already completed by timeout/cancel, or simply unknown) is dropped by
// the caller.
func (r *registry) complete(id string, resp *wire.ResponsePacket, err error) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	w, ok := s.waiters[id]
	if ok {
		delete(s.waiters, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	w.complete(resp, err)
	return true
}

// remove discards the waiter for id without completing it, used when a
// Send fails between registration and publish and the future it would
// have returned was never handed to a caller.
func (r *registry) remove(id string) {
	s := r.shardFor(id)
	s.mu.Lock()
	delete(s.waiters, id)
	s.mu.Unlock()
}

// cancelAll removes every waiter across every shard and fails each with
// err. Used by dispose() and by CancelPendingRequests.
func (r *registry) cancelAll(err error) {
	for _, s := range r.shards {
		s.mu.Lock()
		waiters := s.waiters
		s.waiters = make(map[string]*Waiter)
		s.mu.Unlock()
		for _, w := range waiters {
			w.complete(nil, err)
		}
	}
}
