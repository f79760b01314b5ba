// Package frontend holds the gateway's two stateful pieces: the bounded
// LRU lookup cache with external invalidation, and the leader elector
// for the order tier.
//
// # Cache
//
// The cache accelerates stock lookups; the catalog stays the source of
// truth. Entries are promoted on hit, the LRU end is evicted on insert
// past capacity, and the catalog drops entries by name through the
// /invalidate endpoint after every successful update. The LRU-to-MRU
// order is part of the external contract (served by /dump-cache), which
// is why the cache is a doubly linked list plus index rather than an
// opaque library structure.
//
// # Election
//
// The order tier's leader election is driven from here. On startup, and
// whenever a forwarded request fails at the transport level, the elector
// probes replicas in strict descending id order (3, 2, 1); the first to
// answer a ping is recorded as leader and broadcast to the rest. Probes
// share a total budget of five pings, after which ErrNoLeader surfaces
// to the client as a 500. Domain errors (4xx/5xx from a reachable
// leader) never trigger an election.
package frontend
