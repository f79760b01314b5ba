// Package catalog implements the authoritative instrument store and the
// pieces that connect it to the rest of the system: the client used by
// the order tier and the cache-invalidation notifier aimed at the
// front-end.
//
// # Ownership
//
// The catalog is the only mutator of instrument state. A single mutex
// covers the whole table; every update is atomic with its durable write,
// and every lookup returns a committed snapshot. The non-negative
// inventory invariant is enforced here, under the lock, rather than
// trusting the order tier's pre-check.
//
// # Durability
//
// The table persists as one JSON snapshot file, rewritten atomically
// (temp file + rename) on every successful update. A write failure rolls
// the in-memory mutation back, so no partial update is ever visible.
//
// # Invalidation
//
// After an update commits and the lock is released, the Notifier posts
// /invalidate/<name> to the front-end. The protocol is one-way and
// non-transactional: a cache entry may briefly reflect pre-update state
// in the window between commit and delivery, and a lost notification is
// repaired by the next cache miss.
package catalog
