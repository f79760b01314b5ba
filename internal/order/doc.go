// Package order implements the replicated transaction ledger that backs
// the trading service's order tier.
//
// # Model
//
// Three static replicas each own a private ledger: a dense mapping of
// transaction id to entry plus the next id to assign. Exactly one
// replica is leader at any time. The leader executes buys and sells by
// mutating the catalog and appending to its ledger; followers receive
// committed entries by push and answer order-history lookups.
//
// # Write path (leader)
//
//	lookup instrument at catalog        (NotFound propagates verbatim)
//	lock ledger
//	  reserve next id
//	  update instrument at catalog      (lock held; catalog call is short)
//	  persist entry, advance nextID
//	unlock
//	broadcast push{id, entry} to peers  (bounded fan-out, best effort)
//
// Holding the ledger lock across the catalog update keeps id assignment
// in lock-step with the instrument mutation: transaction order in the
// ledger equals the order of successful catalog updates. A failed update
// or durable write burns no id.
//
// # Replication
//
// Push carries its own id, so delivery may be repeated or out of order;
// Apply is idempotent and tolerates gaps. Gaps are repaired by the sync
// protocol: on boot a replica asks each peer for entries at or after its
// own nextID, applies what it gets, and adopts the largest leader id it
// sees. Sync against an already-caught-up peer returns an empty map, not
// an error.
//
// # Leadership
//
// Election is driven by the front-end. A replica that receives a ping
// becomes leader; a leader-broadcast names the winner to everyone else.
// A restarted replica comes up with leaderID -1 until one of those
// happens or sync tells it otherwise.
//
// # Durability
//
// Every append and push is persisted (atomic rewrite of the per-replica
// JSON file) before the operation returns. The on-disk shape is
// {"nextID": N, "ledger": {"0": {...}, ...}}.
package order
