package order

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/dreamware/bazaar/internal/catalog"
	"github.com/dreamware/bazaar/internal/cluster"
)

// maxPushWorkers bounds the number of concurrent outbound pushes.
const maxPushWorkers = 32

// ErrRejected is returned when a trade cannot be executed: bad quantity
// or not enough shares available.
var ErrRejected = errors.New("could not trade stock")

// Replica is one member of the order tier. Exactly one replica is leader
// at any time; the leader executes trades against the catalog and pushes
// each committed entry to its peers, while followers accept pushes and
// serve history lookups.
//
// Leadership is externally driven: a replica learns it is leader by
// receiving a ping from the front-end, and learns of another leader by
// broadcast or sync. leaderID is -1 until either happens.
type Replica struct {
	ID      int
	ledger  *Ledger
	catalog *catalog.Client
	peers   map[int]string // replica id -> base URL, self included

	leaderID atomic.Int64
	pushSem  *semaphore.Weighted
	log      zerolog.Logger
}

// NewReplica builds a replica with the given id, ledger, catalog client,
// and peer base URLs (keyed by replica id, self included).
func NewReplica(id int, ledger *Ledger, cat *catalog.Client, peers map[int]string, log zerolog.Logger) *Replica {
	r := &Replica{
		ID:      id,
		ledger:  ledger,
		catalog: cat,
		peers:   peers,
		pushSem: semaphore.NewWeighted(maxPushWorkers),
		log:     log,
	}
	r.leaderID.Store(-1)
	return r
}

// Ledger exposes the replica's ledger for handlers and tests.
func (r *Replica) Ledger() *Ledger { return r.ledger }

// LeaderID returns the replica's current view of the leader, -1 if
// unknown.
func (r *Replica) LeaderID() int { return int(r.leaderID.Load()) }

// SetLeader records a leader announced by broadcast or sync.
func (r *Replica) SetLeader(id int) {
	r.leaderID.Store(int64(id))
	if id == r.ID {
		r.log.Info().Msg("this replica is the leader")
	} else {
		r.log.Info().Int("leader", id).Msg("recorded new leader")
	}
}

// BecomeLeader marks this replica as leader. The front-end pings
// replicas in descending id order, so receiving a ping is how a replica
// learns it has been elected.
func (r *Replica) BecomeLeader() {
	r.leaderID.Store(int64(r.ID))
	r.log.Info().Msg("promoted to leader by ping")
}

// Trade executes a buy or sell on behalf of the front-end; only the
// leader is expected to receive these. The flow is: look up the
// instrument (propagating NotFound verbatim), pre-check buys against the
// snapshot, then commit under the ledger lock so that the catalog update
// and the id assignment happen in lock-step. The committed entry is
// broadcast to peers after the lock is released.
func (r *Replica) Trade(ctx context.Context, tradeType, name string, quantity int) (int, error) {
	snapshot, err := r.catalog.Lookup(ctx, name)
	if err != nil {
		return 0, err
	}

	if quantity <= 0 {
		return 0, ErrRejected
	}
	// Defensive: the catalog enforces this again under its own lock.
	if tradeType == cluster.TradeBuy && quantity > snapshot.Quantity {
		return 0, ErrRejected
	}

	entry := cluster.OrderEntry{Name: name, Quantity: quantity, Type: tradeType}
	id, err := r.ledger.Commit(ctx, entry, func(ctx context.Context) error {
		return r.catalog.Update(ctx, name, quantity, tradeType)
	})
	if err != nil {
		return 0, err
	}

	r.log.Info().Int("id", id).Str("stock", name).Str("type", tradeType).
		Int("quantity", quantity).Msg("committed transaction")
	go r.broadcast(id, entry)
	return id, nil
}

// broadcast pushes one committed entry to every peer. Push is
// best-effort and idempotent by id: failures are logged and swallowed,
// and a lagging follower catches up via sync on its next boot.
func (r *Replica) broadcast(id int, entry cluster.OrderEntry) {
	for peerID, baseURL := range r.peers {
		if peerID == r.ID {
			continue
		}
		if err := r.pushSem.Acquire(context.Background(), 1); err != nil {
			return
		}
		go func(peerID int, baseURL string) {
			defer r.pushSem.Release(1)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			body := cluster.PushRequest{NextID: id, Entry: entry}
			if err := cluster.PostJSON(ctx, baseURL+"/push", body, nil); err != nil {
				r.log.Warn().Err(err).Int("peer", peerID).Int("id", id).Msg("push not delivered")
			}
		}(peerID, baseURL)
	}
}

// ApplyPush records a pushed entry in the follower's ledger.
func (r *Replica) ApplyPush(id int, entry cluster.OrderEntry) error {
	if err := r.ledger.Apply(id, entry); err != nil {
		return err
	}
	r.log.Debug().Int("id", id).Str("stock", entry.Name).Msg("applied pushed entry")
	return nil
}

// SyncFromPeers runs the boot-time catch-up pass: ask every peer for
// entries at or after this replica's nextID, apply whatever comes back,
// and adopt the largest leader id observed. Per-peer failures are
// swallowed; a replica that cannot reach anyone simply starts cold.
func (r *Replica) SyncFromPeers(ctx context.Context) {
	for _, peerID := range cluster.ReplicaIDs {
		if peerID == r.ID {
			continue
		}
		baseURL, ok := r.peers[peerID]
		if !ok {
			continue
		}

		var resp cluster.SyncResponse
		req := cluster.SyncRequest{LastID: r.ledger.NextID()}
		if err := cluster.GetJSONWithBody(ctx, baseURL+"/sync", req, &resp); err != nil {
			r.log.Warn().Err(err).Int("peer", peerID).Msg("sync peer unreachable")
			continue
		}

		for id, entry := range resp.Transactions {
			if err := r.ledger.Apply(id, entry); err != nil {
				r.log.Warn().Err(err).Int("id", id).Msg("sync apply failed")
			}
		}
		if resp.LeaderID > 0 && resp.LeaderID > r.LeaderID() {
			r.SetLeader(resp.LeaderID)
		}
		if n := len(resp.Transactions); n > 0 {
			r.log.Info().Int("peer", peerID).Int("entries", n).Msg("caught up from peer")
		}
	}
}

// SyncSnapshot answers a peer's sync request from this replica's ledger.
func (r *Replica) SyncSnapshot(lastID int) cluster.SyncResponse {
	return cluster.SyncResponse{
		LeaderID:     r.LeaderID(),
		Transactions: r.ledger.EntriesSince(lastID),
	}
}

// String identifies the replica in logs.
func (r *Replica) String() string {
	return fmt.Sprintf("order-%d", r.ID)
}
