package order

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/dreamware/bazaar/internal/cluster"
)

// ErrOrderNotFound is returned when a transaction id is not in the ledger.
var ErrOrderNotFound = errors.New("order not found")

// ledgerFile is the on-disk shape: {"nextID": N, "ledger": {"0": {...}}}.
type ledgerFile struct {
	NextID int                        `json:"nextID"`
	Ledger map[int]cluster.OrderEntry `json:"ledger"`
}

// Ledger is one replica's transaction log: a dense id -> entry mapping
// plus the next id to assign. A single mutex covers reads, appends,
// pushes, and sync; every mutation is persisted before it returns.
//
// On the leader, ids are assigned in strict increasing order with no
// gaps. On followers, entries arrive by push and may land out of order;
// nextID tracks max(seen id)+1 and gaps are repaired by sync.
type Ledger struct {
	mu      sync.Mutex
	path    string
	nextID  int
	entries map[int]cluster.OrderEntry
}

// OpenLedger loads the ledger file at path, initializing an empty ledger
// (and persisting it) when the file does not exist.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		entries: make(map[int]cluster.OrderEntry),
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f ledgerFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrapf(err, "parse ledger %s", path)
		}
		l.nextID = f.NextID
		if f.Ledger != nil {
			l.entries = f.Ledger
		}
	case os.IsNotExist(err):
		if err := l.save(); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Wrapf(err, "read ledger %s", path)
	}
	return l, nil
}

// NextID returns the next transaction id the ledger would assign.
func (l *Ledger) NextID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID
}

// Get returns the entry committed under id, or ErrOrderNotFound.
func (l *Ledger) Get(id int) (cluster.OrderEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[id]
	if !ok {
		return cluster.OrderEntry{}, ErrOrderNotFound
	}
	return entry, nil
}

// Commit runs the leader's write path: it reserves the next id, invokes
// apply (the catalog update) while still holding the ledger lock so id
// assignment stays in lock-step with the instrument mutation, then
// persists the entry and advances nextID. If apply or the durable write
// fails, no id is burned and the ledger is unchanged.
//
// The lock is deliberately held across the network call; the catalog
// update is short and serialized by the catalog's own lock.
func (l *Ledger) Commit(ctx context.Context, entry cluster.OrderEntry, apply func(context.Context) error) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	if err := apply(ctx); err != nil {
		return 0, err
	}

	l.entries[id] = entry
	l.nextID = id + 1
	if err := l.save(); err != nil {
		delete(l.entries, id)
		l.nextID = id
		return 0, err
	}
	return id, nil
}

// Apply records a replicated entry at its own id. It is idempotent:
// applying the same push twice yields the same state. Out-of-order ids
// are accepted at their position; nextID only ever moves forward.
func (l *Ledger) Apply(id int, entry cluster.OrderEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[id] = entry
	if id+1 > l.nextID {
		l.nextID = id + 1
	}
	return l.save()
}

// EntriesSince returns every held entry with id in [lastID, nextID).
// A caller that is already caught up gets an empty map, not an error.
// Gaps a follower has not repaired yet are simply absent.
func (l *Ledger) EntriesSince(lastID int) map[int]cluster.OrderEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[int]cluster.OrderEntry)
	if lastID < 0 {
		lastID = 0
	}
	for id := lastID; id < l.nextID; id++ {
		if entry, ok := l.entries[id]; ok {
			out[id] = entry
		}
	}
	return out
}

// Dump returns nextID and a copy of the full ledger, for diagnostics.
func (l *Ledger) Dump() (int, map[int]cluster.OrderEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[int]cluster.OrderEntry, len(l.entries))
	for id, entry := range l.entries {
		out[id] = entry
	}
	return l.nextID, out
}

// Reset empties the ledger and persists the empty state. Test hook.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID = 0
	l.entries = make(map[int]cluster.OrderEntry)
	return l.save()
}

// save rewrites the ledger file atomically. Callers hold l.mu.
func (l *Ledger) save() error {
	data, err := json.MarshalIndent(ledgerFile{NextID: l.nextID, Ledger: l.entries}, "", "    ")
	if err != nil {
		return errors.Wrap(err, "marshal ledger")
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*")
	if err != nil {
		return errors.Wrap(err, "create ledger temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "write ledger")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "close ledger")
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "replace ledger")
	}
	return nil
}
