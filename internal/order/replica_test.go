package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/bazaar/internal/catalog"
	"github.com/dreamware/bazaar/internal/cluster"
)

// fakeCatalog serves the two catalog endpoints the order tier uses, with
// a mutable instrument table behind a lock.
type fakeCatalog struct {
	mu     sync.Mutex
	stocks map[string]int // name -> quantity
	server *httptest.Server
}

func newFakeCatalog(t *testing.T, stocks map[string]int) *fakeCatalog {
	t.Helper()
	f := &fakeCatalog{stocks: stocks}

	mux := http.NewServeMux()
	mux.HandleFunc("/lookup/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/lookup/")
		f.mu.Lock()
		qty, ok := f.stocks[name]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(cluster.NewError(http.StatusNotFound, "stock not found"))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"name": name, "price": 15.99, "quantity": qty})
	})
	mux.HandleFunc("/update", func(w http.ResponseWriter, r *http.Request) {
		var req cluster.UpdateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		qty, ok := f.stocks[req.Name]
		switch {
		case !ok, req.Quantity <= 0,
			req.Type == cluster.TradeBuy && qty < req.Quantity:
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(cluster.NewError(http.StatusInternalServerError, "failed to update stock"))
		case req.Type == cluster.TradeBuy:
			f.stocks[req.Name] = qty - req.Quantity
			_ = json.NewEncoder(w).Encode(cluster.NewSuccess(http.StatusOK, "updated stock successfully"))
		default:
			f.stocks[req.Name] = qty + req.Quantity
			_ = json.NewEncoder(w).Encode(cluster.NewSuccess(http.StatusOK, "updated stock successfully"))
		}
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCatalog) quantity(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stocks[name]
}

// fakePeer records pushes sent to a follower.
type fakePeer struct {
	mu     sync.Mutex
	pushes []cluster.PushRequest
	server *httptest.Server
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()
	f := &fakePeer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/push", func(w http.ResponseWriter, r *http.Request) {
		var req cluster.PushRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.pushes = append(f.pushes, req)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(cluster.NewSuccess(http.StatusOK, "pushed entry to database"))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePeer) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func newTestReplica(t *testing.T, id int, catalogURL string, peers map[int]string) *Replica {
	t.Helper()
	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)
	if peers == nil {
		peers = map[int]string{id: "http://unused"}
	}
	return NewReplica(id, ledger, catalog.NewClient(catalogURL), peers, cluster.NewLogger("test", "disabled"))
}

// TestReplicaTrade tests the leader's buy/sell path against a fake catalog
func TestReplicaTrade(t *testing.T) {
	t.Run("buy then sell get increasing ids", func(t *testing.T) {
		cat := newFakeCatalog(t, map[string]int{"FishCo": 100})
		r := newTestReplica(t, 1, cat.server.URL, nil)

		buyID, err := r.Trade(context.Background(), cluster.TradeBuy, "FishCo", 10)
		require.NoError(t, err)
		sellID, err := r.Trade(context.Background(), cluster.TradeSell, "FishCo", 10)
		require.NoError(t, err)

		assert.Equal(t, 0, buyID)
		assert.Equal(t, 1, sellID)
		assert.Equal(t, 100, cat.quantity("FishCo"))
	})

	t.Run("unknown stock propagates not found", func(t *testing.T) {
		cat := newFakeCatalog(t, map[string]int{})
		r := newTestReplica(t, 1, cat.server.URL, nil)

		_, err := r.Trade(context.Background(), cluster.TradeBuy, "Pear", 1)
		require.ErrorIs(t, err, catalog.ErrNotFound)
		assert.Equal(t, 0, r.Ledger().NextID(), "failed trade must not append")
	})

	t.Run("oversized buy is rejected before the catalog is touched", func(t *testing.T) {
		cat := newFakeCatalog(t, map[string]int{"FishCo": 5})
		r := newTestReplica(t, 1, cat.server.URL, nil)

		_, err := r.Trade(context.Background(), cluster.TradeBuy, "FishCo", 6)
		require.ErrorIs(t, err, ErrRejected)
		assert.Equal(t, 5, cat.quantity("FishCo"))
	})

	t.Run("buy of the exact remaining quantity succeeds, one more fails", func(t *testing.T) {
		cat := newFakeCatalog(t, map[string]int{"FishCo": 5})
		r := newTestReplica(t, 1, cat.server.URL, nil)

		_, err := r.Trade(context.Background(), cluster.TradeBuy, "FishCo", 5)
		require.NoError(t, err)
		assert.Equal(t, 0, cat.quantity("FishCo"))

		_, err = r.Trade(context.Background(), cluster.TradeBuy, "FishCo", 1)
		require.Error(t, err)
	})

	t.Run("zero quantity is rejected", func(t *testing.T) {
		cat := newFakeCatalog(t, map[string]int{"FishCo": 100})
		r := newTestReplica(t, 1, cat.server.URL, nil)

		_, err := r.Trade(context.Background(), cluster.TradeBuy, "FishCo", 0)
		require.ErrorIs(t, err, ErrRejected)
		assert.Equal(t, 0, r.Ledger().NextID())
	})
}

// TestReplicaBroadcast verifies every peer receives the committed entry
func TestReplicaBroadcast(t *testing.T) {
	cat := newFakeCatalog(t, map[string]int{"FishCo": 100})
	p2 := newFakePeer(t)
	p3 := newFakePeer(t)

	peers := map[int]string{
		1: "http://self-not-used",
		2: p2.server.URL,
		3: p3.server.URL,
	}
	r := newTestReplica(t, 1, cat.server.URL, peers)

	id, err := r.Trade(context.Background(), cluster.TradeBuy, "FishCo", 10)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return p2.pushCount() == 1 && p3.pushCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "both followers should receive the push")

	p2.mu.Lock()
	push := p2.pushes[0]
	p2.mu.Unlock()
	assert.Equal(t, id, push.NextID)
	assert.Equal(t, cluster.OrderEntry{Name: "FishCo", Quantity: 10, Type: cluster.TradeBuy}, push.Entry)
}

// TestReplicaSync tests the boot-time catch-up pass
func TestReplicaSync(t *testing.T) {
	t.Run("applies missed entries and adopts the leader", func(t *testing.T) {
		peerEntries := map[int]cluster.OrderEntry{
			0: {Name: "FishCo", Quantity: 10, Type: cluster.TradeBuy},
			1: {Name: "GameStart", Quantity: 2, Type: cluster.TradeSell},
		}
		peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/sync", r.URL.Path)
			var req cluster.SyncRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 0, req.LastID)
			_ = json.NewEncoder(w).Encode(cluster.SyncResponse{LeaderID: 3, Transactions: peerEntries})
		}))
		defer peer.Close()

		r := newTestReplica(t, 1, "http://unused", map[int]string{1: "http://self", 2: peer.URL})
		r.SyncFromPeers(context.Background())

		assert.Equal(t, 2, r.Ledger().NextID())
		got, err := r.Ledger().Get(1)
		require.NoError(t, err)
		assert.Equal(t, "GameStart", got.Name)
		assert.Equal(t, 3, r.LeaderID())
	})

	t.Run("unreachable peers are skipped", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()

		r := newTestReplica(t, 1, "http://unused", map[int]string{1: "http://self", 2: dead.URL})
		r.SyncFromPeers(context.Background())

		assert.Equal(t, 0, r.Ledger().NextID())
		assert.Equal(t, -1, r.LeaderID())
	})
}

// TestReplicaLeadership tests the externally driven leader state machine
func TestReplicaLeadership(t *testing.T) {
	r := newTestReplica(t, 2, "http://unused", nil)

	assert.Equal(t, -1, r.LeaderID(), "leader starts unknown")

	r.BecomeLeader()
	assert.Equal(t, 2, r.LeaderID())

	r.SetLeader(3)
	assert.Equal(t, 3, r.LeaderID(), "broadcast demotes to follower")
}

// TestReplicaSyncSnapshot verifies the serving side of sync
func TestReplicaSyncSnapshot(t *testing.T) {
	cat := newFakeCatalog(t, map[string]int{"FishCo": 100})
	r := newTestReplica(t, 1, cat.server.URL, nil)
	r.BecomeLeader()

	for i := 0; i < 3; i++ {
		_, err := r.Trade(context.Background(), cluster.TradeBuy, "FishCo", 1)
		require.NoError(t, err)
	}

	resp := r.SyncSnapshot(1)
	assert.Equal(t, 1, resp.LeaderID)
	assert.Len(t, resp.Transactions, 2)

	resp = r.SyncSnapshot(99)
	assert.Empty(t, resp.Transactions)
}
