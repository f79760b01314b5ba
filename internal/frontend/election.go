package frontend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"github.com/dreamware/bazaar/internal/cluster"
)

// ErrNoLeader is returned when no replica answered within the probe
// budget. The gateway surfaces it as a 500; it never crashes the caller.
var ErrNoLeader = errors.New("no order replica answered election probes")

// Leader identifies the currently elected order replica.
type Leader struct {
	ID   int
	Addr cluster.Addr
}

// URL returns the leader's base URL.
func (l Leader) URL() string { return l.Addr.URL() }

// Elector drives leader election for the order tier. It probes replicas
// in strict descending id order; the first to answer a ping becomes
// leader, and the result is broadcast to the remaining replicas
// (fire-and-forget). Probing is bounded by a total ping budget, after
// which ErrNoLeader is returned.
//
// The elected leader is held in a cell guarded by a short critical
// section; Leader() and Elect() are safe for concurrent use.
type Elector struct {
	replicas   map[int]cluster.Addr
	probeOrder []int // descending replica ids
	pingBudget int
	httpClient *http.Client

	// pingFunc performs one probe and returns the replica's server id.
	// Overridable for tests, in the same way the health monitor's check
	// function is.
	pingFunc func(ctx context.Context, url string) (int, error)

	mu     sync.RWMutex
	leader *Leader
	log    zerolog.Logger
}

// NewElector builds an elector over the given replica addresses.
func NewElector(replicas map[int]cluster.Addr, log zerolog.Logger) *Elector {
	order := make([]int, 0, len(replicas))
	for id := range replicas {
		order = append(order, id)
	}
	slices.SortFunc(order, func(a, b int) int { return b - a })

	e := &Elector{
		replicas:   replicas,
		probeOrder: order,
		pingBudget: 5,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		log:        log,
	}
	e.pingFunc = e.defaultPing
	return e
}

// Leader returns the most recently elected leader. The second return is
// false before the first successful election.
func (e *Elector) Leader() (Leader, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.leader == nil {
		return Leader{}, false
	}
	return *e.leader, true
}

// Elect probes the replicas in descending id order until one answers or
// the ping budget runs out. On success the winner is recorded, the
// leader-broadcast is sent to the other replicas, and the new leader is
// returned.
func (e *Elector) Elect(ctx context.Context) (Leader, error) {
	pings := 0
	for pings < e.pingBudget {
		for _, id := range e.probeOrder {
			addr := e.replicas[id]
			serverID, err := e.pingFunc(ctx, addr.URL()+"/ping")
			if err != nil {
				pings++
				e.log.Warn().Err(err).Int("replica", id).Msg("ping failed")
				if pings >= e.pingBudget {
					break
				}
				continue
			}

			leader := Leader{ID: serverID, Addr: addr}
			e.mu.Lock()
			e.leader = &leader
			e.mu.Unlock()

			e.log.Info().Int("leader", serverID).Str("addr", addr.URL()).Msg("elected leader")
			e.broadcastLeader(ctx, serverID)
			return leader, nil
		}
	}
	return Leader{}, ErrNoLeader
}

// broadcastLeader announces the winner to every other replica. Each
// broadcast is fire-and-forget; an unreachable replica learns the leader
// from sync when it comes back.
func (e *Elector) broadcastLeader(ctx context.Context, leaderID int) {
	for _, id := range e.probeOrder {
		if id == leaderID {
			continue
		}
		url := e.replicas[id].URL() + "/leader-broadcast"
		body := cluster.LeaderBroadcast{LeaderID: leaderID}
		if err := cluster.PostJSON(ctx, url, body, nil); err != nil {
			e.log.Warn().Err(err).Int("replica", id).Msg("leader broadcast not delivered")
		}
	}
}

// defaultPing GETs the replica's /ping endpoint and extracts the server
// id from the pong envelope.
func (e *Elector) defaultPing(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ping %s: status %d", url, resp.StatusCode)
	}
	var pong cluster.SuccessResponse
	if err := json.NewDecoder(resp.Body).Decode(&pong); err != nil {
		return 0, err
	}
	if pong.Success.ServerID == 0 {
		return 0, fmt.Errorf("ping %s: missing server id", url)
	}
	return pong.Success.ServerID, nil
}
