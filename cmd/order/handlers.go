package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dreamware/bazaar/internal/catalog"
	"github.com/dreamware/bazaar/internal/cluster"
	"github.com/dreamware/bazaar/internal/order"
)

// server wires the replica into its HTTP surface. Only the leader is
// expected to see /buy and /sell; the replication and election endpoints
// are served by everyone.
type server struct {
	replica *order.Replica
	log     zerolog.Logger

	quit     chan struct{}
	quitOnce sync.Once
}

func newServer(replica *order.Replica, log zerolog.Logger) *server {
	return &server{
		replica: replica,
		log:     log,
		quit:    make(chan struct{}),
	}
}

// routes registers every replica endpoint on r and returns it.
func (s *server) routes(r *mux.Router) *mux.Router {
	r.HandleFunc("/buy", s.handleBuy).Methods(http.MethodPost)
	r.HandleFunc("/sell", s.handleSell).Methods(http.MethodPost)
	r.HandleFunc("/lookup-order/{id}", s.handleLookupOrder).Methods(http.MethodGet)
	r.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	r.HandleFunc("/leader-broadcast", s.handleLeaderBroadcast).Methods(http.MethodPost)
	r.HandleFunc("/push", s.handlePush).Methods(http.MethodPost)
	r.HandleFunc("/sync", s.handleSync).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	// Test hooks.
	r.HandleFunc("/shutdown", s.handleShutdown).Methods(http.MethodPost)
	r.HandleFunc("/dump-database", s.handleDumpDatabase).Methods(http.MethodGet)
	r.HandleFunc("/reset-database", s.handleResetDatabase).Methods(http.MethodPost)
	return r
}

func (s *server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, cluster.TradeBuy)
}

func (s *server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, cluster.TradeSell)
}

func (s *server) handleTrade(w http.ResponseWriter, r *http.Request, tradeType string) {
	var req cluster.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusInternalServerError, cluster.NewError(http.StatusInternalServerError, "could not trade stock"))
		return
	}

	id, err := s.replica.Trade(r.Context(), tradeType, req.Name, req.Quantity)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, cluster.TransactionReceipt{TransactionNumber: id})
	case errors.Is(err, catalog.ErrNotFound):
		// Catalog errors propagate verbatim to the front-end.
		writeJSON(w, http.StatusNotFound, cluster.NewError(http.StatusNotFound, "stock not found"))
	default:
		s.log.Warn().Err(err).Str("stock", req.Name).Str("type", tradeType).Msg("trade failed")
		writeJSON(w, http.StatusInternalServerError, cluster.NewError(http.StatusInternalServerError, "could not trade stock"))
	}
}

func (s *server) handleLookupOrder(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	notFound := cluster.NewError(http.StatusNotFound, fmt.Sprintf("could not find order with number %s", raw))

	id, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	entry, err := s.replica.Ledger().Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handlePing promotes this replica: the front-end probes in descending
// id order, so a ping means we won the election.
func (s *server) handlePing(w http.ResponseWriter, _ *http.Request) {
	s.replica.BecomeLeader()
	writeJSON(w, http.StatusOK, cluster.SuccessResponse{Success: cluster.SuccessBody{
		Code:     http.StatusOK,
		ServerID: s.replica.ID,
		Message:  "pong",
	}})
}

func (s *server) handleLeaderBroadcast(w http.ResponseWriter, r *http.Request) {
	var req cluster.LeaderBroadcast
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, cluster.NewError(http.StatusBadRequest, "bad leader broadcast"))
		return
	}
	s.replica.SetLeader(req.LeaderID)
	writeJSON(w, http.StatusOK, cluster.NewSuccess(http.StatusOK, "acknowledge new leader"))
}

func (s *server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req cluster.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, cluster.NewError(http.StatusBadRequest, "bad push"))
		return
	}
	if err := s.replica.ApplyPush(req.NextID, req.Entry); err != nil {
		writeJSON(w, http.StatusInternalServerError, cluster.NewError(http.StatusInternalServerError, "failed to push entry"))
		return
	}
	writeJSON(w, http.StatusOK, cluster.NewSuccess(http.StatusOK, "pushed entry to database"))
}

func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	// The sync cursor arrives as a JSON body on a GET.
	var req cluster.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, cluster.NewError(http.StatusBadRequest, "bad sync request"))
		return
	}
	writeJSON(w, http.StatusOK, s.replica.SyncSnapshot(req.LastID))
}

func (s *server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Shutting down server..."))
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *server) handleDumpDatabase(w http.ResponseWriter, _ *http.Request) {
	nextID, entries := s.replica.Ledger().Dump()
	writeJSON(w, http.StatusOK, struct {
		NextID int                        `json:"nextID"`
		Ledger map[int]cluster.OrderEntry `json:"ledger"`
	}{NextID: nextID, Ledger: entries})
}

func (s *server) handleResetDatabase(w http.ResponseWriter, _ *http.Request) {
	if err := s.replica.Ledger().Reset(); err != nil {
		writeJSON(w, http.StatusInternalServerError, cluster.NewError(http.StatusInternalServerError, "failed to reset database"))
		return
	}
	s.handleDumpDatabase(w, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
