package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dreamware/bazaar/internal/cluster"
	"github.com/dreamware/bazaar/internal/frontend"
)

// server is the stateless gateway: it routes lookups through the cache,
// forwards trades to the current order leader, and runs leader election
// when the leader stops answering.
type server struct {
	catalogURL string
	cache      *frontend.Cache
	elector    *frontend.Elector
	useCache   bool
	client     *http.Client
	log        zerolog.Logger
}

func newServer(catalogURL string, cache *frontend.Cache, elector *frontend.Elector, useCache bool, log zerolog.Logger) *server {
	return &server{
		catalogURL: catalogURL,
		cache:      cache,
		elector:    elector,
		useCache:   useCache,
		client:     &http.Client{Timeout: 5 * time.Second},
		log:        log,
	}
}

// routes registers every gateway endpoint on r and returns it.
func (s *server) routes(r *mux.Router) *mux.Router {
	r.HandleFunc("/stocks/{name}", s.handleStockLookup).Methods(http.MethodGet)
	r.HandleFunc("/orders", s.handleOrder).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id}", s.handleOrderLookup).Methods(http.MethodGet)
	r.HandleFunc("/invalidate/{name}", s.handleInvalidate).Methods(http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	// Diagnostics used by the test harness.
	r.HandleFunc("/leader", s.handleLeader).Methods(http.MethodGet)
	r.HandleFunc("/dump-cache", s.handleDumpCache).Methods(http.MethodGet)
	return r
}

// dataResponse is the {"data": ...} envelope on client-facing replies.
type dataResponse struct {
	Data any `json:"data"`
}

func (s *server) handleStockLookup(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if s.useCache {
		if inst, ok := s.cache.Fetch(name); ok {
			writeJSON(w, http.StatusOK, dataResponse{Data: inst})
			return
		}
	}

	// Cache miss: the catalog is the source of truth.
	url := fmt.Sprintf("%s/lookup/%s", s.catalogURL, name)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, cluster.NewError(http.StatusInternalServerError, "stock lookup failed"))
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("stock", name).Msg("catalog unreachable")
		writeJSON(w, http.StatusInternalServerError, cluster.NewError(http.StatusInternalServerError, "stock lookup failed"))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		writeJSON(w, http.StatusNotFound, cluster.NewError(http.StatusNotFound, "stock not found"))
		return
	}
	if resp.StatusCode != http.StatusOK {
		writeJSON(w, http.StatusInternalServerError, cluster.NewError(http.StatusInternalServerError, "stock lookup failed"))
		return
	}

	var inst cluster.Instrument
	if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil {
		writeJSON(w, http.StatusInternalServerError, cluster.NewError(http.StatusInternalServerError, "stock lookup failed"))
		return
	}
	if s.useCache {
		s.cache.Insert(inst)
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: inst})
}

func (s *server) handleOrder(w http.ResponseWriter, r *http.Request) {
	tradeErr := cluster.NewError(http.StatusInternalServerError, "could not trade stock")

	var req cluster.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusInternalServerError, tradeErr)
		return
	}
	if req.Type != cluster.TradeBuy && req.Type != cluster.TradeSell {
		writeJSON(w, http.StatusInternalServerError, tradeErr)
		return
	}

	orderID := uuid.NewString()
	log := s.log.With().Str("order", orderID).Str("stock", req.Name).Str("type", req.Type).Logger()

	body := cluster.TradeRequest{Name: req.Name, Quantity: req.Quantity}
	status, payload, err := s.sendOrderRequest(r.Context(), http.MethodPost, "/"+req.Type, body)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("order failed: no leader")
		writeJSON(w, http.StatusInternalServerError, tradeErr)
	case status == http.StatusNotFound:
		writeJSON(w, http.StatusNotFound, cluster.NewError(http.StatusNotFound,
			"requested stock could not be traded because it could not be found"))
	case status >= http.StatusBadRequest:
		log.Warn().Int("status", status).Msg("order rejected by leader")
		writeJSON(w, http.StatusInternalServerError, tradeErr)
	default:
		var receipt cluster.TransactionReceipt
		if err := json.Unmarshal(payload, &receipt); err != nil {
			writeJSON(w, http.StatusInternalServerError, tradeErr)
			return
		}
		log.Info().Int("transaction", receipt.TransactionNumber).Msg("order committed")
		writeJSON(w, http.StatusOK, dataResponse{Data: receipt})
	}
}

func (s *server) handleOrderLookup(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	notFound := cluster.NewError(http.StatusNotFound, fmt.Sprintf("could not find order with number %s", raw))
	upstream := cluster.NewError(http.StatusInternalServerError,
		fmt.Sprintf("error occurred while retrieving order with number %s", raw))

	id, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}

	status, payload, err := s.sendOrderRequest(r.Context(), http.MethodGet, "/lookup-order/"+raw, nil)
	switch {
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, upstream)
	case status == http.StatusNotFound:
		writeJSON(w, http.StatusNotFound, notFound)
	case status >= http.StatusBadRequest:
		writeJSON(w, http.StatusInternalServerError, upstream)
	default:
		var entry cluster.OrderEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			writeJSON(w, http.StatusInternalServerError, upstream)
			return
		}
		writeJSON(w, http.StatusOK, dataResponse{Data: cluster.OrderRecord{
			Number:   id,
			Name:     entry.Name,
			Quantity: entry.Quantity,
			Type:     entry.Type,
		}})
	}
}

func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.cache.Invalidate(name) {
		s.log.Debug().Str("stock", name).Msg("invalidated cache entry")
		writeJSON(w, http.StatusOK, cluster.NewSuccess(http.StatusOK, "successfully removed stock"))
		return
	}
	writeJSON(w, http.StatusInternalServerError, cluster.NewError(http.StatusInternalServerError, "failed to remove stock"))
}

func (s *server) handleLeader(w http.ResponseWriter, _ *http.Request) {
	leader, ok := s.elector.Leader()
	if !ok {
		writeJSON(w, http.StatusInternalServerError, cluster.NewError(http.StatusInternalServerError, "no leader elected"))
		return
	}
	writeJSON(w, http.StatusOK, cluster.LeaderAddr{Host: leader.Addr.Host, Port: leader.Addr.Port})
}

func (s *server) handleDumpCache(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Snapshot())
}

// sendOrderRequest forwards a request to the current leader, electing a
// new one on transport failure. HTTP-level errors from a reachable
// leader are domain errors and are returned to the caller untouched;
// only a dead leader triggers failover. The loop ends on success, on a
// domain error, or when an election exhausts its probe budget
// (ErrNoLeader).
func (s *server) sendOrderRequest(ctx context.Context, method, path string, body any) (int, []byte, error) {
	for {
		leader, ok := s.elector.Leader()
		if !ok {
			if _, err := s.elector.Elect(ctx); err != nil {
				return 0, nil, err
			}
			continue
		}

		status, payload, err := s.forward(ctx, method, leader.URL()+path, body)
		if err == nil {
			return status, payload, nil
		}

		s.log.Warn().Err(err).Int("leader", leader.ID).Msg("leader unreachable, running election")
		if _, err := s.elector.Elect(ctx); err != nil {
			return 0, nil, errors.Wrap(err, "failover")
		}
	}
}

// forward issues one request and reads the whole response. A non-nil
// error means the transport failed; any HTTP status is a success here.
func (s *server) forward(ctx context.Context, method, url string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, payload, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
