package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as bare JSON numbers ({"price": 15.99}), not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Trade types accepted by the catalog and the order tier.
const (
	TradeBuy  = "buy"
	TradeSell = "sell"
)

// ReplicaIDs lists the static order replica membership.
var ReplicaIDs = []int{1, 2, 3}

// Instrument is a snapshot of one tradable stock as held by the catalog.
type Instrument struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// OrderEntry is a single committed transaction in a replica's ledger.
type OrderEntry struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Type     string `json:"type"`
}

// OrderRequest is the client-facing trade payload on the front-end.
type OrderRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Type     string `json:"type"`
}

// TradeRequest is the payload the front-end forwards to the leader's
// /buy and /sell endpoints.
type TradeRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// UpdateRequest mutates an instrument at the catalog.
type UpdateRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Type     string `json:"type"`
}

// PushRequest replicates one committed ledger entry to a follower.
// NextID carries the id the entry was committed under on the leader.
type PushRequest struct {
	NextID int        `json:"nextID"`
	Entry  OrderEntry `json:"entry"`
}

// SyncRequest asks a peer for every entry at or after LastID.
type SyncRequest struct {
	LastID int `json:"lastID"`
}

// SyncResponse carries the peer's leader view and the requested entries,
// keyed by transaction id. The map is empty (never an error) when the
// caller is already caught up.
type SyncResponse struct {
	LeaderID     int                `json:"leader-id"`
	Transactions map[int]OrderEntry `json:"transactions"`
}

// LeaderBroadcast announces an elected leader to the other replicas.
type LeaderBroadcast struct {
	LeaderID int `json:"leader-id"`
}

// TransactionReceipt is the leader's reply to a successful trade.
type TransactionReceipt struct {
	TransactionNumber int `json:"transaction-number"`
}

// OrderRecord is the front-end's view of one historical order.
type OrderRecord struct {
	Number   int    `json:"number"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Type     string `json:"type"`
}

// LeaderAddr reports the currently elected leader's location.
type LeaderAddr struct {
	Host string `json:"leader-host"`
	Port int    `json:"leader-port"`
}

// ErrorBody is the error envelope shared by all three services.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an ErrorBody the way the wire protocol expects.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// SuccessBody is the success envelope; ServerID is only present on pong
// replies.
type SuccessBody struct {
	Code     int    `json:"code"`
	ServerID int    `json:"server-id,omitempty"`
	Message  string `json:"message"`
}

// SuccessResponse wraps a SuccessBody the way the wire protocol expects.
type SuccessResponse struct {
	Success SuccessBody `json:"success"`
}

// NewError builds the {"error": {code, message}} envelope.
func NewError(code int, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Code: code, Message: message}}
}

// NewSuccess builds the {"success": {code, message}} envelope.
func NewSuccess(code int, message string) SuccessResponse {
	return SuccessResponse{Success: SuccessBody{Code: code, Message: message}}
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON posts body as JSON to url and decodes the response into out
// (skipped when out is nil). Any status >= 300 is an error.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON issues a GET to url and decodes the response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSONWithBody issues a GET carrying a JSON body. The sync protocol
// sends its cursor this way, so both sides have to speak it.
func GetJSONWithBody(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
