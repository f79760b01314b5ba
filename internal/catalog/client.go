package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/dreamware/bazaar/internal/cluster"
)

// Client is the order tier's view of the catalog. It maps the catalog's
// HTTP statuses back onto the package's error kinds so callers never
// inspect status codes themselves.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a catalog client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Lookup fetches the committed snapshot for name. A 404 comes back as
// ErrNotFound so the replica can propagate it verbatim.
func (c *Client) Lookup(ctx context.Context, name string) (cluster.Instrument, error) {
	url := fmt.Sprintf("%s/lookup/%s", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return cluster.Instrument{}, errors.Wrap(err, "build catalog lookup")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return cluster.Instrument{}, errors.Wrap(err, "catalog lookup")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var inst cluster.Instrument
		if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil {
			return cluster.Instrument{}, errors.Wrap(err, "decode catalog lookup")
		}
		return inst, nil
	case resp.StatusCode == http.StatusNotFound:
		return cluster.Instrument{}, ErrNotFound
	default:
		return cluster.Instrument{}, errors.Errorf("catalog lookup: unexpected status %d", resp.StatusCode)
	}
}

// Update applies a trade at the catalog. A 500 means the catalog refused
// the mutation (unknown stock, bad type, or insufficient shares) and is
// reported as ErrRejected.
func (c *Client) Update(ctx context.Context, name string, quantity int, tradeType string) error {
	body := cluster.UpdateRequest{Name: name, Quantity: quantity, Type: tradeType}
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal catalog update")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/update", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build catalog update")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "catalog update")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusInternalServerError:
		return ErrRejected
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		return errors.Errorf("catalog update: unexpected status %d", resp.StatusCode)
	}
}
