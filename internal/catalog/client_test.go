package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/bazaar/internal/cluster"
)

func TestClientLookup(t *testing.T) {
	t.Run("ok decodes the instrument", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/lookup/FishCo", r.URL.Path)
			_, _ = w.Write([]byte(`{"name":"FishCo","price":25.50,"quantity":1000}`))
		}))
		defer srv.Close()

		inst, err := NewClient(srv.URL).Lookup(context.Background(), "FishCo")
		require.NoError(t, err)
		assert.Equal(t, "FishCo", inst.Name)
		assert.Equal(t, 1000, inst.Quantity)
		assert.Equal(t, "25.5", inst.Price.String())
	})

	t.Run("404 maps to not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(cluster.NewError(http.StatusNotFound, "stock not found"))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).Lookup(context.Background(), "Pear")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unreachable server is a transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		_, err := NewClient(srv.URL).Lookup(context.Background(), "FishCo")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestClientUpdate(t *testing.T) {
	t.Run("ok posts the trade", func(t *testing.T) {
		var got cluster.UpdateRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/update", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_ = json.NewEncoder(w).Encode(cluster.NewSuccess(http.StatusOK, "updated stock successfully"))
		}))
		defer srv.Close()

		err := NewClient(srv.URL).Update(context.Background(), "FishCo", 10, cluster.TradeBuy)
		require.NoError(t, err)
		assert.Equal(t, cluster.UpdateRequest{Name: "FishCo", Quantity: 10, Type: cluster.TradeBuy}, got)
	})

	t.Run("500 maps to rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(cluster.NewError(http.StatusInternalServerError, "failed to update stock"))
		}))
		defer srv.Close()

		err := NewClient(srv.URL).Update(context.Background(), "FishCo", 10000, cluster.TradeBuy)
		require.ErrorIs(t, err, ErrRejected)
	})

	t.Run("404 maps to not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		err := NewClient(srv.URL).Update(context.Background(), "Pear", 1, cluster.TradeSell)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestNotifier(t *testing.T) {
	t.Run("posts the invalidation path", func(t *testing.T) {
		var mu sync.Mutex
		var paths []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			paths = append(paths, r.Method+" "+r.URL.Path)
			mu.Unlock()
		}))
		defer srv.Close()

		n := NewNotifier(srv.URL, true, cluster.NewLogger("test", "disabled"))
		n.Invalidate("FishCo")

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"POST /invalidate/FishCo"}, paths)
	})

	t.Run("disabled notifier never calls out", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("disabled notifier must not send requests")
		}))
		defer srv.Close()

		n := NewNotifier(srv.URL, false, cluster.NewLogger("test", "disabled"))
		n.Invalidate("FishCo")
	})

	t.Run("unreachable front-end is swallowed", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		n := NewNotifier(srv.URL, true, cluster.NewLogger("test", "disabled"))
		n.Invalidate("FishCo") // must not panic or block
	})
}
