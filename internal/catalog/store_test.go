package catalog

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/bazaar/internal/cluster"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.json"), cluster.NewLogger("test", "disabled"))
	require.NoError(t, err)
	return s
}

// TestStoreSeed verifies a fresh store boots with the default table
func TestStoreSeed(t *testing.T) {
	s := testStore(t)

	inst, err := s.Lookup("GameStart")
	require.NoError(t, err)
	assert.Equal(t, 100, inst.Quantity)
	assert.True(t, inst.Price.Equal(decimal.RequireFromString("15.99")))

	assert.Len(t, s.Snapshot(), 10)
}

func TestStoreLookupMiss(t *testing.T) {
	s := testStore(t)

	_, err := s.Lookup("Pear")
	require.ErrorIs(t, err, ErrNotFound)
}

// TestStoreUpdate covers sell and buy arithmetic and the rejection cases
func TestStoreUpdate(t *testing.T) {
	t.Run("sell adds shares", func(t *testing.T) {
		s := testStore(t)

		inst, err := s.Update("FishCo", 50, cluster.TradeSell)
		require.NoError(t, err)
		assert.Equal(t, 1050, inst.Quantity)
	})

	t.Run("buy removes shares", func(t *testing.T) {
		s := testStore(t)

		inst, err := s.Update("FishCo", 50, cluster.TradeBuy)
		require.NoError(t, err)
		assert.Equal(t, 950, inst.Quantity)
	})

	t.Run("oversell of buys is rejected", func(t *testing.T) {
		s := testStore(t)

		_, err := s.Update("GameStart", 101, cluster.TradeBuy)
		require.ErrorIs(t, err, ErrRejected)

		inst, err := s.Lookup("GameStart")
		require.NoError(t, err)
		assert.Equal(t, 100, inst.Quantity, "a rejected buy must not change inventory")
	})

	t.Run("buying exactly the remaining shares succeeds", func(t *testing.T) {
		s := testStore(t)

		inst, err := s.Update("GameStart", 100, cluster.TradeBuy)
		require.NoError(t, err)
		assert.Equal(t, 0, inst.Quantity)

		_, err = s.Update("GameStart", 1, cluster.TradeBuy)
		require.ErrorIs(t, err, ErrRejected)
	})

	t.Run("non-positive quantity is rejected", func(t *testing.T) {
		s := testStore(t)

		_, err := s.Update("FishCo", 0, cluster.TradeSell)
		require.ErrorIs(t, err, ErrRejected)
		_, err = s.Update("FishCo", -5, cluster.TradeBuy)
		require.ErrorIs(t, err, ErrRejected)
	})

	t.Run("unknown stock is rejected", func(t *testing.T) {
		s := testStore(t)

		_, err := s.Update("Pear", 1, cluster.TradeBuy)
		require.ErrorIs(t, err, ErrRejected)
	})

	t.Run("unknown trade type is rejected", func(t *testing.T) {
		s := testStore(t)

		_, err := s.Update("FishCo", 1, "short")
		require.ErrorIs(t, err, ErrRejected)
	})
}

// TestStoreReload verifies updates survive a restart
func TestStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	log := cluster.NewLogger("test", "disabled")

	s, err := Open(path, log)
	require.NoError(t, err)
	_, err = s.Update("FishCo", 200, cluster.TradeBuy)
	require.NoError(t, err)

	reopened, err := Open(path, log)
	require.NoError(t, err)

	inst, err := reopened.Lookup("FishCo")
	require.NoError(t, err)
	assert.Equal(t, 800, inst.Quantity)
	assert.True(t, inst.Price.Equal(decimal.RequireFromString("25.50")))
}

// TestStoreConcurrentBuys hammers one instrument and checks inventory
// never goes negative and every accepted buy is accounted for.
func TestStoreConcurrentBuys(t *testing.T) {
	s := testStore(t)

	const workers = 8
	const buysEach = 20 // 8*20*1 > 100, so some must be rejected

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < buysEach; j++ {
				if _, err := s.Update("GameStart", 1, cluster.TradeBuy); err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	inst, err := s.Lookup("GameStart")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, inst.Quantity, 0)
	assert.Equal(t, 100-accepted, inst.Quantity)
}
