package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dreamware/bazaar/internal/cluster"
)

// ErrNotFound is returned when an instrument is not in the catalog.
var ErrNotFound = errors.New("stock not found")

// ErrRejected is returned when an update cannot be applied: unknown trade
// type, non-positive quantity, or a buy that would drive inventory
// negative.
var ErrRejected = errors.New("failed to update stock")

// Store is the authoritative instrument table. A single mutex covers the
// whole table so that every lookup observes a committed state and every
// update is atomic with its durable write.
type Store struct {
	mu          sync.Mutex
	instruments map[string]cluster.Instrument
	path        string
	log         zerolog.Logger
}

// Open loads the instrument table from the snapshot file at path, seeding
// and persisting the default table when the file does not exist yet.
func Open(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		instruments: make(map[string]cluster.Instrument),
		path:        path,
		log:         log,
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.instruments); err != nil {
			return nil, errors.Wrapf(err, "parse catalog snapshot %s", path)
		}
		log.Info().Int("instruments", len(s.instruments)).Msg("loaded catalog snapshot")
	case os.IsNotExist(err):
		s.instruments = defaultSeed()
		if err := s.save(); err != nil {
			return nil, err
		}
		log.Info().Int("instruments", len(s.instruments)).Msg("seeded new catalog")
	default:
		return nil, errors.Wrapf(err, "read catalog snapshot %s", path)
	}
	return s, nil
}

// Lookup returns the committed snapshot for name, or ErrNotFound.
func (s *Store) Lookup(name string) (cluster.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instruments[name]
	if !ok {
		return cluster.Instrument{}, ErrNotFound
	}
	return inst, nil
}

// Update applies a trade to the named instrument: sells add shares, buys
// remove them. The non-negative inventory gate lives here, under the
// table lock, so concurrent buys cannot race past each other. The new
// state is flushed to disk before the mutation becomes visible; a failed
// flush leaves the table unchanged.
func (s *Store) Update(name string, quantity int, tradeType string) (cluster.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instruments[name]
	if !ok {
		return cluster.Instrument{}, ErrRejected
	}
	if quantity <= 0 {
		return cluster.Instrument{}, ErrRejected
	}

	switch tradeType {
	case cluster.TradeSell:
		inst.Quantity += quantity
	case cluster.TradeBuy:
		if inst.Quantity < quantity {
			return cluster.Instrument{}, ErrRejected
		}
		inst.Quantity -= quantity
	default:
		return cluster.Instrument{}, ErrRejected
	}

	prev := s.instruments[name]
	s.instruments[name] = inst
	if err := s.save(); err != nil {
		s.instruments[name] = prev
		return cluster.Instrument{}, err
	}
	return inst, nil
}

// Snapshot returns a copy of the full table, for diagnostics and tests.
func (s *Store) Snapshot() map[string]cluster.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]cluster.Instrument, len(s.instruments))
	for name, inst := range s.instruments {
		out[name] = inst
	}
	return out
}

// save rewrites the on-disk snapshot atomically: write a temp file in the
// same directory, then rename over the old snapshot. Callers hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.instruments, "", "    ")
	if err != nil {
		return errors.Wrap(err, "marshal catalog snapshot")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".catalog-*")
	if err != nil {
		return errors.Wrap(err, "create catalog temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "write catalog snapshot")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "close catalog snapshot")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "replace catalog snapshot")
	}
	return nil
}

func defaultSeed() map[string]cluster.Instrument {
	seed := []cluster.Instrument{
		{Name: "GameStart", Price: decimal.RequireFromString("15.99"), Quantity: 100},
		{Name: "FishCo", Price: decimal.RequireFromString("25.50"), Quantity: 1000},
		{Name: "CrassusRealty", Price: decimal.RequireFromString("99.99"), Quantity: 500},
		{Name: "MenhirCo", Price: decimal.RequireFromString("49.99"), Quantity: 250},
		{Name: "BoarCo", Price: decimal.RequireFromString("10.00"), Quantity: 750},
		{Name: "AugustusPizza", Price: decimal.RequireFromString("18.75"), Quantity: 300},
		{Name: "DivineComics", Price: decimal.RequireFromString("7.25"), Quantity: 600},
		{Name: "LegionLogistics", Price: decimal.RequireFromString("32.40"), Quantity: 400},
		{Name: "TiberAqueducts", Price: decimal.RequireFromString("54.10"), Quantity: 200},
		{Name: "MercuryExpress", Price: decimal.RequireFromString("21.30"), Quantity: 350},
	}
	out := make(map[string]cluster.Instrument, len(seed))
	for _, inst := range seed {
		out[inst.Name] = inst
	}
	return out
}
