package frontend

import (
	"container/list"
	"sync"

	"github.com/dreamware/bazaar/internal/cluster"
)

// Cache is the front-end's bounded LRU of instrument snapshots, keyed by
// stock name. The least recently used entry sits at the front of the
// list, the most recently used at the back, and that order is observable
// through Snapshot (the /dump-cache contract).
//
// The catalog invalidates entries by name after every successful update,
// so a cached snapshot is never stale for longer than one notification
// round-trip; a miss always consults the catalog.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List               // front = LRU, back = MRU
	index    map[string]*list.Element // name -> element holding an Instrument
}

// NewCache builds an empty cache holding at most capacity entries.
func NewCache(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Fetch returns the cached snapshot for name and promotes it to MRU.
// The second return is false on a miss.
func (c *Cache) Fetch(name string) (cluster.Instrument, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[name]
	if !ok {
		return cluster.Instrument{}, false
	}
	c.order.MoveToBack(elem)
	return elem.Value.(cluster.Instrument), true
}

// Insert adds a snapshot at the MRU end, evicting the LRU entry when the
// cache is full. Inserting a name already present replaces its snapshot
// and promotes it.
func (c *Cache) Insert(inst cluster.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[inst.Name]; ok {
		elem.Value = inst
		c.order.MoveToBack(elem)
		return
	}
	if c.order.Len() >= c.capacity {
		lru := c.order.Front()
		if lru != nil {
			c.order.Remove(lru)
			delete(c.index, lru.Value.(cluster.Instrument).Name)
		}
	}
	c.index[inst.Name] = c.order.PushBack(inst)
}

// Invalidate removes the entry for name, reporting whether a removal
// occurred.
func (c *Cache) Invalidate(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[name]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.index, name)
	return true
}

// Snapshot returns the cached snapshots in LRU to MRU order.
func (c *Cache) Snapshot() []cluster.Instrument {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]cluster.Instrument, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(cluster.Instrument))
	}
	return out
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
