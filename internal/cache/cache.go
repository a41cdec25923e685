// Package cache implements the per-session item cache and shareable-nodes
// index described in spec.md §4.3: a primary ItemId -> ItemData map plus a
// secondary NodeId -> Map<ParentId, ItemData> index so a shareable node can
// have one distinct cached view per parent it is reachable under.
//
// The spec documents the cache as weak-referenced; this implementation uses
// a plain map guarded by a coarse mutex (spec.md §5 calls fine-grained
// locking unnecessary since cache operations are short) instead of modeling
// Go's GC as a weak map. Entries stay until the caller (Item Manager) evicts
// them, which it does when a state is destroyed or discarded or when read
// access to a cached item is found revoked.
package cache

import (
	"sync"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
)

// Data is the in-cache value wrapping either a node or property state with
// its cached definition id and lifecycle status.
type Data struct {
	ID       ident.ItemId
	ParentID ident.NodeId // meaningful for nodes; zero for properties
	Shared   bool         // true if this entry lives in the shareable index
	Status   itemstate.ItemDataStatus
	State    itemstate.State
}

// Cache is the per-session item cache (component G).
type Cache struct {
	mu sync.Mutex

	primary map[string]*Data
	// shareable maps a node id to its per-parent cached views.
	shareable map[string]map[string]*Data
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		primary:   make(map[string]*Data),
		shareable: make(map[string]map[string]*Data),
	}
}

func key(id ident.ItemId) string { return id.String() }

// Lookup checks the primary map; if absent and id denotes a node, returns
// the first available entry from the shareable index for that id.
func (c *Cache) Lookup(id ident.ItemId) (*Data, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(id)
}

func (c *Cache) lookupLocked(id ident.ItemId) (*Data, bool) {
	if d, ok := c.primary[key(id)]; ok {
		return d, true
	}
	if id.IsProperty() {
		return nil, false
	}
	byParent, ok := c.shareable[key(id)]
	if !ok {
		return nil, false
	}
	for _, d := range byParent {
		return d, true // "first available"; map iteration order is arbitrary but any one view is valid
	}
	return nil, false
}

// LookupByParent returns the unique Data for the share view of id under
// parentID, or false if none exists.
func (c *Cache) LookupByParent(id ident.NodeId, parentID ident.NodeId) (*Data, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byParent, ok := c.shareable[id.String()]
	if !ok {
		return nil, false
	}
	d, ok := byParent[parentID.String()]
	return d, ok
}

// Put stores data. If it represents a shareable node (its underlying state
// has a non-empty shared-parent set), it is stored in the shareable index
// keyed by its primary parent id; otherwise it goes in the primary map.
func (c *Cache) Put(data *Data) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isShareableNode(data) {
		data.Shared = true
		byParent, ok := c.shareable[data.ID.String()]
		if !ok {
			byParent = make(map[string]*Data)
			c.shareable[data.ID.String()] = byParent
		}
		byParent[data.ParentID.String()] = data
		return
	}
	data.Shared = false
	c.primary[key(data.ID)] = data
}

func isShareableNode(data *Data) bool {
	if data.ID.IsProperty() || data.State.Node == nil {
		return false
	}
	return data.State.Node.IsShareable()
}

// Evict removes every cached entry for id from both maps.
func (c *Cache) Evict(id ident.ItemId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.primary, key(id))
	if !id.IsProperty() {
		delete(c.shareable, key(id))
	}
}

// EvictExact removes only the exact Data entry passed in: for a shareable
// entry, only the matching (id, parentId) view; for a non-shareable entry,
// only when the cached value is identity-equal to data.
func (c *Cache) EvictExact(data *Data) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data.Shared {
		byParent, ok := c.shareable[data.ID.String()]
		if !ok {
			return
		}
		pk := data.ParentID.String()
		if byParent[pk] == data {
			delete(byParent, pk)
		}
		if len(byParent) == 0 {
			delete(c.shareable, data.ID.String())
		}
		return
	}
	if c.primary[key(data.ID)] == data {
		delete(c.primary, key(data.ID))
	}
}

// Invalidate sets all matching cached items' status to INVALIDATED and
// removes them from the cache.
func (c *Cache) Invalidate(id ident.ItemId) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.primary[key(id)]; ok {
		d.Status = itemstate.ItemDataInvalidated
		delete(c.primary, key(id))
	}
	if !id.IsProperty() {
		if byParent, ok := c.shareable[key(id)]; ok {
			for _, d := range byParent {
				d.Status = itemstate.ItemDataInvalidated
			}
			delete(c.shareable, key(id))
		}
	}
}

// AllViews returns every cached Data entry for id: the single primary-map
// entry for a non-shareable item, or every per-parent share view for a
// shareable node. Used by the Item Manager's stateModified/stateDestroyed
// handlers, which must propagate a change to every share view of a node
// rather than just the one view that happened to be addressed (see
// DESIGN.md's decision on the §9 open question about re-caching share
// siblings).
func (c *Cache) AllViews(id ident.ItemId) []*Data {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.primary[key(id)]; ok {
		return []*Data{d}
	}
	if id.IsProperty() {
		return nil
	}
	byParent, ok := c.shareable[key(id)]
	if !ok {
		return nil
	}
	out := make([]*Data, 0, len(byParent))
	for _, d := range byParent {
		out = append(out, d)
	}
	return out
}

// Size returns the number of distinct cached entries, for diagnostics.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.primary)
	for _, byParent := range c.shareable {
		n += len(byParent)
	}
	return n
}
