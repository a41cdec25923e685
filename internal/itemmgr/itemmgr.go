// Package itemmgr implements the Item Manager (component H of spec.md
// §4.4): a façade over the session state manager, item cache, hierarchy
// manager, node-type registry and access manager, exposing exists/get/list
// operations and wiring the four state-lifecycle callbacks into cache
// updates.
package itemmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coreforge/contentrepo/internal/access"
	"github.com/coreforge/contentrepo/internal/cache"
	"github.com/coreforge/contentrepo/internal/hierarchy"
	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
	"github.com/coreforge/contentrepo/internal/nodetype"
	"github.com/coreforge/contentrepo/internal/repoerr"
)

// StateSource is the narrow session surface the Item Manager reads through;
// satisfied by *session.Session.
type StateSource interface {
	Get(ctx context.Context, id ident.ItemId, includeAttic bool) (itemstate.State, error)
}

// Manager is the Item Manager façade.
type Manager struct {
	states   StateSource
	cache    *cache.Cache
	hier     *hierarchy.Manager
	registry nodetype.Registry
	acl      access.Manager
	log      *slog.Logger
}

// New creates a Manager. acl defaults to access.AllowAll{} if nil.
func New(states StateSource, c *cache.Cache, hier *hierarchy.Manager, registry nodetype.Registry, acl access.Manager, log *slog.Logger) *Manager {
	if acl == nil {
		acl = access.AllowAll{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{states: states, cache: c, hier: hier, registry: registry, acl: acl, log: log}
}

// Exists reports whether id resolves to an existing state the caller can
// read. Never returns an error: lookup or authorization failure both yield
// false, per spec.md §4.4.
func (m *Manager) Exists(ctx context.Context, id ident.ItemId) bool {
	_, err := m.GetByID(ctx, id)
	return err == nil
}

// ExistsPath is Exists resolved through path.
func (m *Manager) ExistsPath(ctx context.Context, path ident.Path) bool {
	_, err := m.GetByPath(ctx, path)
	return err == nil
}

func (m *Manager) fetch(ctx context.Context, id ident.ItemId) (*cache.Data, error) {
	if d, ok := m.cache.Lookup(id); ok {
		if !m.acl.CanReadID(id) {
			m.cache.Evict(id)
			return nil, repoerr.AccessDenied("itemmgr.get", fmt.Errorf("read denied for %s", id))
		}
		return d, nil
	}

	st, err := m.states.Get(ctx, id, false)
	if err != nil {
		return nil, repoerr.NotFound("itemmgr.get", err)
	}
	if !m.acl.CanReadID(id) {
		return nil, repoerr.AccessDenied("itemmgr.get", fmt.Errorf("read denied for %s", id))
	}

	d := &cache.Data{ID: id, ParentID: st.ParentID(), Status: itemstate.ItemDataNormal, State: st}
	m.cache.Put(d)
	return d, nil
}

// GetByID returns the item view for id. AccessDenied when id was supplied
// directly and is denied; NotFound when it does not resolve.
func (m *Manager) GetByID(ctx context.Context, id ident.ItemId) (*cache.Data, error) {
	return m.fetch(ctx, id)
}

// GetByPath resolves path and returns its item view. Per spec.md §7's
// disclosure policy, an access-denied result collapses to NotFound since the
// request was path-based.
func (m *Manager) GetByPath(ctx context.Context, path ident.Path) (*cache.Data, error) {
	id, err := m.hier.ResolvePath(ctx, path)
	if err != nil {
		return nil, repoerr.NotFound("itemmgr.get", err)
	}
	d, err := m.fetch(ctx, id)
	if err != nil {
		if repoerr.Is(err, repoerr.KindAccessDenied) {
			return nil, repoerr.NotFound("itemmgr.get", errors.New("access denied on path-resolved item"))
		}
		return nil, err
	}
	return d, nil
}

// GetNodeForParent is the shareable-aware fetch: if parentID is not among
// the found node's recorded parents, raises NotFound even though the node
// itself exists under a different parent.
func (m *Manager) GetNodeForParent(ctx context.Context, id ident.NodeId, parentID ident.NodeId) (*cache.Data, error) {
	if d, ok := m.cache.LookupByParent(id, parentID); ok {
		if !m.acl.CanReadID(ident.NodeItemId(id)) {
			m.cache.EvictExact(d)
			return nil, repoerr.AccessDenied("itemmgr.getNodeForParent", fmt.Errorf("read denied for %s", id))
		}
		return d, nil
	}

	itemID := ident.NodeItemId(id)
	d, err := m.fetch(ctx, itemID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, p := range d.State.Node.AllParents() {
		if p.Equal(parentID) {
			found = true
			break
		}
	}
	if !found {
		return nil, repoerr.NotFound("itemmgr.getNodeForParent", fmt.Errorf("%s is not reachable under parent %s", id, parentID))
	}
	return d, nil
}

// HasChildren reports whether id (a node) has at least one child-node
// entry, without materializing any of them.
func (m *Manager) HasChildren(ctx context.Context, id ident.NodeId) (bool, error) {
	d, err := m.fetch(ctx, ident.NodeItemId(id))
	if err != nil {
		return false, err
	}
	return len(d.State.Node.Children) > 0, nil
}

// HasProperties reports whether id (a node) has at least one named
// property.
func (m *Manager) HasProperties(ctx context.Context, id ident.NodeId) (bool, error) {
	d, err := m.fetch(ctx, ident.NodeItemId(id))
	if err != nil {
		return false, err
	}
	return len(d.State.Node.PropNames) > 0, nil
}

// ChildrenOf returns a lazy, restartable iterator over id's children. Access
// checks happen at materialization (Next), per spec.md §4.4: an unreadable
// child is silently skipped rather than surfaced as an error, matching the
// source's "lazily drop unreadable items" iterator pattern documented in
// spec.md §9.
func (m *Manager) ChildrenOf(ctx context.Context, id ident.NodeId) (*NodeIterator, error) {
	d, err := m.fetch(ctx, ident.NodeItemId(id))
	if err != nil {
		return nil, err
	}
	entries := append([]itemstate.ChildEntry(nil), d.State.Node.Children...)
	return &NodeIterator{ctx: ctx, mgr: m, entries: entries}, nil
}

// PropertiesOf returns a lazy, restartable iterator over id's properties.
func (m *Manager) PropertiesOf(ctx context.Context, id ident.NodeId) (*PropertyIterator, error) {
	d, err := m.fetch(ctx, ident.NodeItemId(id))
	if err != nil {
		return nil, err
	}
	names := make([]ident.QualifiedName, 0, len(d.State.Node.PropNames))
	for n := range d.State.Node.PropNames {
		names = append(names, n)
	}
	return &PropertyIterator{ctx: ctx, mgr: m, parent: id, names: names}, nil
}

// NodeIterator lazily materializes and access-filters child-node entries.
type NodeIterator struct {
	ctx     context.Context
	mgr     *Manager
	entries []itemstate.ChildEntry
	pos     int
}

// Next returns the next readable child, skipping unreadable or vanished
// ones. ok is false once the sequence is exhausted.
func (it *NodeIterator) Next() (data *cache.Data, ok bool) {
	for it.pos < len(it.entries) {
		e := it.entries[it.pos]
		it.pos++
		d, err := it.mgr.fetch(it.ctx, ident.NodeItemId(e.ID))
		if err != nil {
			continue
		}
		return d, true
	}
	return nil, false
}

// Reset restarts the iterator from its first entry (it is restartable, per
// spec.md §9).
func (it *NodeIterator) Reset() { it.pos = 0 }

// PropertyIterator lazily materializes and access-filters properties.
type PropertyIterator struct {
	ctx    context.Context
	mgr    *Manager
	parent ident.NodeId
	names  []ident.QualifiedName
	pos    int
}

func (it *PropertyIterator) Next() (data *cache.Data, ok bool) {
	for it.pos < len(it.names) {
		name := it.names[it.pos]
		it.pos++
		propID := ident.PropertyId{Parent: it.parent, Name: name}
		d, err := it.mgr.fetch(it.ctx, ident.PropertyItemId(propID))
		if err != nil {
			continue
		}
		return d, true
	}
	return nil, false
}

func (it *PropertyIterator) Reset() { it.pos = 0 }
