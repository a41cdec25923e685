// Package hierarchy implements the Hierarchy Manager (component F of
// spec.md §4.2): path <-> id resolution, depth and ancestry queries, layered
// over whatever item-state source the caller wires in (normally a
// *session.Session, so path resolution reflects that session's transient
// overlay).
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
)

// ErrNotFound is returned by the resolve family when a path or id does not
// denote an existing item; callers map this to "return None" per spec.md
// §4.2's edge cases.
var ErrNotFound = errors.New("hierarchy: not found")

// StateSource is the narrow slice of session.Session this package depends
// on, kept as an interface so hierarchy can be unit-tested against a plain
// in-memory fake instead of a real session+store pair.
type StateSource interface {
	Get(ctx context.Context, id ident.ItemId, includeAttic bool) (itemstate.State, error)
}

// Manager resolves paths against a StateSource rooted at RootID.
type Manager struct {
	states StateSource
	rootID ident.NodeId
}

// New creates a Manager rooted at rootID (the id of the "/" node).
func New(states StateSource, rootID ident.NodeId) *Manager {
	return &Manager{states: states, rootID: rootID}
}

// Root returns the id of the "/" node this Manager is rooted at.
func (m *Manager) Root() ident.NodeId { return m.rootID }

func (m *Manager) nodeState(ctx context.Context, id ident.NodeId) (*itemstate.NodeState, error) {
	st, err := m.states.Get(ctx, ident.NodeItemId(id), false)
	if err != nil {
		return nil, err
	}
	return st.Node, nil
}

// ResolvePath resolves path to whichever item (node or property) exists
// there. A property can only be the last path element; every element before
// it must resolve to a node.
func (m *Manager) ResolvePath(ctx context.Context, path ident.Path) (ident.ItemId, error) {
	if path.IsRoot() {
		return ident.NodeItemId(m.rootID), nil
	}

	parentID := m.rootID
	elems := path.Elements()
	for i, elem := range elems {
		last := i == len(elems)-1

		node, err := m.nodeState(ctx, parentID)
		if err != nil {
			return ident.ItemId{}, wrapNotFound(err)
		}

		childID, ok := resolveChild(node, elem)
		if ok {
			if last {
				return ident.NodeItemId(childID), nil
			}
			parentID = childID
			continue
		}

		if last {
			propID := ident.PropertyId{Parent: parentID, Name: elem.Name}
			if _, err := m.states.Get(ctx, ident.PropertyItemId(propID), false); err != nil {
				return ident.ItemId{}, wrapNotFound(err)
			}
			return ident.PropertyItemId(propID), nil
		}
		return ident.ItemId{}, ErrNotFound
	}
	return ident.ItemId{}, ErrNotFound
}

// resolveChild finds elem among node's children, applying the requested
// same-name-sibling index. Returns false if no child entry matches, which
// also covers an index request inconsistent with the recorded entries.
func resolveChild(node *itemstate.NodeState, elem ident.PathElement) (ident.NodeId, bool) {
	matches := node.ChildrenNamed(elem.Name)
	wantIndex := elem.Index
	if wantIndex == 0 {
		wantIndex = 1
	}
	for _, c := range matches {
		idx := c.Index
		if idx == 0 {
			idx = 1
		}
		if idx == wantIndex {
			return c.ID, true
		}
	}
	return ident.NilNodeId, false
}

// ResolveNodePath resolves path and requires the result to be a node.
func (m *Manager) ResolveNodePath(ctx context.Context, path ident.Path) (ident.NodeId, error) {
	id, err := m.ResolvePath(ctx, path)
	if err != nil {
		return ident.NilNodeId, err
	}
	if id.IsProperty() {
		return ident.NilNodeId, fmt.Errorf("%w: %s denotes a property, not a node", ErrNotFound, path)
	}
	return id.NodeId(), nil
}

// ResolvePropertyPath resolves path and requires the result to be a
// property.
func (m *Manager) ResolvePropertyPath(ctx context.Context, path ident.Path) (ident.PropertyId, error) {
	id, err := m.ResolvePath(ctx, path)
	if err != nil {
		return ident.PropertyId{}, err
	}
	if !id.IsProperty() {
		return ident.PropertyId{}, fmt.Errorf("%w: %s denotes a node, not a property", ErrNotFound, path)
	}
	return id.PropertyId(), nil
}

// PathOf returns the primary-parent path to id. For a shareable node this is
// the path through its primary parent (spec.md §4.2's edge case), never
// through any id in SharedWith.
func (m *Manager) PathOf(ctx context.Context, id ident.NodeId) (ident.Path, error) {
	var segments []ident.PathElement
	cur := id
	for cur != m.rootID {
		node, err := m.nodeState(ctx, cur)
		if err != nil {
			return ident.Path{}, wrapNotFound(err)
		}
		if !node.HasParent {
			return ident.Path{}, fmt.Errorf("%w: %s has no recorded parent and is not the root", ErrNotFound, cur)
		}
		parent, err := m.nodeState(ctx, node.ParentID)
		if err != nil {
			return ident.Path{}, wrapNotFound(err)
		}
		name, idx, ok := findChildNameAndIndex(parent, cur)
		if !ok {
			return ident.Path{}, fmt.Errorf("%w: %s is not listed among its recorded parent's children", ErrNotFound, cur)
		}
		segments = append([]ident.PathElement{{Name: name, Index: idx}}, segments...)
		cur = node.ParentID
	}
	return ident.NewPath(segments...), nil
}

func findChildNameAndIndex(parent *itemstate.NodeState, childID ident.NodeId) (ident.QualifiedName, int, bool) {
	for _, c := range parent.Children {
		if c.ID.Equal(childID) {
			idx := c.Index
			if idx == 0 {
				idx = 1
			}
			return c.Name, idx, true
		}
	}
	return ident.QualifiedName{}, 0, false
}

// DepthOf returns the number of path elements from root to id (root is 0).
func (m *Manager) DepthOf(ctx context.Context, id ident.NodeId) (int, error) {
	p, err := m.PathOf(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.Depth(), nil
}

// IsAncestor reports whether a is a strict primary-path ancestor of d.
func (m *Manager) IsAncestor(ctx context.Context, a, d ident.NodeId) (bool, error) {
	if a.Equal(d) {
		return false, nil
	}
	cur := d
	for {
		node, err := m.nodeState(ctx, cur)
		if err != nil {
			return false, wrapNotFound(err)
		}
		if !node.HasParent {
			return false, nil
		}
		if node.ParentID.Equal(a) {
			return true, nil
		}
		cur = node.ParentID
	}
}

// IsShareAncestor reports whether a is an ancestor of d by any path,
// including through d's (or an intermediate node's) shared-parent set —
// the share-aware generalization of IsAncestor from spec.md §4.2.
func (m *Manager) IsShareAncestor(ctx context.Context, a, d ident.NodeId) (bool, error) {
	if a.Equal(d) {
		return false, nil
	}
	visited := map[ident.NodeId]bool{}
	return m.isShareAncestorRec(ctx, a, d, visited)
}

func (m *Manager) isShareAncestorRec(ctx context.Context, a, cur ident.NodeId, visited map[ident.NodeId]bool) (bool, error) {
	if visited[cur] {
		return false, nil
	}
	visited[cur] = true

	node, err := m.nodeState(ctx, cur)
	if err != nil {
		return false, wrapNotFound(err)
	}
	for _, p := range node.AllParents() {
		if p.Equal(a) {
			return true, nil
		}
		found, err := m.isShareAncestorRec(ctx, a, p, visited)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

func wrapNotFound(err error) error {
	return fmt.Errorf("%w: %v", ErrNotFound, err)
}
