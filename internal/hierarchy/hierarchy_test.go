package hierarchy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
)

// fakeSource is a minimal in-memory StateSource for hierarchy tests,
// avoiding a dependency on the session/sqlitestore packages.
type fakeSource struct {
	nodes map[ident.NodeId]*itemstate.NodeState
	props map[ident.PropertyId]*itemstate.PropertyState
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		nodes: make(map[ident.NodeId]*itemstate.NodeState),
		props: make(map[ident.PropertyId]*itemstate.PropertyState),
	}
}

func (f *fakeSource) Get(_ context.Context, id ident.ItemId, _ bool) (itemstate.State, error) {
	if id.IsProperty() {
		p, ok := f.props[id.PropertyId()]
		if !ok {
			return itemstate.State{}, ErrNotFound
		}
		return itemstate.PropertyStateValue(p), nil
	}
	n, ok := f.nodes[id.NodeId()]
	if !ok {
		return itemstate.State{}, ErrNotFound
	}
	return itemstate.NodeStateValue(n), nil
}

func name(local string) ident.QualifiedName { return ident.QualifiedName{Local: local} }

func (f *fakeSource) addChild(parent *itemstate.NodeState, childName string, index int) *itemstate.NodeState {
	child := &itemstate.NodeState{
		ID:        ident.NewNodeId(),
		ParentID:  parent.ID,
		HasParent: true,
		Status:    itemstate.StatusExisting,
	}
	parent.Children = append(parent.Children, itemstate.ChildEntry{Name: name(childName), Index: index, ID: child.ID})
	f.nodes[child.ID] = child
	return child
}

func buildTree(f *fakeSource) (root, a, ab *itemstate.NodeState) {
	root = &itemstate.NodeState{ID: ident.NewNodeId(), Status: itemstate.StatusExisting}
	f.nodes[root.ID] = root
	a = f.addChild(root, "a", 1)
	ab = f.addChild(a, "b", 1)
	return root, a, ab
}

func TestHierarchyResolvePathWalksChildren(t *testing.T) {
	ctx := context.Background()
	f := newFakeSource()
	root, _, ab := buildTree(f)
	m := New(f, root.ID)

	got, err := m.ResolveNodePath(ctx, ident.NewPath(ident.PathElement{Name: name("a")}, ident.PathElement{Name: name("b")}))
	require.NoError(t, err)
	assert.Equal(t, ab.ID, got)
}

func TestHierarchyResolvePathMissingChildReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFakeSource()
	root, _, _ := buildTree(f)
	m := New(f, root.ID)

	_, err := m.ResolveNodePath(ctx, ident.NewPath(ident.PathElement{Name: name("nope")}))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHierarchyResolvePathInconsistentSNSIndexReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFakeSource()
	root, _, _ := buildTree(f)
	m := New(f, root.ID)

	_, err := m.ResolveNodePath(ctx, ident.NewPath(ident.PathElement{Name: name("a"), Index: 2}))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHierarchyResolvePropertyPathRequiresTrailingProperty(t *testing.T) {
	ctx := context.Background()
	f := newFakeSource()
	root, a, _ := buildTree(f)
	propID := ident.PropertyId{Parent: a.ID, Name: name("title")}
	f.props[propID] = &itemstate.PropertyState{ID: propID, ParentID: a.ID, Status: itemstate.StatusExisting}
	m := New(f, root.ID)

	got, err := m.ResolvePropertyPath(ctx, ident.NewPath(ident.PathElement{Name: name("a")}, ident.PathElement{Name: name("title")}))
	require.NoError(t, err)
	assert.Equal(t, propID, got)
}

func TestHierarchyPathOfUsesPrimaryParentForShareableNode(t *testing.T) {
	ctx := context.Background()
	f := newFakeSource()
	root, a, ab := buildTree(f)
	otherParent := f.addChild(root, "other", 1)
	ab.SharedWith = map[ident.NodeId]bool{otherParent.ID: true}
	m := New(f, root.ID)

	p, err := m.PathOf(ctx, ab.ID)
	require.NoError(t, err)
	assert.Equal(t, "/a/b", p.String())
	assert.Equal(t, 2, p.Depth())

	d, err := m.DepthOf(ctx, ab.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, d)
}

func TestHierarchyIsAncestorStrictAndPrimaryPathOnly(t *testing.T) {
	ctx := context.Background()
	f := newFakeSource()
	root, a, ab := buildTree(f)
	m := New(f, root.ID)

	ok, err := m.IsAncestor(ctx, a.ID, ab.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.IsAncestor(ctx, ab.ID, ab.ID)
	require.NoError(t, err)
	assert.False(t, ok, "ancestry must be strict")

	ok, err = m.IsAncestor(ctx, root.ID, ab.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHierarchyIsShareAncestorFollowsSharedParentSet(t *testing.T) {
	ctx := context.Background()
	f := newFakeSource()
	root, _, ab := buildTree(f)
	otherParent := f.addChild(root, "other", 1)
	ab.SharedWith = map[ident.NodeId]bool{otherParent.ID: true}
	m := New(f, root.ID)

	// ab is not reachable from otherParent via the primary-parent chain...
	ok, err := m.IsAncestor(ctx, otherParent.ID, ab.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// ...but is via the share-aware variant.
	ok, err = m.IsShareAncestor(ctx, otherParent.ID, ab.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
