package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
	"github.com/coreforge/contentrepo/internal/persist/sqlitestore"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlitestore.Open(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, nil)
}

type recordingListener struct {
	created, modified, destroyed, discarded []itemstate.State
}

func (r *recordingListener) StateCreated(s itemstate.State)   { r.created = append(r.created, s) }
func (r *recordingListener) StateModified(s itemstate.State)  { r.modified = append(r.modified, s) }
func (r *recordingListener) StateDestroyed(s itemstate.State) { r.destroyed = append(r.destroyed, s) }
func (r *recordingListener) StateDiscarded(s itemstate.State) { r.discarded = append(r.discarded, s) }

func TestSessionCreateStoreUpdateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	l := &recordingListener{}
	s.AddListener(l)

	id := ident.NewNodeId()
	state, err := s.CreateNew(ctx, ident.NodeItemId(id), "nt:folder", ident.NilNodeId)
	require.NoError(t, err)

	require.NoError(t, s.Edit(ctx))
	require.NoError(t, s.StoreCreated(ctx, state))
	require.NoError(t, s.Update(ctx))

	require.Len(t, l.created, 1)

	got, err := s.Get(ctx, ident.NodeItemId(id), false)
	require.NoError(t, err)
	assert.Equal(t, itemstate.StatusExisting, got.GetStatus())
}

func TestSessionStoreOnExistingBecomesModifiedWithOverlayedTwin(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	id := ident.NewNodeId()
	created, err := s.CreateNew(ctx, ident.NodeItemId(id), "nt:folder", ident.NilNodeId)
	require.NoError(t, err)
	require.NoError(t, s.Edit(ctx))
	require.NoError(t, s.StoreCreated(ctx, created))
	require.NoError(t, s.Update(ctx))

	existing, err := s.Get(ctx, ident.NodeItemId(id), false)
	require.NoError(t, err)
	require.Equal(t, itemstate.StatusExisting, existing.GetStatus())

	require.NoError(t, s.Edit(ctx))
	require.NoError(t, s.Store(ctx, existing))

	modified, err := s.Get(ctx, ident.NodeItemId(id), false)
	require.NoError(t, err)
	assert.Equal(t, itemstate.StatusExistingModified, modified.GetStatus())
	require.NotNil(t, modified.Node.Overlayed)
	assert.NoError(t, modified.Validate())

	require.NoError(t, s.Cancel(ctx))
}

func TestSessionDestroyNewFullyDisposes(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	l := &recordingListener{}
	s.AddListener(l)

	id := ident.NewNodeId()
	created, err := s.CreateNew(ctx, ident.NodeItemId(id), "nt:folder", ident.NilNodeId)
	require.NoError(t, err)

	require.NoError(t, s.Edit(ctx))
	require.NoError(t, s.StoreCreated(ctx, created))
	require.NoError(t, s.Destroy(ctx, created))
	require.NoError(t, s.Update(ctx))

	require.Len(t, l.destroyed, 1)
	_, err = s.Get(ctx, ident.NodeItemId(id), false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionDestroyExistingMovesToAtticUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	id := ident.NewNodeId()
	created, err := s.CreateNew(ctx, ident.NodeItemId(id), "nt:folder", ident.NilNodeId)
	require.NoError(t, err)
	require.NoError(t, s.Edit(ctx))
	require.NoError(t, s.StoreCreated(ctx, created))
	require.NoError(t, s.Update(ctx))

	existing, err := s.Get(ctx, ident.NodeItemId(id), false)
	require.NoError(t, err)

	require.NoError(t, s.Edit(ctx))
	require.NoError(t, s.Destroy(ctx, existing))

	// still resolvable from the attic, status EXISTING_REMOVED
	fromAttic, err := s.Get(ctx, ident.NodeItemId(id), true)
	require.NoError(t, err)
	assert.Equal(t, itemstate.StatusExistingRemoved, fromAttic.GetStatus())

	// but not visible without includeAttic
	_, err = s.Get(ctx, ident.NodeItemId(id), false)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Cancel(ctx))
}

func TestSessionEditIsNotReentrant(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	require.NoError(t, s.Edit(ctx))
	assert.ErrorIs(t, s.Edit(ctx), ErrAlreadyEditing)
	require.NoError(t, s.Cancel(ctx))
}

func TestSessionStoreOutsideEditRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	id := ident.NewNodeId()
	created, err := s.CreateNew(ctx, ident.NodeItemId(id), "nt:folder", ident.NilNodeId)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Store(ctx, created), ErrNotEditing)
}

func TestSessionDescendantTransientsWalksParentChain(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	root := ident.NewNodeId()
	child := ident.NewNodeId()
	grandchild := ident.NewNodeId()

	rootState, err := s.CreateNew(ctx, ident.NodeItemId(root), "nt:folder", ident.NilNodeId)
	require.NoError(t, err)
	childState, err := s.CreateNew(ctx, ident.NodeItemId(child), "nt:folder", root)
	require.NoError(t, err)
	grandchildState, err := s.CreateNew(ctx, ident.NodeItemId(grandchild), "nt:folder", child)
	require.NoError(t, err)

	require.NoError(t, s.Edit(ctx))
	require.NoError(t, s.StoreCreated(ctx, rootState))
	require.NoError(t, s.StoreCreated(ctx, childState))
	require.NoError(t, s.StoreCreated(ctx, grandchildState))

	under := func(candidateParent ident.NodeId) bool {
		return candidateParent == child || candidateParent == root
	}
	got := s.DescendantTransients(root, under)
	assert.Len(t, got, 3)

	require.NoError(t, s.Cancel(ctx))
}
