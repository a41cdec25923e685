package itemmgr

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreforge/contentrepo/internal/access"
	"github.com/coreforge/contentrepo/internal/cache"
	"github.com/coreforge/contentrepo/internal/hierarchy"
	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
	"github.com/coreforge/contentrepo/internal/persist/sqlitestore"
	"github.com/coreforge/contentrepo/internal/repoerr"
	"github.com/coreforge/contentrepo/internal/session"
)

func newTestManager(t *testing.T) (*Manager, *session.Session, ident.NodeId) {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlitestore.Open(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sess := session.New(store, nil)

	rootID := ident.NewNodeId()
	ctx := context.Background()
	rootState, err := sess.CreateNew(ctx, ident.NodeItemId(rootID), "nt:folder", ident.NilNodeId)
	require.NoError(t, err)
	require.NoError(t, sess.Edit(ctx))
	require.NoError(t, sess.StoreCreated(ctx, rootState))
	require.NoError(t, sess.Update(ctx))

	hier := hierarchy.New(sess, rootID)
	c := cache.New()
	mgr := New(sess, c, hier, nil, access.AllowAll{}, nil)
	sess.AddListener(mgr)
	return mgr, sess, rootID
}

func TestItemMgrExistsAndGetByID(t *testing.T) {
	ctx := context.Background()
	mgr, _, rootID := newTestManager(t)

	assert.True(t, mgr.Exists(ctx, ident.NodeItemId(rootID)))

	d, err := mgr.GetByID(ctx, ident.NodeItemId(rootID))
	require.NoError(t, err)
	assert.Equal(t, rootID, d.State.Node.ID)
}

func TestItemMgrGetByPathMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := newTestManager(t)

	_, err := mgr.GetByPath(ctx, ident.NewPath(ident.PathElement{Name: ident.QualifiedName{Local: "nope"}}))
	assert.Error(t, err)
	assert.False(t, mgr.ExistsPath(ctx, ident.NewPath(ident.PathElement{Name: ident.QualifiedName{Local: "nope"}})))
}

func TestItemMgrAccessDeniedCollapsesToNotFoundOnPath(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := sqlitestore.Open(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	sess := session.New(store, nil)

	rootID := ident.NewNodeId()
	rootState, err := sess.CreateNew(ctx, ident.NodeItemId(rootID), "nt:folder", ident.NilNodeId)
	require.NoError(t, err)
	require.NoError(t, sess.Edit(ctx))
	require.NoError(t, sess.StoreCreated(ctx, rootState))
	require.NoError(t, sess.Update(ctx))

	deny := access.NewDenySet()
	deny.Deny(ident.NodeItemId(rootID), access.Read)

	hier := hierarchy.New(sess, rootID)
	mgr := New(sess, cache.New(), hier, nil, deny, nil)

	_, err = mgr.GetByID(ctx, ident.NodeItemId(rootID))
	assert.True(t, repoerr.Is(err, repoerr.KindAccessDenied))

	_, err = mgr.GetByPath(ctx, ident.RootPath())
	assert.True(t, repoerr.Is(err, repoerr.KindNotFound))
}

func TestItemMgrListenerMarksModified(t *testing.T) {
	ctx := context.Background()
	mgr, sess, rootID := newTestManager(t)

	_, err := mgr.GetByID(ctx, ident.NodeItemId(rootID))
	require.NoError(t, err)

	existing, err := sess.Get(ctx, ident.NodeItemId(rootID), false)
	require.NoError(t, err)
	require.NoError(t, sess.Edit(ctx))
	require.NoError(t, sess.Store(ctx, existing))

	d, ok := mgr.cache.Lookup(ident.NodeItemId(rootID))
	require.True(t, ok)
	assert.Equal(t, itemstate.ItemDataModified, d.Status)

	require.NoError(t, sess.Cancel(ctx))
}

func TestItemMgrExistsReflectsUncommittedRemoveBeforeSave(t *testing.T) {
	ctx := context.Background()
	mgr, sess, rootID := newTestManager(t)

	childID := ident.NewNodeId()
	childState, err := sess.CreateNew(ctx, ident.NodeItemId(childID), "nt:folder", rootID)
	require.NoError(t, err)
	require.NoError(t, sess.Edit(ctx))
	require.NoError(t, sess.StoreCreated(ctx, childState))
	require.NoError(t, sess.Update(ctx))

	// Prime the cache with a NORMAL view before scheduling the removal, the
	// way a prior read in the same session would.
	require.True(t, mgr.Exists(ctx, ident.NodeItemId(childID)))

	require.NoError(t, sess.Edit(ctx))
	existing, err := sess.Get(ctx, ident.NodeItemId(childID), false)
	require.NoError(t, err)
	require.NoError(t, sess.Destroy(ctx, existing))

	assert.False(t, mgr.Exists(ctx, ident.NodeItemId(childID)))
	_, err = mgr.GetByID(ctx, ident.NodeItemId(childID))
	assert.Error(t, err)

	require.NoError(t, sess.Cancel(ctx))
}

func TestItemMgrChildrenIteratorSkipsNothingWhenAllReadable(t *testing.T) {
	ctx := context.Background()
	mgr, sess, rootID := newTestManager(t)

	childID := ident.NewNodeId()
	childState, err := sess.CreateNew(ctx, ident.NodeItemId(childID), "nt:folder", rootID)
	require.NoError(t, err)
	require.NoError(t, sess.Edit(ctx))
	require.NoError(t, sess.StoreCreated(ctx, childState))

	rootState, err := sess.Get(ctx, ident.NodeItemId(rootID), false)
	require.NoError(t, err)
	rootState.Node.Children = append(rootState.Node.Children, itemstate.ChildEntry{
		Name: ident.QualifiedName{Local: "kid"}, Index: 1, ID: childID,
	})
	require.NoError(t, sess.Store(ctx, rootState))
	require.NoError(t, sess.Update(ctx))

	it, err := mgr.ChildrenOf(ctx, rootID)
	require.NoError(t, err)
	d, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, childID, d.State.Node.ID)
	_, ok = it.Next()
	assert.False(t, ok)
}
