package item

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
	"github.com/coreforge/contentrepo/internal/itemmgr"
	"github.com/coreforge/contentrepo/internal/nodetype"
	"github.com/coreforge/contentrepo/internal/nodetype/seed"
	"github.com/coreforge/contentrepo/internal/ops"
	"github.com/coreforge/contentrepo/internal/persist/sqlitestore"
	"github.com/coreforge/contentrepo/internal/session"
)

type harness struct {
	sess  *session.Session
	hier  *hierarchy.Manager
	items *itemmgr.Manager
	ops   *ops.Manager
	reg   nodetype.Registry
	root  ident.NodeId
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlitestore.Open(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sess := session.New(store, nil)
	ctx := context.Background()

	rootID := ident.NewNodeId()
	rootState, err := sess.CreateNew(ctx, ident.NodeItemId(rootID), "nt:folder", ident.NilNodeId)
	require.NoError(t, err)
	require.NoError(t, sess.Edit(ctx))
	require.NoError(t, sess.StoreCreated(ctx, rootState))
	require.NoError(t, sess.Update(ctx))

	doc := &seed.Document{
		Types: []seed.TypeSpec{
			{
				Name:       "nt:folder",
				Properties: []seed.PropSpec{{Name: "title", Type: nodetype.ValueTypeString}},
				ChildNodes: []seed.NodeSpec{
					{Name: "*", RequiredPrimary: []string{"nt:folder"}, DefaultPrimary: "nt:folder", AllowSameNameSibs: true},
				},
			},
			{Name: nodetype.MixinShareable},
			{Name: nodetype.MixinVersionable},
		},
	}
	reg, err := seed.NewRegistry(doc)
	require.NoError(t, err)

	hier := hierarchy.New(sess, rootID)
	c := cache.New()
	items := itemmgr.New(sess, c, hier, reg, access.AllowAll{}, nil)
	sess.AddListener(items)
	opsmgr := ops.New(sess, hier, reg, access.AllowAll{}, nil, nil, nil)

	return &harness{sess: sess, hier: hier, items: items, ops: opsmgr, reg: reg, root: rootID}
}

func qn(local string) ident.QualifiedName { return ident.QualifiedName{Local: local} }

func TestItemSaveCommitsNewSubtree(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.sess.Edit(ctx))

	childID, err := h.ops.CreateNodeState(ctx, h.root, qn("x"), "nt:folder", nil)
	require.NoError(t, err)

	it := New(childID, h.sess, h.hier, h.items, h.reg, access.AllowAll{}, h.ops)
	require.NoError(t, it.Save(ctx))

	d, err := h.items.GetByID(ctx, ident.NodeItemId(childID))
	require.NoError(t, err)
	assert.Equal(t, childID, d.State.Node.ID)
}

func TestItemRefreshRejectsBrandNewNode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.sess.Edit(ctx))

	childID, err := h.ops.CreateNodeState(ctx, h.root, qn("x"), "nt:folder", nil)
	require.NoError(t, err)

	it := New(childID, h.sess, h.hier, h.items, h.reg, access.AllowAll{}, h.ops)
	err = it.Refresh(ctx, false)
	assert.Error(t, err)
}

func TestItemRefreshKeepChangesIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.sess.Edit(ctx))

	childID, err := h.ops.CreateNodeState(ctx, h.root, qn("x"), "nt:folder", nil)
	require.NoError(t, err)

	it := New(childID, h.sess, h.hier, h.items, h.reg, access.AllowAll{}, h.ops)
	assert.NoError(t, it.Refresh(ctx, true))
}

func TestItemRefreshDiscardsExistingModification(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.sess.Edit(ctx))

	childID, err := h.ops.CreateNodeState(ctx, h.root, qn("x"), "nt:folder", nil)
	require.NoError(t, err)
	require.NoError(t, h.sess.Update(ctx))
	require.NoError(t, h.sess.Edit(ctx))

	_, err = h.ops.CreatePropertyState(ctx, childID, qn("title"), nodetype.ValueTypeString, 1)
	require.NoError(t, err)

	it := New(childID, h.sess, h.hier, h.items, h.reg, access.AllowAll{}, h.ops)
	require.NoError(t, it.Refresh(ctx, false))

	st, err := h.sess.Get(ctx, ident.NodeItemId(childID), false)
	require.NoError(t, err)
	assert.False(t, st.Node.PropNames[qn("title")])
}

func TestItemRemoveDeletesNodeAndDetachesFromParent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.sess.Edit(ctx))

	childID, err := h.ops.CreateNodeState(ctx, h.root, qn("x"), "nt:folder", nil)
	require.NoError(t, err)
	require.NoError(t, h.sess.Update(ctx))
	require.NoError(t, h.sess.Edit(ctx))

	it := New(childID, h.sess, h.hier, h.items, h.reg, access.AllowAll{}, h.ops)
	require.NoError(t, it.Remove(ctx))

	_, err = h.sess.Get(ctx, ident.NodeItemId(childID), false)
	assert.Error(t, err)
}

func TestItemSaveInitializesVersionHistoryOnNewlyVersionableNode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.sess.Edit(ctx))

	childID, err := h.ops.CreateNodeState(ctx, h.root, qn("v"), "nt:folder", []string{nodetype.MixinVersionable})
	require.NoError(t, err)

	it := New(childID, h.sess, h.hier, h.items, h.reg, access.AllowAll{}, h.ops)
	require.NoError(t, it.Save(ctx))

	st, err := h.sess.Get(ctx, ident.NodeItemId(childID), false)
	require.NoError(t, err)
	assert.True(t, st.Node.PropNames[qn(nodetype.PropVersionHistory)])
	assert.True(t, st.Node.PropNames[qn(nodetype.PropBaseVersion)])
	assert.True(t, st.Node.PropNames[qn(nodetype.PropIsCheckedOut)])
	assert.True(t, st.Node.PropNames[qn(nodetype.PropPredecessors)])

	checkedOut, err := h.sess.Get(ctx, ident.PropertyItemId(ident.PropertyId{Parent: childID, Name: qn(nodetype.PropIsCheckedOut)}), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"true"}, checkedOut.Prop.Values)
}

func TestItemSaveRejectsMoveWhoseDestinationHasUncommittedChangesOutsideSubtree(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.sess.Edit(ctx))

	a, err := h.ops.CreateNodeState(ctx, h.root, qn("a"), "nt:folder", nil)
	require.NoError(t, err)
	p2, err := h.ops.CreateNodeState(ctx, h.root, qn("p2"), "nt:folder", nil)
	require.NoError(t, err)
	require.NoError(t, h.sess.Update(ctx))
	require.NoError(t, h.sess.Edit(ctx))

	// p2 picks up an uncommitted change of its own, unrelated to a's subtree.
	_, err = h.ops.CreatePropertyState(ctx, p2, qn("title"), nodetype.ValueTypeString, 1)
	require.NoError(t, err)

	// Moving a into p2 makes a's save depend on p2, which already has
	// transient state outside a's own subtree.
	require.NoError(t, h.ops.Move(ctx, a, p2, qn("a")))

	it := New(a, h.sess, h.hier, h.items, h.reg, access.AllowAll{}, h.ops)
	err = it.Save(ctx)
	assert.Error(t, err)
}

func TestItemSaveInitializesShareSetOnNewlyShareableNode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.sess.Edit(ctx))

	childID, err := h.ops.CreateNodeState(ctx, h.root, qn("s"), "nt:folder", []string{nodetype.MixinShareable})
	require.NoError(t, err)

	it := New(childID, h.sess, h.hier, h.items, h.reg, access.AllowAll{}, h.ops)
	require.NoError(t, it.Save(ctx))

	st, err := h.sess.Get(ctx, ident.NodeItemId(childID), false)
	require.NoError(t, err)
	assert.True(t, st.Node.SharedWith[h.root])
}
