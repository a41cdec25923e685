package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
	"github.com/coreforge/contentrepo/internal/persist"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreCreateEditUpdateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id := ident.NewNodeId()
	state, err := s.CreateNew(ctx, ident.NodeItemId(id), "nt:folder", ident.NilNodeId)
	require.NoError(t, err)
	require.Equal(t, itemstate.StatusNew, state.GetStatus())

	require.NoError(t, s.Edit(ctx))
	require.NoError(t, s.Store(ctx, state))
	require.NoError(t, s.Update(ctx))

	got, err := s.Get(ctx, ident.NodeItemId(id))
	require.NoError(t, err)
	assert.Equal(t, itemstate.StatusExisting, got.GetStatus())
	assert.Equal(t, "nt:folder", got.Node.PrimaryType)
}

func TestStoreDoubleEditRejected(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Edit(ctx))
	defer func() { _ = s.Cancel(ctx) }()
	assert.Error(t, s.Edit(ctx))
}

func TestStoreCancelDiscardsPendingWrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id := ident.NewNodeId()
	state, err := s.CreateNew(ctx, ident.NodeItemId(id), "nt:folder", ident.NilNodeId)
	require.NoError(t, err)

	require.NoError(t, s.Edit(ctx))
	require.NoError(t, s.Store(ctx, state))
	require.NoError(t, s.Cancel(ctx))

	_, err = s.Get(ctx, ident.NodeItemId(id))
	assert.True(t, persist.IsNotFound(err))
}

func TestStoreNodeReferencesTracking(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	target := ident.NewNodeId()
	parent := ident.NewNodeId()
	propID := ident.PropertyId{Parent: parent, Name: ident.QualifiedName{Local: "ref"}}
	prop := &itemstate.PropertyState{
		ID:        propID,
		ValueType: "Reference",
		ParentID:  parent,
		Values:    []string{target.String()},
		Status:    itemstate.StatusNew,
	}

	require.NoError(t, s.Edit(ctx))
	require.NoError(t, s.Store(ctx, itemstate.PropertyStateValue(prop)))
	require.NoError(t, s.Update(ctx))

	has, err := s.HasNodeReferences(ctx, target)
	require.NoError(t, err)
	assert.True(t, has)

	refs, err := s.GetNodeReferences(ctx, target)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, propID.Name.Local, refs[0].Name.Local)

	// Destroying the property must clear the reference edge.
	require.NoError(t, s.Edit(ctx))
	require.NoError(t, s.Destroy(ctx, itemstate.PropertyStateValue(prop)))
	require.NoError(t, s.Update(ctx))

	has, err = s.HasNodeReferences(ctx, target)
	require.NoError(t, err)
	assert.False(t, has)
}
