package itemstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreforge/contentrepo/internal/ident"
)

func TestStatusRequiresOverlayedTwin(t *testing.T) {
	cases := map[Status]bool{
		StatusNew:              false,
		StatusExisting:         false,
		StatusExistingModified: true,
		StatusExistingRemoved:  true,
		StatusStaleModified:    true,
		StatusStaleDestroyed:   true,
	}
	for status, want := range cases {
		assert.Equal(t, want, status.RequiresOverlayedTwin(), "status %s", status)
	}
}

func TestStateValidateEnforcesInvariant5(t *testing.T) {
	n := &NodeState{ID: ident.NewNodeId(), Status: StatusExistingModified}
	s := NodeStateValue(n)
	require.Error(t, s.Validate(), "EXISTING_MODIFIED without overlay must fail validation")

	n.Overlayed = &NodeState{ID: n.ID, Status: StatusExisting}
	require.NoError(t, s.Validate())

	newState := &NodeState{ID: ident.NewNodeId(), Status: StatusNew, Overlayed: &NodeState{}}
	require.Error(t, NodeStateValue(newState).Validate(), "NEW must not carry an overlay")
}

func TestNodeStateCloneIsDeep(t *testing.T) {
	n := &NodeState{
		ID:         ident.NewNodeId(),
		MixinTypes: map[string]bool{"mix:referenceable": true},
		Children:   []ChildEntry{{Name: ident.QualifiedName{Local: "a"}, Index: 1, ID: ident.NewNodeId()}},
		PropNames:  map[ident.QualifiedName]bool{{Local: "p"}: true},
		SharedWith: map[ident.NodeId]bool{ident.NewNodeId(): true},
	}
	cp := n.Clone()
	cp.Children[0].Index = 2
	cp.MixinTypes["mix:versionable"] = true

	assert.Equal(t, 1, n.Children[0].Index, "original must be unaffected by clone mutation")
	assert.False(t, n.MixinTypes["mix:versionable"])
	assert.True(t, n.IsShareable())
}
