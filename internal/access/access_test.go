package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreforge/contentrepo/internal/ident"
)

func TestAllowAllGrantsEverything(t *testing.T) {
	var m Manager = AllowAll{}
	id := ident.NodeItemId(ident.NewNodeId())
	assert.True(t, m.IsGrantedID(id, RemoveNode))
	assert.True(t, m.CanReadID(id))
}

func TestDenySetDeniesOnlyRecordedPairs(t *testing.T) {
	id := ident.NodeItemId(ident.NewNodeId())
	other := ident.NodeItemId(ident.NewNodeId())
	d := NewDenySet()
	d.Deny(id, Read)

	assert.False(t, d.IsGrantedID(id, Read))
	assert.True(t, d.IsGrantedID(id, RemoveNode))
	assert.True(t, d.IsGrantedID(other, Read))
}
