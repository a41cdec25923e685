package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nameElem(local string, idx int) PathElement {
	return PathElement{Name: QualifiedName{Local: local}, Index: idx}
}

func TestPathAncestorAlgebra(t *testing.T) {
	p := NewPath(nameElem("a", 0), nameElem("b", 0), nameElem("c", 2))

	assert.Equal(t, 3, p.Depth())
	assert.Equal(t, "c[2]", p.NameElement().String())
	assert.Equal(t, "/a/b/c[2]", p.String())

	parent := p.Parent()
	assert.Equal(t, "/a/b", parent.String())

	anc, err := p.Ancestor(2)
	require.NoError(t, err)
	assert.Equal(t, "/a", anc.String())

	root, err := p.Ancestor(3)
	require.NoError(t, err)
	assert.True(t, root.IsRoot())

	_, err = p.Ancestor(4)
	assert.Error(t, err)
}

func TestPathAncestryRelations(t *testing.T) {
	a := NewPath(nameElem("a", 0))
	ab := NewPath(nameElem("a", 0), nameElem("b", 0))

	assert.True(t, a.IsAncestorOf(ab))
	assert.True(t, ab.IsDescendant(a))
	assert.False(t, ab.IsAncestorOf(a))
	assert.False(t, a.IsAncestorOf(a))
}

func TestPathElementEqualityTreatsImplicitIndexOne(t *testing.T) {
	e1 := nameElem("c", 0)
	e2 := nameElem("c", 1)
	assert.True(t, e1.Equal(e2))

	e3 := nameElem("c", 2)
	assert.False(t, e1.Equal(e3))
}

func TestNodeIdRoundTrip(t *testing.T) {
	id := NewNodeId()
	parsed, err := NodeIdFromString(id.String())
	require.NoError(t, err)
	assert.True(t, id.Equal(parsed))
	assert.False(t, id.IsNil())
	assert.True(t, NilNodeId.IsNil())
}

func TestQualifiedNameEquality(t *testing.T) {
	a := QualifiedName{Namespace: "http://x", Local: "foo"}
	b := QualifiedName{Namespace: "http://x", Local: "foo"}
	c := QualifiedName{Namespace: "http://y", Local: "foo"}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, "{http://x}foo", a.String())
}
