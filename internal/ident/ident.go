// Package ident defines the stable identifiers and structured names used
// throughout the item-state engine: node ids, property ids and qualified
// names.
package ident

import (
	"fmt"

	"github.com/google/uuid"
)

// NodeId is a globally unique, immutable identifier for a node. Two Items
// may carry the same NodeId only when the underlying node is shareable and
// reachable under more than one parent.
type NodeId struct {
	uuid uuid.UUID
}

// NilNodeId is the zero value; it never identifies a real node.
var NilNodeId = NodeId{}

// NewNodeId allocates a fresh, random NodeId.
func NewNodeId() NodeId {
	return NodeId{uuid: uuid.New()}
}

// NodeIdFromString parses a canonical UUID string into a NodeId.
func NodeIdFromString(s string) (NodeId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NodeId{}, fmt.Errorf("ident: parse node id %q: %w", s, err)
	}
	return NodeId{uuid: u}, nil
}

// IsNil reports whether id is the zero NodeId.
func (id NodeId) IsNil() bool { return id.uuid == uuid.Nil }

// String renders the canonical hyphenated UUID form, which also doubles as
// the value stored in a referenceable node's "uuid" property per invariant 6.
func (id NodeId) String() string { return id.uuid.String() }

// Equal reports whether two NodeIds denote the same node.
func (id NodeId) Equal(other NodeId) bool { return id.uuid == other.uuid }

// MarshalText implements encoding.TextMarshaler so NodeId can be used
// directly as a map key or struct field in JSON-serialized item states.
func (id NodeId) MarshalText() ([]byte, error) { return []byte(id.uuid.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *NodeId) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return fmt.Errorf("ident: unmarshal node id %q: %w", text, err)
	}
	id.uuid = u
	return nil
}

// QualifiedName is a (namespace URI, local name) pair. Equality is by both
// components.
type QualifiedName struct {
	Namespace string
	Local     string
}

// String renders the Clark-notation form "{namespace}local", or just
// "local" when the namespace is empty.
func (q QualifiedName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return fmt.Sprintf("{%s}%s", q.Namespace, q.Local)
}

// Equal reports whether two qualified names are identical.
func (q QualifiedName) Equal(other QualifiedName) bool {
	return q.Namespace == other.Namespace && q.Local == other.Local
}

// PropertyId identifies a property as the pair of its owning node and its
// qualified name.
type PropertyId struct {
	Parent NodeId
	Name   QualifiedName
}

// String renders "<parent>/<name>" for diagnostics.
func (p PropertyId) String() string {
	return fmt.Sprintf("%s/%s", p.Parent, p.Name)
}

// Equal reports whether two property ids denote the same property.
func (p PropertyId) Equal(other PropertyId) bool {
	return p.Parent.Equal(other.Parent) && p.Name.Equal(other.Name)
}

// ItemId is either a NodeId or a PropertyId. Exactly one of the two is
// meaningful, selected by IsProperty.
type ItemId struct {
	node       NodeId
	prop       PropertyId
	isProperty bool
}

// NodeItemId wraps a NodeId as an ItemId.
func NodeItemId(id NodeId) ItemId { return ItemId{node: id} }

// PropertyItemId wraps a PropertyId as an ItemId.
func PropertyItemId(id PropertyId) ItemId { return ItemId{prop: id, isProperty: true} }

// IsProperty reports whether this ItemId denotes a property.
func (i ItemId) IsProperty() bool { return i.isProperty }

// NodeId returns the wrapped NodeId; valid only if !IsProperty().
func (i ItemId) NodeId() NodeId { return i.node }

// PropertyId returns the wrapped PropertyId; valid only if IsProperty().
func (i ItemId) PropertyId() PropertyId { return i.prop }

// String renders the underlying id.
func (i ItemId) String() string {
	if i.isProperty {
		return i.prop.String()
	}
	return i.node.String()
}

// Equal reports whether two ItemIds denote the same item.
func (i ItemId) Equal(other ItemId) bool {
	if i.isProperty != other.isProperty {
		return false
	}
	if i.isProperty {
		return i.prop.Equal(other.prop)
	}
	return i.node.Equal(other.node)
}
