package itemstate

import (
	"fmt"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/nodetype"
)

// ChildEntry is one ordered child-node entry inside a parent NodeState: a
// name, 1-based same-name-sibling index, and the child's id.
type ChildEntry struct {
	Name  ident.QualifiedName
	Index int // always >= 1
	ID    ident.NodeId
}

// NodeState is the raw typed data for a node, per spec.md §3.
type NodeState struct {
	ID           ident.NodeId
	PrimaryType  string
	MixinTypes   map[string]bool
	DefID        nodetype.DefId
	ParentID     ident.NodeId // NilNodeId for the root
	HasParent    bool
	Children     []ChildEntry
	PropNames    map[ident.QualifiedName]bool
	SharedWith   map[ident.NodeId]bool // parents the node is shared under, seeded with the primary parent; shareable nodes only
	Status       Status
	Overlayed    *NodeState // non-nil iff Status.RequiresOverlayedTwin()
}

// Clone returns a deep copy, used when moving a state to the attic or when
// deep-copying a subtree during clone/copy.
func (n *NodeState) Clone() *NodeState {
	if n == nil {
		return nil
	}
	cp := *n
	cp.MixinTypes = cloneSet(n.MixinTypes)
	cp.Children = append([]ChildEntry(nil), n.Children...)
	cp.PropNames = cloneNameSet(n.PropNames)
	cp.SharedWith = cloneNodeSet(n.SharedWith)
	cp.Overlayed = n.Overlayed.Clone()
	return &cp
}

// IsShareable reports whether this node has a non-empty shared-parent set.
// The set is seeded with the primary parent when the node becomes
// shareable, so a shareable node with a single parent reports true.
func (n *NodeState) IsShareable() bool {
	return len(n.SharedWith) > 0
}

// AllParents returns the primary parent plus every id in SharedWith.
func (n *NodeState) AllParents() []ident.NodeId {
	out := make([]ident.NodeId, 0, 1+len(n.SharedWith))
	if n.HasParent {
		out = append(out, n.ParentID)
	}
	for id := range n.SharedWith {
		out = append(out, id)
	}
	return out
}

// ChildrenNamed returns the child entries matching name, in the order they
// appear in Children.
func (n *NodeState) ChildrenNamed(name ident.QualifiedName) []ChildEntry {
	var out []ChildEntry
	for _, c := range n.Children {
		if c.Name.Equal(name) {
			out = append(out, c)
		}
	}
	return out
}

// PropertyState is the raw typed data for a property, per spec.md §3.
type PropertyState struct {
	ID        ident.PropertyId
	ValueType string
	Multiple  bool
	Values    []string
	DefID     nodetype.DefId
	ParentID  ident.NodeId
	Status    Status
	Overlayed *PropertyState
}

// Clone returns a deep copy.
func (p *PropertyState) Clone() *PropertyState {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Values = append([]string(nil), p.Values...)
	cp.Overlayed = p.Overlayed.Clone()
	return &cp
}

func cloneSet(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	cp := make(map[string]bool, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func cloneNameSet(m map[ident.QualifiedName]bool) map[ident.QualifiedName]bool {
	if m == nil {
		return nil
	}
	cp := make(map[ident.QualifiedName]bool, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func cloneNodeSet(m map[ident.NodeId]bool) map[ident.NodeId]bool {
	if m == nil {
		return nil
	}
	cp := make(map[ident.NodeId]bool, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// State is the tagged union of NodeState / PropertyState, used wherever the
// engine needs to treat both uniformly (session overlay, cache, batched
// ops).
type State struct {
	Node *NodeState
	Prop *PropertyState
}

// NodeStateValue wraps a *NodeState as a State.
func NodeStateValue(n *NodeState) State { return State{Node: n} }

// PropertyStateValue wraps a *PropertyState as a State.
func PropertyStateValue(p *PropertyState) State { return State{Prop: p} }

// IsProperty reports whether this State wraps a PropertyState.
func (s State) IsProperty() bool { return s.Prop != nil }

// ID returns the underlying item's id.
func (s State) ID() ident.ItemId {
	if s.Prop != nil {
		return ident.PropertyItemId(s.Prop.ID)
	}
	return ident.NodeItemId(s.Node.ID)
}

// GetStatus returns the underlying status.
func (s State) GetStatus() Status {
	if s.Prop != nil {
		return s.Prop.Status
	}
	return s.Node.Status
}

// SetStatus sets the underlying status.
func (s State) SetStatus(st Status) {
	if s.Prop != nil {
		s.Prop.Status = st
		return
	}
	s.Node.Status = st
}

// ParentID returns the primary parent id for either kind of state.
func (s State) ParentID() ident.NodeId {
	if s.Prop != nil {
		return s.Prop.ParentID
	}
	return s.Node.ParentID
}

// Clone returns a deep copy preserving the tagged-union shape.
func (s State) Clone() State {
	if s.Prop != nil {
		return State{Prop: s.Prop.Clone()}
	}
	return State{Node: s.Node.Clone()}
}

// Validate checks invariant 5 (overlay presence matches status).
func (s State) Validate() error {
	st := s.GetStatus()
	hasOverlay := false
	if s.Prop != nil {
		hasOverlay = s.Prop.Overlayed != nil
	} else {
		hasOverlay = s.Node.Overlayed != nil
	}
	if st.RequiresOverlayedTwin() && !hasOverlay {
		return fmt.Errorf("itemstate: status %s requires an overlayed twin for %s", st, s.ID())
	}
	if st == StatusNew && hasOverlay {
		return fmt.Errorf("itemstate: NEW state must not carry an overlayed twin for %s", s.ID())
	}
	return nil
}
