package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
	"github.com/coreforge/contentrepo/internal/nodetype"
	"github.com/coreforge/contentrepo/internal/repoerr"
)

// renumberSiblings reassigns 1..k indices, in existing order, to every child
// of node named name — invariant 2 of spec.md §8 ("child indices form a
// contiguous 1..k sequence") after an add or remove changes the group.
func renumberSiblings(node *itemstate.NodeState, name ident.QualifiedName) {
	idx := 1
	for i := range node.Children {
		if node.Children[i].Name.Equal(name) {
			node.Children[i].Index = idx
			idx++
		}
	}
}

func nextIndex(node *itemstate.NodeState, name ident.QualifiedName) int {
	return len(node.ChildrenNamed(name)) + 1
}

// Clone implements intra-workspace sharing, per spec.md §4.6.3.
func (m *Manager) Clone(ctx context.Context, srcID ident.NodeId, destParent ident.NodeId, destName ident.QualifiedName) error {
	src, err := m.node(ctx, srcID)
	if err != nil {
		return err
	}
	if err := m.CheckAddNode(ctx, destParent, destName, src.PrimaryType, CheckAll); err != nil {
		return err
	}
	et, err := m.effectiveType(src)
	if err != nil {
		return err
	}
	if !et.IncludesNodeType(nodetype.MixinShareable) {
		return repoerr.ConstraintViolation("ops.clone", fmt.Errorf("%s is not shareable", srcID))
	}

	if destParent.Equal(srcID) {
		return repoerr.UnsupportedOperation("ops.clone", fmt.Errorf("cannot clone %s under itself", srcID))
	}
	if anc, err := m.hier.IsAncestor(ctx, srcID, destParent); err == nil && anc {
		return repoerr.UnsupportedOperation("ops.clone", fmt.Errorf("share cycle: %s is an ancestor of %s", srcID, destParent))
	}
	if anc, err := m.hier.IsShareAncestor(ctx, srcID, destParent); err == nil && anc {
		return repoerr.UnsupportedOperation("ops.clone", fmt.Errorf("share cycle: %s is a share-ancestor of %s", srcID, destParent))
	}
	if src.SharedWith[destParent] || (src.HasParent && src.ParentID.Equal(destParent)) {
		return repoerr.UnsupportedOperation("ops.clone", fmt.Errorf("%s is already shared under %s", srcID, destParent))
	}

	if src.SharedWith == nil {
		src.SharedWith = make(map[ident.NodeId]bool)
	}
	src.SharedWith[destParent] = true

	destParentNode, err := m.node(ctx, destParent)
	if err != nil {
		return err
	}
	destParentNode.Children = append(destParentNode.Children, itemstate.ChildEntry{
		Name: destName, Index: nextIndex(destParentNode, destName), ID: srcID,
	})

	if err := m.states.Store(ctx, itemstate.NodeStateValue(src)); err != nil {
		return err
	}
	return m.states.Store(ctx, itemstate.NodeStateValue(destParentNode))
}

// Move implements spec.md §4.6.5.
func (m *Manager) Move(ctx context.Context, src ident.NodeId, destParent ident.NodeId, destName ident.QualifiedName) error {
	srcNode, err := m.node(ctx, src)
	if err != nil {
		return err
	}
	if !srcNode.HasParent {
		return repoerr.ConstraintViolation("ops.move", fmt.Errorf("%s has no parent to move from", src))
	}
	srcParent := srcNode.ParentID

	if src.Equal(destParent) {
		return repoerr.New(repoerr.KindRepositoryError, "ops.move", fmt.Errorf("destination equals source %s", src))
	}
	if anc, err := m.hier.IsAncestor(ctx, src, destParent); err == nil && anc {
		return repoerr.New(repoerr.KindRepositoryError, "ops.move", fmt.Errorf("destination %s descends from source %s", destParent, src))
	}
	if anc, err := m.hier.IsShareAncestor(ctx, src, destParent); err == nil && anc {
		return repoerr.New(repoerr.KindRepositoryError, "ops.move", fmt.Errorf("destination %s share-descends from source %s", destParent, src))
	}

	const moveChecks = CheckAccess | CheckLock | CheckVersioning | CheckConstraints
	if err := m.CheckRemoveNode(ctx, src, srcParent, moveChecks); err != nil {
		return err
	}
	if err := m.CheckAddNode(ctx, destParent, destName, srcNode.PrimaryType, moveChecks); err != nil {
		return err
	}
	if srcNode.IsShareable() {
		return repoerr.UnsupportedOperation("ops.move", fmt.Errorf("moving shareable node %s is not supported", src))
	}

	if srcParent.Equal(destParent) {
		parentNode, err := m.node(ctx, destParent)
		if err != nil {
			return err
		}
		oldName := findChildName(parentNode, src)
		for i := range parentNode.Children {
			if parentNode.Children[i].ID.Equal(src) {
				parentNode.Children[i].Name = destName
			}
		}
		renumberSiblings(parentNode, oldName)
		renumberSiblings(parentNode, destName)
		if err := m.states.Store(ctx, itemstate.NodeStateValue(parentNode)); err != nil {
			return err
		}
	} else {
		srcParentNode, err := m.node(ctx, srcParent)
		if err != nil {
			return err
		}
		oldName := findChildName(srcParentNode, src)
		srcParentNode.Children = removeChildEntry(srcParentNode.Children, src)
		renumberSiblings(srcParentNode, oldName)
		if err := m.states.Store(ctx, itemstate.NodeStateValue(srcParentNode)); err != nil {
			return err
		}

		destParentNode, err := m.node(ctx, destParent)
		if err != nil {
			return err
		}
		destParentNode.Children = append(destParentNode.Children, itemstate.ChildEntry{
			Name: destName, Index: nextIndex(destParentNode, destName), ID: src,
		})
		if err := m.states.Store(ctx, itemstate.NodeStateValue(destParentNode)); err != nil {
			return err
		}
		srcNode.ParentID = destParent
	}

	if destParentNode, err := m.node(ctx, destParent); err == nil {
		if et, err := m.effectiveType(destParentNode); err == nil {
			if def, ok := et.ApplicableChildNodeDef(destName, srcNode.PrimaryType, m.registry); ok {
				srcNode.DefID = def.ID
			}
		}
	}
	return m.states.Store(ctx, itemstate.NodeStateValue(srcNode))
}

func findChildName(node *itemstate.NodeState, id ident.NodeId) ident.QualifiedName {
	for _, c := range node.Children {
		if c.ID.Equal(id) {
			return c.Name
		}
	}
	return ident.QualifiedName{}
}

func removeChildEntry(entries []itemstate.ChildEntry, id ident.NodeId) []itemstate.ChildEntry {
	out := make([]itemstate.ChildEntry, 0, len(entries))
	for _, c := range entries {
		if !c.ID.Equal(id) {
			out = append(out, c)
		}
	}
	return out
}

// CreateNodeState implements spec.md §4.6.6.
func (m *Manager) CreateNodeState(ctx context.Context, parent ident.NodeId, name ident.QualifiedName, typeName string, mixinNames []string) (ident.NodeId, error) {
	parentNode, err := m.node(ctx, parent)
	if err != nil {
		return ident.NilNodeId, err
	}
	parentET, err := m.effectiveType(parentNode)
	if err != nil {
		return ident.NilNodeId, err
	}
	def, ok := parentET.ApplicableChildNodeDef(name, typeName, m.registry)
	if !ok {
		return ident.NilNodeId, repoerr.ConstraintViolation("ops.createNodeState", fmt.Errorf("no applicable child-node definition for %s", name.Local))
	}
	if !def.AllowSameNameSibs && len(parentNode.ChildrenNamed(name)) > 0 {
		return ident.NilNodeId, repoerr.ItemExists("ops.createNodeState", fmt.Errorf("%s already has a child named %s", parent, name.Local))
	}

	if typeName == "" {
		typeName = def.DefaultPrimary
	}
	if typeName == "" {
		return ident.NilNodeId, repoerr.ConstraintViolation("ops.createNodeState", fmt.Errorf("no primary type resolved for %s", name.Local))
	}

	id := ident.NewNodeId()
	state, err := m.states.CreateNew(ctx, ident.NodeItemId(id), typeName, parent)
	if err != nil {
		return ident.NilNodeId, err
	}
	n := state.Node
	n.DefID = def.ID
	n.MixinTypes = make(map[string]bool, len(mixinNames))
	for _, mx := range mixinNames {
		n.MixinTypes[mx] = true
	}

	et, err := m.registry.GetEffectiveNodeType(typeName, mixinNames)
	if err != nil {
		return ident.NilNodeId, repoerr.ConstraintViolation("ops.createNodeState", err)
	}
	if et.IncludesNodeType(nodetype.MixinShareable) {
		n.SharedWith = map[ident.NodeId]bool{parent: true}
	}

	if err := m.autoCreateSystemProps(ctx, n, et); err != nil {
		return ident.NilNodeId, err
	}
	for _, pd := range et.AutoCreatePropDefs() {
		if n.PropNames[pd.Name] {
			continue
		}
		if err := m.createAutoProp(ctx, id, n, pd); err != nil {
			return ident.NilNodeId, err
		}
	}

	if err := m.states.StoreCreated(ctx, state); err != nil {
		return ident.NilNodeId, err
	}

	for _, nd := range et.AutoCreateNodeDefs() {
		if len(n.ChildrenNamed(nd.Name)) > 0 {
			continue
		}
		if _, err := m.CreateNodeState(ctx, id, nd.Name, nd.DefaultPrimary, nil); err != nil {
			return ident.NilNodeId, err
		}
	}

	parentNode.Children = append(parentNode.Children, itemstate.ChildEntry{
		Name: name, Index: nextIndex(parentNode, name), ID: id,
	})
	if err := m.states.Store(ctx, itemstate.NodeStateValue(parentNode)); err != nil {
		return ident.NilNodeId, err
	}
	return id, nil
}

// autoCreateSystemProps writes the built-in system-generated property values
// described in spec.md §4.6.6. n is the new node's in-memory state, not yet
// persisted, so the property-name bookkeeping mutates n directly rather than
// round-tripping through the store.
func (m *Manager) autoCreateSystemProps(ctx context.Context, n *itemstate.NodeState, et nodetype.EffectiveNodeType) error {
	id := n.ID
	if et.IncludesNodeType(nodetype.MixinReferenceable) {
		if err := m.setSystemProp(ctx, n, nodetype.PropUUID, []string{id.String()}); err != nil {
			return err
		}
	}
	if err := m.setSystemProp(ctx, n, nodetype.PropPrimaryType, []string{et.PrimaryTypeName()}); err != nil {
		return err
	}
	if mixins := et.MixinTypeNames(); len(mixins) > 0 {
		if err := m.setSystemProp(ctx, n, nodetype.PropMixinTypes, mixins); err != nil {
			return err
		}
	}
	if et.IncludesNodeType(nodetype.TypeHierarchyNode) || et.IncludesNodeType(nodetype.TypeVersion) {
		if err := m.setSystemProp(ctx, n, nodetype.PropCreated, []string{nowRFC3339()}); err != nil {
			return err
		}
	}
	if et.IncludesNodeType(nodetype.TypeResource) {
		if err := m.setSystemProp(ctx, n, nodetype.PropLastModified, []string{nowRFC3339()}); err != nil {
			return err
		}
	}
	return nil
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

func (m *Manager) setSystemProp(ctx context.Context, n *itemstate.NodeState, name string, values []string) error {
	qn := ident.QualifiedName{Local: name}
	propID := ident.PropertyId{Parent: n.ID, Name: qn}
	state, err := m.states.CreateNew(ctx, ident.PropertyItemId(propID), nodetype.ValueTypeString, n.ID)
	if err != nil {
		return err
	}
	state.Prop.Values = values
	state.Prop.Multiple = len(values) > 1
	if err := m.states.StoreCreated(ctx, state); err != nil {
		return err
	}
	if n.PropNames == nil {
		n.PropNames = make(map[ident.QualifiedName]bool)
	}
	n.PropNames[qn] = true
	return nil
}

// markPropNamed records name on parent's persisted PropNames set, used by
// createPropertyState where the parent node already exists in storage.
func (m *Manager) markPropNamed(ctx context.Context, parent ident.NodeId, name ident.QualifiedName) error {
	n, err := m.node(ctx, parent)
	if err != nil {
		return err
	}
	if n.PropNames == nil {
		n.PropNames = make(map[ident.QualifiedName]bool)
	}
	n.PropNames[name] = true
	return m.states.Store(ctx, itemstate.NodeStateValue(n))
}

func (m *Manager) createAutoProp(ctx context.Context, parent ident.NodeId, parentNode *itemstate.NodeState, pd nodetype.PropDef) error {
	valueType := pd.RequiredType
	if valueType == "" {
		valueType = nodetype.ValueTypeString
	}
	propID := ident.PropertyId{Parent: parent, Name: pd.Name}
	state, err := m.states.CreateNew(ctx, ident.PropertyItemId(propID), valueType, parent)
	if err != nil {
		return err
	}
	state.Prop.DefID = pd.ID
	state.Prop.Multiple = pd.Multiple
	state.Prop.Values = append([]string(nil), pd.DefaultValues...)
	if err := m.states.StoreCreated(ctx, state); err != nil {
		return err
	}
	if parentNode.PropNames == nil {
		parentNode.PropNames = make(map[ident.QualifiedName]bool)
	}
	parentNode.PropNames[pd.Name] = true
	return nil
}

// CreatePropertyState implements spec.md §4.6.7.
func (m *Manager) CreatePropertyState(ctx context.Context, parent ident.NodeId, name ident.QualifiedName, valueType string, numValues int) (ident.PropertyId, error) {
	parentNode, err := m.node(ctx, parent)
	if err != nil {
		return ident.PropertyId{}, err
	}
	if parentNode.PropNames[name] {
		return ident.PropertyId{}, repoerr.ItemExists("ops.createPropertyState", fmt.Errorf("%s already has a property named %s", parent, name.Local))
	}

	et, err := m.effectiveType(parentNode)
	if err != nil {
		return ident.PropertyId{}, err
	}

	var def nodetype.PropDef
	var ok bool
	if numValues == 1 {
		def, ok = et.ApplicablePropertyDef(name, valueType, false)
		if !ok {
			def, ok = et.ApplicablePropertyDef(name, valueType, true)
		}
	} else {
		def, ok = et.ApplicablePropertyDef(name, valueType, true)
	}

	finalType := valueType
	if ok && def.RequiredType != "" {
		finalType = def.RequiredType
	}
	if finalType == "" {
		finalType = nodetype.ValueTypeString
	}

	propID := ident.PropertyId{Parent: parent, Name: name}
	state, err := m.states.CreateNew(ctx, ident.PropertyItemId(propID), finalType, parent)
	if err != nil {
		return ident.PropertyId{}, err
	}
	state.Prop.Multiple = numValues != 1
	if ok {
		state.Prop.DefID = def.ID
		if len(def.DefaultValues) > 0 {
			state.Prop.Values = append([]string(nil), def.DefaultValues...)
		}
	}
	if err := m.states.StoreCreated(ctx, state); err != nil {
		return ident.PropertyId{}, err
	}
	if err := m.markPropNamed(ctx, parent, name); err != nil {
		return ident.PropertyId{}, err
	}
	return propID, nil
}

// RemoveNodeState recursively removes target and its subtree, per spec.md
// §4.6.8. Same-name-sibling indices of the remaining children are kept
// contiguous (invariant 2).
func (m *Manager) RemoveNodeState(ctx context.Context, target ident.NodeId) error {
	if target.Equal(m.hier.Root()) {
		return repoerr.ConstraintViolation("ops.removeNodeState", fmt.Errorf("cannot remove the root"))
	}
	targetNode, err := m.node(ctx, target)
	if err != nil {
		return err
	}

	for i := len(targetNode.Children) - 1; i >= 0; i-- {
		child := targetNode.Children[i]
		if err := m.CheckRemoveNode(ctx, child.ID, target, CheckAccess|CheckLock|CheckVersioning); err != nil {
			return err
		}
		if err := m.RemoveNodeState(ctx, child.ID); err != nil {
			return err
		}
	}

	for name := range targetNode.PropNames {
		propID := ident.PropertyId{Parent: target, Name: name}
		propSt, err := m.states.Get(ctx, ident.PropertyItemId(propID), false)
		if err != nil {
			continue
		}
		if err := m.states.Destroy(ctx, propSt); err != nil {
			return err
		}
	}

	if targetNode.HasParent {
		if parentNode, err := m.node(ctx, targetNode.ParentID); err == nil {
			name := findChildName(parentNode, target)
			parentNode.Children = removeChildEntry(parentNode.Children, target)
			renumberSiblings(parentNode, name)
			if err := m.states.Store(ctx, itemstate.NodeStateValue(parentNode)); err != nil {
				return err
			}
		}
	}
	for sharedParent := range targetNode.SharedWith {
		if parentNode, err := m.node(ctx, sharedParent); err == nil {
			name := findChildName(parentNode, target)
			parentNode.Children = removeChildEntry(parentNode.Children, target)
			renumberSiblings(parentNode, name)
			_ = m.states.Store(ctx, itemstate.NodeStateValue(parentNode))
		}
	}

	targetNode.HasParent = false
	targetNode.ParentID = ident.NilNodeId
	return m.states.Destroy(ctx, itemstate.NodeStateValue(targetNode))
}
