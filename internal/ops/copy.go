package ops

import (
	"context"
	"fmt"

	"github.com/coreforge/contentrepo/internal/access"
	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
	"github.com/coreforge/contentrepo/internal/nodetype"
	"github.com/coreforge/contentrepo/internal/repoerr"
	"github.com/coreforge/contentrepo/internal/versionmgr"
)

// copyCtx threads the state of one Copy call through its recursive subtree
// walk: the source side's state/access managers (which may belong to a
// different workspace than m), the uuid remap table built as referenceable
// nodes are copied, and the REFERENCE-valued properties that need rewriting
// once the whole remap table is known.
type copyCtx struct {
	srcStates StateSource
	srcAcl    access.Manager
	flag      CopyFlag
	remap     map[ident.NodeId]ident.NodeId
	refs      []*itemstate.PropertyState
}

// Copy deep-copies the subtree rooted at srcID from srcStates into this
// Manager's workspace under destParent/destName, per spec.md §4.6.4.
// srcStates/srcAcl may be this Manager's own states/acl (same-workspace
// copy) or a different session's (cross-workspace copy).
func (m *Manager) Copy(ctx context.Context, srcStates StateSource, srcAcl access.Manager, srcID ident.NodeId, destParent ident.NodeId, destName ident.QualifiedName, flag CopyFlag) (ident.NodeId, error) {
	if srcStates == nil {
		srcStates = m.states
	}
	if srcAcl == nil {
		srcAcl = m.acl
	}
	if !srcAcl.CanReadID(ident.NodeItemId(srcID)) {
		return ident.NilNodeId, repoerr.AccessDenied("ops.copy", fmt.Errorf("read denied on %s", srcID))
	}

	srcSt, err := srcStates.Get(ctx, ident.NodeItemId(srcID), false)
	if err != nil {
		return ident.NilNodeId, repoerr.NotFound("ops.copy", err)
	}
	if err := m.CheckAddNode(ctx, destParent, destName, srcSt.Node.PrimaryType, CheckAll&^CheckReferences); err != nil {
		return ident.NilNodeId, err
	}

	cc := &copyCtx{srcStates: srcStates, srcAcl: srcAcl, flag: flag, remap: map[ident.NodeId]ident.NodeId{}}
	newRootID, err := m.deepCopyNode(ctx, cc, srcID, destParent)
	if err != nil {
		return ident.NilNodeId, err
	}

	for _, prop := range cc.refs {
		changed := false
		for i, v := range prop.Values {
			if mapped, ok := cc.remap[mustParseNodeID(v)]; ok {
				prop.Values[i] = mapped.String()
				changed = true
			}
		}
		if changed {
			if err := m.states.Store(ctx, itemstate.PropertyStateValue(prop)); err != nil {
				return ident.NilNodeId, err
			}
		}
	}

	destParentNode, err := m.node(ctx, destParent)
	if err != nil {
		return ident.NilNodeId, err
	}
	destParentNode.Children = append(destParentNode.Children, itemstate.ChildEntry{
		Name: destName, Index: nextIndex(destParentNode, destName), ID: newRootID,
	})
	if et, err := m.effectiveType(destParentNode); err == nil {
		if def, ok := et.ApplicableChildNodeDef(destName, srcSt.Node.PrimaryType, m.registry); ok {
			if newRoot, err := m.node(ctx, newRootID); err == nil {
				newRoot.DefID = def.ID
				if err := m.states.Store(ctx, itemstate.NodeStateValue(newRoot)); err != nil {
					return ident.NilNodeId, err
				}
			}
		}
	}
	if err := m.states.Store(ctx, itemstate.NodeStateValue(destParentNode)); err != nil {
		return ident.NilNodeId, err
	}
	return newRootID, nil
}

func mustParseNodeID(s string) ident.NodeId {
	id, err := ident.NodeIdFromString(s)
	if err != nil {
		return ident.NilNodeId
	}
	return id
}

// deepCopyNode copies srcID (and its properties and children) into a new
// node under newParent, returning the new node's id. It is grounded on the
// COPY/CLONE/CLONE_REMOVE_EXISTING flag semantics of spec.md §4.6.4.
func (m *Manager) deepCopyNode(ctx context.Context, cc *copyCtx, srcID ident.NodeId, newParent ident.NodeId) (ident.NodeId, error) {
	if already, ok := cc.remap[srcID]; ok {
		// Already copied as part of a shared subtree reached through another
		// parent: just add newParent to the copy's share set.
		copiedSt, err := m.node(ctx, already)
		if err != nil {
			return ident.NilNodeId, err
		}
		if copiedSt.SharedWith == nil {
			copiedSt.SharedWith = make(map[ident.NodeId]bool)
		}
		copiedSt.SharedWith[newParent] = true
		if err := m.states.Store(ctx, itemstate.NodeStateValue(copiedSt)); err != nil {
			return ident.NilNodeId, err
		}
		return already, nil
	}

	srcSt, err := cc.srcStates.Get(ctx, ident.NodeItemId(srcID), false)
	if err != nil {
		return ident.NilNodeId, repoerr.NotFound("ops.copy", err)
	}
	srcNode := srcSt.Node

	mixins := make([]string, 0, len(srcNode.MixinTypes))
	for mx := range srcNode.MixinTypes {
		mixins = append(mixins, mx)
	}
	et, err := m.registry.GetEffectiveNodeType(srcNode.PrimaryType, mixins)
	if err != nil {
		return ident.NilNodeId, repoerr.ConstraintViolation("ops.copy", err)
	}
	isReferenceable := et.IncludesNodeType(nodetype.MixinReferenceable)

	newID, err := m.resolveCopyID(ctx, cc, srcID, newParent, isReferenceable)
	if err != nil {
		return ident.NilNodeId, err
	}
	cc.remap[srcID] = newID

	newState, err := m.states.CreateNew(ctx, ident.NodeItemId(newID), srcNode.PrimaryType, newParent)
	if err != nil {
		return ident.NilNodeId, err
	}
	n := newState.Node
	n.DefID = srcNode.DefID
	n.MixinTypes = make(map[string]bool, len(srcNode.MixinTypes))
	for mx, v := range srcNode.MixinTypes {
		n.MixinTypes[mx] = v
	}

	// COPY re-initializes versionable properties to a fresh version history
	// rather than carrying over the source's (spec.md §4.6.4); CLONE and
	// CLONE_REMOVE_EXISTING preserve identity, including version state.
	var freshHistory *versionmgr.History
	if cc.flag == CopyFresh && et.IncludesNodeType(nodetype.MixinVersionable) &&
		srcNode.PropNames[ident.QualifiedName{Local: nodetype.PropVersionHistory}] {
		hist, err := m.versions.GetVersionHistory(ctx, newID)
		if err != nil {
			return ident.NilNodeId, repoerr.Wrap("ops.copy", err)
		}
		freshHistory = &hist
	}

	for name := range srcNode.PropNames {
		if m.isLockableProp(name) {
			continue
		}
		propID := ident.PropertyId{Parent: srcID, Name: name}
		if cc.srcAcl != nil && !cc.srcAcl.CanReadID(ident.PropertyItemId(propID)) {
			continue
		}
		srcPropSt, err := cc.srcStates.Get(ctx, ident.PropertyItemId(propID), false)
		if err != nil {
			continue
		}
		newPropID := ident.PropertyId{Parent: newID, Name: name}
		newPropState, err := m.states.CreateNew(ctx, ident.PropertyItemId(newPropID), srcPropSt.Prop.ValueType, newID)
		if err != nil {
			return ident.NilNodeId, err
		}
		newProp := newPropState.Prop
		newProp.DefID = srcPropSt.Prop.DefID
		newProp.Multiple = srcPropSt.Prop.Multiple
		values := append([]string(nil), srcPropSt.Prop.Values...)
		switch {
		case name.Local == nodetype.PropUUID && isReferenceable:
			values = []string{newID.String()}
		case freshHistory != nil && name.Local == nodetype.PropVersionHistory:
			values = []string{freshHistory.HistoryID.String()}
		case freshHistory != nil && name.Local == nodetype.PropBaseVersion:
			values = []string{freshHistory.RootVersionID.String()}
		case freshHistory != nil && name.Local == nodetype.PropIsCheckedOut:
			values = []string{"true"}
		case freshHistory != nil && name.Local == nodetype.PropPredecessors:
			values = []string{freshHistory.RootVersionID.String()}
		}
		newProp.Values = values
		if err := m.states.StoreCreated(ctx, newPropState); err != nil {
			return ident.NilNodeId, err
		}
		if n.PropNames == nil {
			n.PropNames = make(map[ident.QualifiedName]bool)
		}
		n.PropNames[name] = true
		if srcPropSt.Prop.ValueType == nodetype.ValueTypeReference {
			cc.refs = append(cc.refs, newProp)
		}
	}

	for _, c := range srcNode.Children {
		if cc.srcAcl != nil && !cc.srcAcl.CanReadID(ident.NodeItemId(c.ID)) {
			continue
		}
		childNewID, err := m.deepCopyNode(ctx, cc, c.ID, newID)
		if err != nil {
			return ident.NilNodeId, err
		}
		n.Children = append(n.Children, itemstate.ChildEntry{
			Name: c.Name, Index: nextIndex(n, c.Name), ID: childNewID,
		})
	}

	if err := m.states.StoreCreated(ctx, newState); err != nil {
		return ident.NilNodeId, err
	}
	return newID, nil
}

// resolveCopyID picks the new node's id according to flag: CopyFresh always
// allocates one, Clone/CloneRemoveExisting reuse srcID for referenceable
// nodes so identity survives the copy (spec.md §4.6.4).
func (m *Manager) resolveCopyID(ctx context.Context, cc *copyCtx, srcID ident.NodeId, newParent ident.NodeId, isReferenceable bool) (ident.NodeId, error) {
	if cc.flag == CopyFresh || !isReferenceable {
		return ident.NewNodeId(), nil
	}

	existing, err := m.states.Get(ctx, ident.NodeItemId(srcID), false)
	if err != nil {
		return srcID, nil
	}
	if cc.flag == Clone {
		return ident.NilNodeId, repoerr.ItemExists("ops.copy", fmt.Errorf("referenceable node %s already exists in destination workspace", srcID))
	}
	// CloneRemoveExisting: remove the conflicting existing node first,
	// unless it is newParent itself or an ancestor of it — removing it would
	// otherwise cascade into destroying newParent's own subtree.
	if existing.Node.ID.Equal(newParent) {
		return ident.NilNodeId, repoerr.ConstraintViolation("ops.copy", fmt.Errorf("%s is an ancestor of the copy destination", srcID))
	}
	if anc, err := m.hier.IsAncestor(ctx, existing.Node.ID, newParent); err == nil && anc {
		return ident.NilNodeId, repoerr.ConstraintViolation("ops.copy", fmt.Errorf("%s is an ancestor of the copy destination", srcID))
	}
	if anc, err := m.hier.IsShareAncestor(ctx, existing.Node.ID, newParent); err == nil && anc {
		return ident.NilNodeId, repoerr.ConstraintViolation("ops.copy", fmt.Errorf("%s is a share-ancestor of the copy destination", srcID))
	}
	if err := m.CheckRemoveNode(ctx, srcID, existing.Node.ParentID, CheckAll&^CheckReferences); err != nil {
		return ident.NilNodeId, err
	}
	if err := m.RemoveNodeState(ctx, srcID); err != nil {
		return ident.NilNodeId, err
	}
	return srcID, nil
}

func (m *Manager) isLockableProp(name ident.QualifiedName) bool {
	switch name.Local {
	case "lockOwner", "lockIsDeep":
		return true
	default:
		return false
	}
}
