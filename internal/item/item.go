// Package item implements the Item facade (component I of spec.md §4.5):
// save/refresh/remove orchestration over a single node's subtree, built on
// top of the session overlay, hierarchy manager, item manager, node-type
// registry, access manager and batched operations.
package item

import (
	"context"
	"fmt"

	"github.com/coreforge/contentrepo/internal/access"
	"github.com/coreforge/contentrepo/internal/hierarchy"
	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemmgr"
	"github.com/coreforge/contentrepo/internal/itemstate"
	"github.com/coreforge/contentrepo/internal/nodetype"
	"github.com/coreforge/contentrepo/internal/ops"
	"github.com/coreforge/contentrepo/internal/repoerr"
	"github.com/coreforge/contentrepo/internal/session"
	"github.com/coreforge/contentrepo/internal/versionmgr"
)

// versionableAutoProps are the four properties spec.md §4.5.3 writes when a
// node first becomes versionable; §4.5.2 excludes them from the mandatory-
// property check since this save is what is about to create them.
var versionableAutoProps = map[string]bool{
	nodetype.PropVersionHistory: true,
	nodetype.PropBaseVersion:    true,
	nodetype.PropIsCheckedOut:   true,
	nodetype.PropPredecessors:   true,
}

// Item wraps a single node id with the machinery needed to save, refresh and
// remove its subtree. Item is a thin façade: it owns no state of its own
// beyond the id, reading everything else through its collaborators.
type Item struct {
	id       ident.NodeId
	sess     *session.Session
	hier     *hierarchy.Manager
	items    *itemmgr.Manager
	registry nodetype.Registry
	acl      access.Manager
	ops      *ops.Manager
	versions versionmgr.Manager
}

// New creates an Item facade for id, using versionmgr.InMemory{} for version
// history initialization. Use NewWithVersionManager to supply a different
// version manager.
func New(id ident.NodeId, sess *session.Session, hier *hierarchy.Manager, items *itemmgr.Manager, registry nodetype.Registry, acl access.Manager, opsmgr *ops.Manager) *Item {
	return NewWithVersionManager(id, sess, hier, items, registry, acl, opsmgr, versionmgr.InMemory{})
}

// NewWithVersionManager creates an Item facade for id with an explicit
// version manager, per the Version manager contract of spec.md §6.
func NewWithVersionManager(id ident.NodeId, sess *session.Session, hier *hierarchy.Manager, items *itemmgr.Manager, registry nodetype.Registry, acl access.Manager, opsmgr *ops.Manager, versions versionmgr.Manager) *Item {
	if acl == nil {
		acl = access.AllowAll{}
	}
	if versions == nil {
		versions = versionmgr.InMemory{}
	}
	return &Item{id: id, sess: sess, hier: hier, items: items, registry: registry, acl: acl, ops: opsmgr, versions: versions}
}

func (it *Item) underSubtree(ctx context.Context) func(ident.NodeId) bool {
	return func(candidate ident.NodeId) bool {
		anc, err := it.hier.IsAncestor(ctx, it.id, candidate)
		return err == nil && anc
	}
}

// Save validates and commits every transient change in this item's subtree,
// per spec.md §4.5. Because the underlying session overlay has no
// per-subtree partial-commit machinery (session.Update always commits the
// entire overlay), Save validates only its own subtree's dirty/removed set
// but the actual persist call necessarily spans the whole session — callers
// driving more than one Item concurrently should treat Save as session-wide.
func (it *Item) Save(ctx context.Context) error {
	under := it.underSubtree(ctx)
	dirty := it.sess.DescendantTransients(it.id, under)
	removed := it.sess.DescendantTransientsInAttic(it.id, under)

	if len(dirty) == 0 && len(removed) == 0 {
		return nil
	}

	for _, st := range dirty {
		switch st.GetStatus() {
		case itemstate.StatusStaleModified, itemstate.StatusStaleDestroyed:
			return repoerr.InvalidItemState("item.save", fmt.Errorf("%s is stale and must be refreshed before saving", st.ID()))
		case itemstate.StatusUndefined:
			return repoerr.InvalidItemState("item.save", fmt.Errorf("%s carries an undefined status", st.ID()))
		}
	}

	if err := it.validateIndependence(dirty, removed); err != nil {
		return err
	}

	if err := it.validateAccess(dirty, removed); err != nil {
		return err
	}
	if err := it.validateNodeTypes(ctx, dirty); err != nil {
		return err
	}

	// spec.md §4.5.3: process shareable/versionable mixin transitions. This
	// may create additional transient property states (a version history's
	// auto-properties); those are already recorded in the session overlay
	// by the time this returns, so the dirty set the caller reasoned about
	// above does not need to be recomputed for persistence purposes, only
	// for anyone re-inspecting it afterward.
	if _, err := it.processShareableAndVersionableTransitions(ctx, dirty); err != nil {
		return err
	}

	return it.sess.Update(ctx)
}

// processShareableAndVersionableTransitions implements spec.md §4.5.3: a
// dirty node whose effective type has just gained the shareable mixin gets
// its shared-parent set seeded with its current parent; a dirty node that
// has just gained the versionable mixin (and has no versionHistory property
// yet) gets a fresh version history and the four auto-properties. Returns
// the newly created property states. Save discards them and does not
// recompute the dirty set, so these states are not passed through
// validateAccess or validateNodeTypes; the session Update commits them with
// the rest of the overlay.
func (it *Item) processShareableAndVersionableTransitions(ctx context.Context, dirty []itemstate.State) ([]itemstate.State, error) {
	var extra []itemstate.State
	for _, st := range dirty {
		if st.IsProperty() || st.Node == nil {
			continue
		}
		n := st.Node
		mixins := make([]string, 0, len(n.MixinTypes))
		for mx := range n.MixinTypes {
			mixins = append(mixins, mx)
		}
		et, err := it.registry.GetEffectiveNodeType(n.PrimaryType, mixins)
		if err != nil {
			return nil, repoerr.ConstraintViolation("item.save", err)
		}

		if et.IncludesNodeType(nodetype.MixinShareable) && len(n.SharedWith) == 0 {
			if n.SharedWith == nil {
				n.SharedWith = make(map[ident.NodeId]bool)
			}
			if n.HasParent {
				n.SharedWith[n.ParentID] = true
			}
			if err := it.sess.Store(ctx, itemstate.NodeStateValue(n)); err != nil {
				return nil, err
			}
		}

		if et.IncludesNodeType(nodetype.MixinVersionable) && !n.PropNames[ident.QualifiedName{Local: nodetype.PropVersionHistory}] {
			created, err := it.initVersionHistory(ctx, n)
			if err != nil {
				return nil, err
			}
			extra = append(extra, created...)
			if err := it.sess.Store(ctx, itemstate.NodeStateValue(n)); err != nil {
				return nil, err
			}
		}
	}
	return extra, nil
}

// initVersionHistory requests a history from the version manager and
// records the four auto-properties spec.md §4.5.3 names on n, returning the
// newly created property states.
func (it *Item) initVersionHistory(ctx context.Context, n *itemstate.NodeState) ([]itemstate.State, error) {
	hist, err := it.versions.GetVersionHistory(ctx, n.ID)
	if err != nil {
		return nil, repoerr.Wrap("item.save", err)
	}

	autoProps := []struct {
		name   string
		values []string
	}{
		{nodetype.PropVersionHistory, []string{hist.HistoryID.String()}},
		{nodetype.PropBaseVersion, []string{hist.RootVersionID.String()}},
		{nodetype.PropIsCheckedOut, []string{"true"}},
		{nodetype.PropPredecessors, []string{hist.RootVersionID.String()}},
	}

	if n.PropNames == nil {
		n.PropNames = make(map[ident.QualifiedName]bool)
	}
	created := make([]itemstate.State, 0, len(autoProps))
	for _, ap := range autoProps {
		qn := ident.QualifiedName{Local: ap.name}
		propID := ident.PropertyId{Parent: n.ID, Name: qn}
		state, err := it.sess.CreateNew(ctx, ident.PropertyItemId(propID), nodetype.ValueTypeString, n.ID)
		if err != nil {
			return nil, err
		}
		state.Prop.Values = ap.values
		state.Prop.Multiple = len(ap.values) > 1
		if err := it.sess.StoreCreated(ctx, state); err != nil {
			return nil, err
		}
		n.PropNames[qn] = true
		created = append(created, state)
	}
	return created, nil
}

// validateIndependence implements spec.md §4.5 step 5: every transient node
// in dirty ∪ removed is checked against its dependency ids (old/new parent on
// a move, the parent on a rename, added/removed child entries, and — for a
// removed shareable node — every id in its shared-parent set). A dependency
// id that itself carries transient state in this session must already be
// part of the affected set (dirty ∪ removed); otherwise the caller must save
// from a higher node, per the spec's ConstraintViolation.
func (it *Item) validateIndependence(dirty, removed []itemstate.State) error {
	affected := make(map[ident.NodeId]bool, len(dirty)+len(removed))
	for _, st := range dirty {
		if !st.IsProperty() {
			affected[st.Node.ID] = true
		}
	}
	for _, st := range removed {
		if !st.IsProperty() {
			affected[st.Node.ID] = true
		}
	}

	check := func(depID ident.NodeId) error {
		if depID.IsNil() || affected[depID] {
			return nil
		}
		if !it.sess.HasTransient(ident.NodeItemId(depID)) {
			return nil
		}
		return repoerr.ConstraintViolation("item.save", fmt.Errorf(
			"%s depends on node %s, which has uncommitted changes outside this save; save from a higher node", it.id, depID))
	}

	for _, st := range dirty {
		if st.IsProperty() || st.Node == nil {
			continue
		}
		n := st.Node
		if n.Overlayed == nil {
			continue
		}
		old := n.Overlayed
		var oldParent, newParent ident.NodeId
		if old.HasParent {
			oldParent = old.ParentID
		}
		if n.HasParent {
			newParent = n.ParentID
		}
		if old.HasParent != n.HasParent || !oldParent.Equal(newParent) {
			if old.HasParent {
				if err := check(oldParent); err != nil {
					return err
				}
			}
			if n.HasParent {
				if err := check(newParent); err != nil {
					return err
				}
			}
		} else if n.HasParent && renamedUnderSameParent(old, n) {
			if err := check(newParent); err != nil {
				return err
			}
		}

		for _, added := range diffChildEntries(n.Children, old.Children) {
			if err := check(added); err != nil {
				return err
			}
		}
		for _, removedChild := range diffChildEntries(old.Children, n.Children) {
			if err := check(removedChild); err != nil {
				return err
			}
		}
	}

	for _, st := range removed {
		if st.IsProperty() || st.Node == nil {
			continue
		}
		n := st.Node
		if n.HasParent {
			if err := check(n.ParentID); err != nil {
				return err
			}
		}
		if n.IsShareable() {
			for sharedParent := range n.SharedWith {
				if err := check(sharedParent); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// renamedUnderSameParent reports whether old and current carry the same set
// of child ids but any id's name differs between them — a rename detected on
// the parent, per spec.md §4.5's "matching renamed-child-entry" rule.
func renamedUnderSameParent(old, current *itemstate.NodeState) bool {
	oldNames := make(map[ident.NodeId]ident.QualifiedName, len(old.Children))
	for _, c := range old.Children {
		oldNames[c.ID] = c.Name
	}
	for _, c := range current.Children {
		if prevName, ok := oldNames[c.ID]; ok && !prevName.Equal(c.Name) {
			return true
		}
	}
	return false
}

// diffChildEntries returns the ids present in a's child entries but not in
// b's (used both for added — a=current, b=old — and removed — a=old, b=current).
func diffChildEntries(a, b []itemstate.ChildEntry) []ident.NodeId {
	inB := make(map[ident.NodeId]bool, len(b))
	for _, c := range b {
		inB[c.ID] = true
	}
	var out []ident.NodeId
	for _, c := range a {
		if !inB[c.ID] {
			out = append(out, c.ID)
		}
	}
	return out
}

// validateAccess implements spec.md §4.5.1: every dirty state must be
// granted AddNode (nodes) or SetProperty (properties), and every removed
// state RemoveNode (nodes) or RemoveProperty (properties).
func (it *Item) validateAccess(dirty, removed []itemstate.State) error {
	for _, st := range dirty {
		perm := access.SetProperty
		if !st.IsProperty() {
			perm = access.AddNode
		}
		if !it.acl.IsGrantedID(st.ID(), perm) {
			return repoerr.AccessDenied("item.save", fmt.Errorf("%s denied on %s", perm, st.ID()))
		}
	}
	for _, st := range removed {
		perm := access.RemoveProperty
		if !st.IsProperty() {
			perm = access.RemoveNode
		}
		if !it.acl.IsGrantedID(st.ID(), perm) {
			return repoerr.AccessDenied("item.save", fmt.Errorf("%s denied on %s", perm, st.ID()))
		}
	}
	return nil
}

// validateNodeTypes implements spec.md §4.5.2: every dirty node must still
// satisfy its effective type's mandatory property and child-node
// definitions before the save can commit.
func (it *Item) validateNodeTypes(ctx context.Context, dirty []itemstate.State) error {
	for _, st := range dirty {
		if st.IsProperty() || st.Node == nil {
			continue
		}
		n := st.Node
		mixins := make([]string, 0, len(n.MixinTypes))
		for mx := range n.MixinTypes {
			mixins = append(mixins, mx)
		}
		et, err := it.registry.GetEffectiveNodeType(n.PrimaryType, mixins)
		if err != nil {
			return repoerr.ConstraintViolation("item.save", err)
		}
		for _, pd := range et.MandatoryPropDefs() {
			if versionableAutoProps[pd.Name.Local] && et.IncludesNodeType(nodetype.MixinVersionable) {
				continue
			}
			if !n.PropNames[pd.Name] {
				return repoerr.ConstraintViolation("item.save", fmt.Errorf("%s is missing mandatory property %s", n.ID, pd.Name.Local))
			}
		}
		for _, nd := range et.MandatoryNodeDefs() {
			if len(n.ChildrenNamed(nd.Name)) == 0 {
				return repoerr.ConstraintViolation("item.save", fmt.Errorf("%s is missing mandatory child node %s", n.ID, nd.Name.Local))
			}
		}
	}
	return nil
}

// Refresh implements spec.md §4.5: keepChanges=true is a no-op; otherwise
// every transient modification and pending removal in this subtree is
// discarded, reverting to the persistent twin. Refreshing away a brand-new
// (never-persisted) state is rejected.
func (it *Item) Refresh(ctx context.Context, keepChanges bool) error {
	if keepChanges {
		return nil
	}
	under := it.underSubtree(ctx)
	dirty := it.sess.DescendantTransients(it.id, under)
	removed := it.sess.DescendantTransientsInAttic(it.id, under)

	for _, st := range dirty {
		switch st.GetStatus() {
		case itemstate.StatusNew:
			return repoerr.InvalidItemState("item.refresh", fmt.Errorf("%s has never been saved and cannot be refreshed", st.ID()))
		case itemstate.StatusStaleModified, itemstate.StatusStaleDestroyed, itemstate.StatusExistingModified:
			it.sess.DisposeTransient(st)
		}
	}
	for _, st := range removed {
		it.sess.DisposeTransientInAttic(st)
	}
	return nil
}

// Remove schedules this item's node (and its subtree) for removal, per
// spec.md §4.6.8, after validating the removal against spec.md §4.6.2's
// checks.
func (it *Item) Remove(ctx context.Context) error {
	d, err := it.items.GetByID(ctx, ident.NodeItemId(it.id))
	if err != nil {
		return err
	}
	if err := it.ops.CheckRemoveNode(ctx, it.id, d.ParentID, ops.CheckAll); err != nil {
		return err
	}
	return it.ops.RemoveNodeState(ctx, it.id)
}
