// Package ops implements the Batched Operations (component J of spec.md
// §4.6): checkAddNode/checkRemoveNode, clone/copy/move, and the
// createNodeState/createPropertyState/removeNodeState primitives used by the
// Item layer and directly by cmd/repoctl.
package ops

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coreforge/contentrepo/internal/access"
	"github.com/coreforge/contentrepo/internal/hierarchy"
	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
	"github.com/coreforge/contentrepo/internal/nodetype"
	"github.com/coreforge/contentrepo/internal/repoerr"
	"github.com/coreforge/contentrepo/internal/versionmgr"
)

// CheckOption is a bitwise-OR set of validation categories, per spec.md
// §4.6.
type CheckOption int

const (
	CheckAccess CheckOption = 1 << iota
	CheckLock
	CheckVersioning
	CheckConstraints
	CheckReferences
)

func (o CheckOption) has(flag CheckOption) bool { return o&flag != 0 }

// CheckAll enables every category.
const CheckAll = CheckAccess | CheckLock | CheckVersioning | CheckConstraints | CheckReferences

// CopyFlag selects copy's uuid-reuse behavior, per spec.md §4.6.4.
type CopyFlag int

const (
	CopyFresh CopyFlag = iota
	Clone
	CloneRemoveExisting
)

// StateSource is the session surface ops depends on.
type StateSource interface {
	Get(ctx context.Context, id ident.ItemId, includeAttic bool) (itemstate.State, error)
	CreateNew(ctx context.Context, id ident.ItemId, typeOrName string, parentID ident.NodeId) (itemstate.State, error)
	StoreCreated(ctx context.Context, state itemstate.State) error
	Store(ctx context.Context, state itemstate.State) error
	Destroy(ctx context.Context, state itemstate.State) error
}

// LockChecker abstracts the lock manager consulted for the LOCK check
// option; a no-op implementation is used where locking is not wired up.
type LockChecker interface {
	// CheckLock returns an error if the node nodeID is locked by a session
	// other than the caller's.
	CheckLock(ctx context.Context, nodeID ident.NodeId) error
}

// NoLock never reports a lock conflict.
type NoLock struct{}

func (NoLock) CheckLock(context.Context, ident.NodeId) error { return nil }

// ReferenceChecker abstracts the node-references index consulted for the
// REFERENCES check option; satisfied by persist.Manager.
type ReferenceChecker interface {
	HasNodeReferences(ctx context.Context, id ident.NodeId) (bool, error)
}

// NoReferences reports no node is ever referenced; used where the
// underlying persistent layer does not track references.
type NoReferences struct{}

func (NoReferences) HasNodeReferences(context.Context, ident.NodeId) (bool, error) { return false, nil }

// Manager implements the batched operations over a session, hierarchy
// manager, node-type registry and access manager.
type Manager struct {
	states   StateSource
	hier     *hierarchy.Manager
	registry nodetype.Registry
	acl      access.Manager
	locks    LockChecker
	refs     ReferenceChecker
	versions versionmgr.Manager
	log      *slog.Logger
}

// New creates a Manager. acl defaults to access.AllowAll{}, locks to NoLock{},
// refs to NoReferences{}, and the version manager used to re-initialize
// version histories on CopyFresh (spec.md §4.6.4) to versionmgr.InMemory{}.
func New(states StateSource, hier *hierarchy.Manager, registry nodetype.Registry, acl access.Manager, locks LockChecker, refs ReferenceChecker, log *slog.Logger) *Manager {
	return NewWithVersionManager(states, hier, registry, acl, locks, refs, nil, log)
}

// NewWithVersionManager is New with an explicit version manager, for callers
// that share one version manager instance between internal/item and
// internal/ops.
func NewWithVersionManager(states StateSource, hier *hierarchy.Manager, registry nodetype.Registry, acl access.Manager, locks LockChecker, refs ReferenceChecker, versions versionmgr.Manager, log *slog.Logger) *Manager {
	if acl == nil {
		acl = access.AllowAll{}
	}
	if locks == nil {
		locks = NoLock{}
	}
	if refs == nil {
		refs = NoReferences{}
	}
	if versions == nil {
		versions = versionmgr.InMemory{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{states: states, hier: hier, registry: registry, acl: acl, locks: locks, refs: refs, versions: versions, log: log}
}

func (m *Manager) node(ctx context.Context, id ident.NodeId) (*itemstate.NodeState, error) {
	st, err := m.states.Get(ctx, ident.NodeItemId(id), false)
	if err != nil {
		return nil, repoerr.NotFound("ops.node", err)
	}
	return st.Node, nil
}

func (m *Manager) effectiveType(n *itemstate.NodeState) (nodetype.EffectiveNodeType, error) {
	mixins := make([]string, 0, len(n.MixinTypes))
	for name := range n.MixinTypes {
		mixins = append(mixins, name)
	}
	et, err := m.registry.GetEffectiveNodeType(n.PrimaryType, mixins)
	if err != nil {
		return nil, repoerr.ConstraintViolation("ops.effectiveType", err)
	}
	return et, nil
}

// checkVersioningAncestor walks up from parentID (inclusive) looking for the
// nearest ancestor carrying an isCheckedOut property; per spec.md §4.6.1, if
// none carries the property the check passes.
func (m *Manager) checkVersioningAncestor(ctx context.Context, parentID ident.NodeId) error {
	cur := parentID
	for {
		propID := ident.PropertyId{Parent: cur, Name: ident.QualifiedName{Local: nodetype.PropIsCheckedOut}}
		st, err := m.states.Get(ctx, ident.PropertyItemId(propID), false)
		if err == nil && len(st.Prop.Values) > 0 {
			if st.Prop.Values[0] != "true" {
				return repoerr.Versioning("ops.checkVersioning", fmt.Errorf("%s is checked in", cur))
			}
			return nil
		}
		node, nerr := m.node(ctx, cur)
		if nerr != nil {
			return nil
		}
		if !node.HasParent {
			return nil
		}
		cur = node.ParentID
	}
}

// CheckAddNode validates adding a child named childName of type childTypeName
// under parent, per spec.md §4.6.1.
func (m *Manager) CheckAddNode(ctx context.Context, parent ident.NodeId, childName ident.QualifiedName, childTypeName string, opts CheckOption) error {
	parentNode, err := m.node(ctx, parent)
	if err != nil {
		return err
	}

	if opts.has(CheckLock) {
		if err := m.locks.CheckLock(ctx, parent); err != nil {
			return repoerr.Lock("ops.checkAddNode", err)
		}
	}
	if opts.has(CheckVersioning) {
		if err := m.checkVersioningAncestor(ctx, parent); err != nil {
			return err
		}
	}
	if opts.has(CheckAccess) {
		parentPath, perr := m.hier.PathOf(ctx, parent)
		if perr == nil {
			if !m.acl.CanReadPath(parentPath) {
				return repoerr.AccessDenied("ops.checkAddNode", fmt.Errorf("read denied on %s", parentPath))
			}
			if !m.acl.IsGrantedPathChild(parentPath, childName, access.AddNode) {
				return repoerr.AccessDenied("ops.checkAddNode", fmt.Errorf("add-node denied on %s/%s", parentPath, childName.Local))
			}
		}
	}
	if opts.has(CheckConstraints) {
		parentDef, ok := m.registry.GetNodeDef(parentNode.DefID)
		if ok && parentDef.Protected {
			return repoerr.ConstraintViolation("ops.checkAddNode", fmt.Errorf("%s is protected", parent))
		}
		et, err := m.effectiveType(parentNode)
		if err != nil {
			return err
		}
		if err := et.CheckAddNodeConstraints(childName, childTypeName, m.registry); err != nil {
			return repoerr.ConstraintViolation("ops.checkAddNode", err)
		}
		existing := parentNode.ChildrenNamed(childName)
		if len(existing) > 0 {
			newDef, ok := et.ApplicableChildNodeDef(childName, childTypeName, m.registry)
			if !ok || !newDef.AllowSameNameSibs {
				return repoerr.ItemExists("ops.checkAddNode", fmt.Errorf("%s already has a child named %s and same-name siblings are not allowed", parent, childName.Local))
			}
			for _, c := range existing {
				existingNode, err := m.node(ctx, c.ID)
				if err != nil {
					continue
				}
				existingDef, ok := m.registry.GetNodeDef(existingNode.DefID)
				if ok && !existingDef.AllowSameNameSibs {
					return repoerr.ItemExists("ops.checkAddNode", fmt.Errorf("existing sibling %s does not allow same-name siblings", c.ID))
				}
			}
		}
	}
	return nil
}

// CheckRemoveNode validates removing target (child of parent), per spec.md
// §4.6.2.
func (m *Manager) CheckRemoveNode(ctx context.Context, target, parent ident.NodeId, opts CheckOption) error {
	if target.Equal(m.hier.Root()) {
		return repoerr.ConstraintViolation("ops.checkRemoveNode", fmt.Errorf("cannot remove the root"))
	}

	targetNode, err := m.node(ctx, target)
	if err != nil {
		return err
	}

	if opts.has(CheckLock) {
		if err := m.locks.CheckLock(ctx, parent); err != nil {
			return repoerr.Lock("ops.checkRemoveNode", err)
		}
	}
	if opts.has(CheckVersioning) {
		if err := m.checkVersioningAncestor(ctx, parent); err != nil {
			return err
		}
	}
	if opts.has(CheckAccess) {
		targetPath, perr := m.hier.PathOf(ctx, target)
		if perr == nil {
			if !m.acl.CanReadPath(targetPath) {
				return repoerr.AccessDenied("ops.checkRemoveNode", fmt.Errorf("read denied on %s", targetPath))
			}
			if !m.acl.IsGrantedPath(targetPath, access.RemoveNode) {
				return repoerr.AccessDenied("ops.checkRemoveNode", fmt.Errorf("remove denied on %s", targetPath))
			}
		}
	}
	if opts.has(CheckConstraints) {
		parentNode, err := m.node(ctx, parent)
		if err == nil {
			if parentDef, ok := m.registry.GetNodeDef(parentNode.DefID); ok && parentDef.Protected {
				return repoerr.ConstraintViolation("ops.checkRemoveNode", fmt.Errorf("parent %s is protected", parent))
			}
		}
		if targetDef, ok := m.registry.GetNodeDef(targetNode.DefID); ok {
			if targetDef.Mandatory {
				return repoerr.ConstraintViolation("ops.checkRemoveNode", fmt.Errorf("%s is mandatory", target))
			}
			if targetDef.Protected {
				return repoerr.ConstraintViolation("ops.checkRemoveNode", fmt.Errorf("%s is protected", target))
			}
		}
	}
	if opts.has(CheckReferences) {
		et, err := m.effectiveType(targetNode)
		if err == nil && et.IncludesNodeType(nodetype.MixinReferenceable) {
			has, herr := m.refs.HasNodeReferences(ctx, target)
			if herr == nil && has {
				return repoerr.ReferentialIntegrity("ops.checkRemoveNode", fmt.Errorf("%s is still referenced", target))
			}
		}
	}
	return nil
}
