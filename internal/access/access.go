// Package access defines the Access Manager consumer contract (AC) from
// spec.md §6: a narrow permission-check surface that the Item Manager,
// Item, and Batched Operations layers consult but never implement — the
// concrete policy (ACL store, role mapping, …) is out of scope per spec.md
// §1, same as the node-type DSL grammar is for internal/nodetype.
package access

import "github.com/coreforge/contentrepo/internal/ident"

// Permission is one of the operations an access manager can grant or deny.
type Permission int

const (
	Read Permission = iota
	AddNode
	SetProperty
	RemoveNode
	RemoveProperty
)

func (p Permission) String() string {
	switch p {
	case Read:
		return "READ"
	case AddNode:
		return "ADD_NODE"
	case SetProperty:
		return "SET_PROPERTY"
	case RemoveNode:
		return "REMOVE_NODE"
	case RemoveProperty:
		return "REMOVE_PROPERTY"
	default:
		return "UNKNOWN"
	}
}

// Manager is the Access Manager consumer contract.
type Manager interface {
	// IsGrantedPath reports whether permission is granted at path.
	IsGrantedPath(path ident.Path, permission Permission) bool
	// IsGrantedPathChild reports whether permission is granted for a child
	// named childName directly under path (used for ADD_NODE/SET_PROPERTY
	// checks before the child exists).
	IsGrantedPathChild(path ident.Path, childName ident.QualifiedName, permission Permission) bool
	// IsGrantedID reports whether permission is granted at id.
	IsGrantedID(id ident.ItemId, permission Permission) bool
	// CanReadPath is shorthand for IsGrantedPath(path, Read).
	CanReadPath(path ident.Path) bool
	// CanReadID is shorthand for IsGrantedID(id, Read).
	CanReadID(id ident.ItemId) bool
}

// AllowAll is a trivial Manager that grants every permission; used as the
// default in single-principal deployments (cmd/repoctl) and as a baseline in
// tests that are not exercising access control itself.
type AllowAll struct{}

func (AllowAll) IsGrantedPath(ident.Path, Permission) bool                          { return true }
func (AllowAll) IsGrantedPathChild(ident.Path, ident.QualifiedName, Permission) bool { return true }
func (AllowAll) IsGrantedID(ident.ItemId, Permission) bool                           { return true }
func (AllowAll) CanReadPath(ident.Path) bool                                         { return true }
func (AllowAll) CanReadID(ident.ItemId) bool                                         { return true }

var _ Manager = AllowAll{}

// DenySet denies exactly the (id, permission) pairs recorded in Denied and
// grants everything else; used in tests to exercise the AccessDenied and
// disclosure-policy paths without a full policy engine.
type DenySet struct {
	Denied map[ident.ItemId]map[Permission]bool
}

func NewDenySet() *DenySet {
	return &DenySet{Denied: make(map[ident.ItemId]map[Permission]bool)}
}

func (d *DenySet) Deny(id ident.ItemId, p Permission) {
	m, ok := d.Denied[id]
	if !ok {
		m = make(map[Permission]bool)
		d.Denied[id] = m
	}
	m[p] = true
}

func (d *DenySet) IsGrantedID(id ident.ItemId, p Permission) bool {
	m, ok := d.Denied[id]
	if !ok {
		return true
	}
	return !m[p]
}

func (d *DenySet) IsGrantedPath(ident.Path, Permission) bool { return true }
func (d *DenySet) IsGrantedPathChild(ident.Path, ident.QualifiedName, Permission) bool {
	return true
}
func (d *DenySet) CanReadPath(ident.Path) bool    { return true }
func (d *DenySet) CanReadID(id ident.ItemId) bool { return d.IsGrantedID(id, Read) }

var _ Manager = (*DenySet)(nil)
