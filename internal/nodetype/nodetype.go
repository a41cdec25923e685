// Package nodetype defines the node-type registry contract consumed by the
// item-state engine. The registry itself (parsing a node-type DSL, XML
// configuration, DTD resolution) is out of scope per spec.md §1; this
// package only defines the interface the rest of the engine depends on, plus
// a minimal in-memory implementation (internal/nodetype/seed) used for tests
// and the repoctl CLI.
package nodetype

import "github.com/coreforge/contentrepo/internal/ident"

// DefId identifies a node or property definition within a registered node
// type. Opaque to callers outside the registry.
type DefId string

// NodeDef describes how a child node is declared by its parent's effective
// type: name, required/default primary types, multiplicity and protection.
type NodeDef struct {
	ID                DefId
	Name              ident.QualifiedName // zero value means "residual" (any name)
	RequiredPrimary   []string            // node must be one of these types (or derived)
	DefaultPrimary    string              // primary type used when none is specified
	AllowSameNameSibs bool
	Mandatory         bool
	Protected         bool
	AutoCreate        bool
}

// PropDef describes how a property is declared by its parent's effective
// type.
type PropDef struct {
	ID           DefId
	Name         ident.QualifiedName
	RequiredType string // "" means any type is acceptable
	Multiple     bool
	Mandatory    bool
	Protected    bool
	AutoCreate   bool
	// ValueConstraints, when non-empty and RequiredType=="Reference", lists
	// the node type names (primary or mixin) an accepted REFERENCE target
	// must include; constraints are OR-combined per spec.md §4.5.2.
	ValueConstraints []string
	DefaultValues    []string
}

// EffectiveNodeType is the closure over a primary type and its mixins: the
// full set of child/property definitions and constraints that apply to a
// node carrying that type combination.
type EffectiveNodeType interface {
	// IncludesNodeType reports whether name is the primary type, a mixin, or
	// a supertype of either.
	IncludesNodeType(name string) bool

	MandatoryPropDefs() []PropDef
	MandatoryNodeDefs() []NodeDef
	AutoCreatePropDefs() []PropDef
	AutoCreateNodeDefs() []NodeDef

	// ApplicablePropertyDef finds the definition that would govern a
	// property named name with the given required type and multiplicity.
	// Returns ok=false if no definition applies.
	ApplicablePropertyDef(name ident.QualifiedName, valueType string, multiple bool) (PropDef, bool)

	// ApplicableChildNodeDef finds the definition that would govern a child
	// node named name of primary type childType, consulting registry to
	// resolve type inheritance. Returns ok=false if disallowed.
	ApplicableChildNodeDef(name ident.QualifiedName, childType string, registry Registry) (NodeDef, bool)

	// CheckAddNodeConstraints reports an error (not nil) if adding a child
	// named name of childType is forbidden by this effective type, beyond
	// what ApplicableChildNodeDef already reports (e.g. protected parent).
	CheckAddNodeConstraints(name ident.QualifiedName, childType string, registry Registry) error

	// CheckSetPropertyValueConstraints validates values against def's value
	// constraints (type-specific range/pattern/reference checks other than
	// REFERENCE-target resolution, which the caller performs via the
	// session since it requires resolving uuids).
	CheckSetPropertyValueConstraints(def PropDef, values []string) error

	// PrimaryTypeName returns the primary type name this effective type was
	// built from.
	PrimaryTypeName() string

	// MixinTypeNames returns the mixin type names this effective type was
	// built from.
	MixinTypeNames() []string
}

// Registry looks up effective node types and individual definitions by id.
// This is component C of the spec: a consumer-only contract, implemented
// externally (e.g. by a DSL-driven registry not covered by this module).
type Registry interface {
	GetNodeDef(id DefId) (NodeDef, bool)
	GetPropDef(id DefId) (PropDef, bool)
	GetEffectiveNodeType(primary string, mixins []string) (EffectiveNodeType, error)

	// IsNodeTypeDerivedFrom reports whether child equals or is derived from
	// ancestor in the type hierarchy.
	IsNodeTypeDerivedFrom(child, ancestor string) bool
}

// Well-known built-in mixin/type names referenced by spec.md.
const (
	MixinReferenceable = "mix:referenceable"
	MixinShareable     = "mix:shareable"
	MixinVersionable   = "mix:versionable"
	MixinLockable      = "mix:lockable"
	TypeHierarchyNode  = "nt:hierarchyNode"
	TypeVersion        = "nt:version"
	TypeVersionHistory = "nt:versionHistory"
	TypeResource       = "nt:resource"

	PropUUID             = "uuid"
	PropPrimaryType      = "primaryType"
	PropMixinTypes       = "mixinTypes"
	PropCreated          = "created"
	PropLastModified     = "lastModified"
	PropVersionHistory   = "versionHistory"
	PropBaseVersion      = "baseVersion"
	PropIsCheckedOut     = "isCheckedOut"
	PropPredecessors     = "predecessors"

	ValueTypeReference = "Reference"
	ValueTypeString    = "String"
)
