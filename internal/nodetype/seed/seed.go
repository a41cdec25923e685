// Package seed provides a TOML-driven, in-memory nodetype.Registry used by
// tests and the repoctl CLI to exercise the engine without a full node-type
// DSL compiler (out of scope per spec.md §1). Modeled on the teacher's
// pattern of loading small fixture configuration with BurntSushi/toml.
package seed

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/nodetype"
)

// PropSpec is the TOML shape of a property definition.
type PropSpec struct {
	Name             string   `toml:"name"`
	Type             string   `toml:"type"`
	Multiple         bool     `toml:"multiple"`
	Mandatory        bool     `toml:"mandatory"`
	Protected        bool     `toml:"protected"`
	AutoCreate       bool     `toml:"auto_create"`
	ValueConstraints []string `toml:"value_constraints"`
	DefaultValues    []string `toml:"default_values"`
}

// NodeSpec is the TOML shape of a child-node definition.
type NodeSpec struct {
	Name              string   `toml:"name"` // "*" means residual
	RequiredPrimary   []string `toml:"required_primary"`
	DefaultPrimary    string   `toml:"default_primary"`
	AllowSameNameSibs bool     `toml:"allow_same_name_siblings"`
	Mandatory         bool     `toml:"mandatory"`
	Protected         bool     `toml:"protected"`
	AutoCreate        bool     `toml:"auto_create"`
}

// TypeSpec is the TOML shape of one node type definition.
type TypeSpec struct {
	Name        string     `toml:"name"`
	SuperTypes  []string   `toml:"supertypes"`
	Properties  []PropSpec `toml:"properties"`
	ChildNodes  []NodeSpec `toml:"child_nodes"`
}

// Document is the top-level TOML document: a flat list of type definitions.
type Document struct {
	Types []TypeSpec `toml:"type"`
}

// LoadFile parses a TOML node-type seed file at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-provided seed path
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	var doc Document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", path, err)
	}
	return &doc, nil
}

type registry struct {
	types map[string]TypeSpec
}

// NewRegistry builds a nodetype.Registry from a parsed Document.
func NewRegistry(doc *Document) (nodetype.Registry, error) {
	r := &registry{types: make(map[string]TypeSpec, len(doc.Types))}
	for _, t := range doc.Types {
		if t.Name == "" {
			return nil, fmt.Errorf("seed: type with empty name")
		}
		r.types[t.Name] = t
	}
	return r, nil
}

func (r *registry) GetNodeDef(id nodetype.DefId) (nodetype.NodeDef, bool) {
	typeName, idx, ok := splitDefID(string(id))
	if !ok {
		return nodetype.NodeDef{}, false
	}
	t, ok := r.types[typeName]
	if !ok || idx >= len(t.ChildNodes) {
		return nodetype.NodeDef{}, false
	}
	return toNodeDef(id, t.ChildNodes[idx]), true
}

func (r *registry) GetPropDef(id nodetype.DefId) (nodetype.PropDef, bool) {
	typeName, idx, ok := splitDefID(string(id))
	if !ok {
		return nodetype.PropDef{}, false
	}
	t, ok := r.types[typeName]
	if !ok || idx >= len(t.Properties) {
		return nodetype.PropDef{}, false
	}
	return toPropDef(id, t.Properties[idx]), true
}

func (r *registry) IsNodeTypeDerivedFrom(child, ancestor string) bool {
	if child == ancestor {
		return true
	}
	seen := map[string]bool{}
	var walk func(name string) bool
	walk = func(name string) bool {
		if seen[name] {
			return false
		}
		seen[name] = true
		t, ok := r.types[name]
		if !ok {
			return false
		}
		for _, s := range t.SuperTypes {
			if s == ancestor || walk(s) {
				return true
			}
		}
		return false
	}
	return walk(child)
}

func (r *registry) GetEffectiveNodeType(primary string, mixins []string) (nodetype.EffectiveNodeType, error) {
	if _, ok := r.types[primary]; !ok && primary != "" {
		return nil, fmt.Errorf("seed: unknown primary type %q", primary)
	}
	for _, m := range mixins {
		if _, ok := r.types[m]; !ok {
			return nil, fmt.Errorf("seed: unknown mixin type %q", m)
		}
	}
	return &effective{reg: r, primary: primary, mixins: mixins}, nil
}

func splitDefID(id string) (typeName string, idx int, ok bool) {
	parts := strings.SplitN(id, "#", 3)
	if len(parts) != 3 {
		return "", 0, false
	}
	i, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, false
	}
	return parts[1], i, true
}

func defID(kind, typeName string, idx int) nodetype.DefId {
	return nodetype.DefId(fmt.Sprintf("%s#%s#%d", kind, typeName, idx))
}

func toNodeDef(id nodetype.DefId, s NodeSpec) nodetype.NodeDef {
	name := ident.QualifiedName{}
	if s.Name != "*" && s.Name != "" {
		name = ident.QualifiedName{Local: s.Name}
	}
	return nodetype.NodeDef{
		ID:                id,
		Name:              name,
		RequiredPrimary:   s.RequiredPrimary,
		DefaultPrimary:    s.DefaultPrimary,
		AllowSameNameSibs: s.AllowSameNameSibs,
		Mandatory:         s.Mandatory,
		Protected:         s.Protected,
		AutoCreate:        s.AutoCreate,
	}
}

func toPropDef(id nodetype.DefId, s PropSpec) nodetype.PropDef {
	return nodetype.PropDef{
		ID:               id,
		Name:             ident.QualifiedName{Local: s.Name},
		RequiredType:     s.Type,
		Multiple:         s.Multiple,
		Mandatory:        s.Mandatory,
		Protected:        s.Protected,
		AutoCreate:       s.AutoCreate,
		ValueConstraints: s.ValueConstraints,
		DefaultValues:    s.DefaultValues,
	}
}
