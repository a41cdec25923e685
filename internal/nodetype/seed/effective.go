package seed

import (
	"fmt"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/nodetype"
)

// effective is the closure over a primary type and its mixins, computed
// lazily from the seed registry's flat type table.
type effective struct {
	reg     *registry
	primary string
	mixins  []string
}

func (e *effective) typeNames() []string {
	names := make([]string, 0, 1+len(e.mixins))
	if e.primary != "" {
		names = append(names, e.primary)
	}
	names = append(names, e.mixins...)
	return names
}

func (e *effective) PrimaryTypeName() string  { return e.primary }
func (e *effective) MixinTypeNames() []string { return append([]string(nil), e.mixins...) }

func (e *effective) IncludesNodeType(name string) bool {
	for _, t := range e.typeNames() {
		if e.reg.IsNodeTypeDerivedFrom(t, name) {
			return true
		}
	}
	return false
}

func (e *effective) MandatoryPropDefs() []nodetype.PropDef {
	var out []nodetype.PropDef
	e.forEachType(func(typeName string, t TypeSpec) {
		for i, p := range t.Properties {
			if p.Mandatory {
				out = append(out, toPropDef(defID("prop", typeName, i), p))
			}
		}
	})
	return out
}

func (e *effective) MandatoryNodeDefs() []nodetype.NodeDef {
	var out []nodetype.NodeDef
	e.forEachType(func(typeName string, t TypeSpec) {
		for i, n := range t.ChildNodes {
			if n.Mandatory {
				out = append(out, toNodeDef(defID("node", typeName, i), n))
			}
		}
	})
	return out
}

func (e *effective) AutoCreatePropDefs() []nodetype.PropDef {
	var out []nodetype.PropDef
	e.forEachType(func(typeName string, t TypeSpec) {
		for i, p := range t.Properties {
			if p.AutoCreate {
				out = append(out, toPropDef(defID("prop", typeName, i), p))
			}
		}
	})
	return out
}

func (e *effective) AutoCreateNodeDefs() []nodetype.NodeDef {
	var out []nodetype.NodeDef
	e.forEachType(func(typeName string, t TypeSpec) {
		for i, n := range t.ChildNodes {
			if n.AutoCreate {
				out = append(out, toNodeDef(defID("node", typeName, i), n))
			}
		}
	})
	return out
}

func (e *effective) forEachType(fn func(typeName string, t TypeSpec)) {
	for _, name := range e.typeNames() {
		if t, ok := e.reg.types[name]; ok {
			fn(name, t)
		}
	}
}

func (e *effective) ApplicablePropertyDef(name ident.QualifiedName, valueType string, multiple bool) (nodetype.PropDef, bool) {
	var residual *nodetype.PropDef
	found := false
	var result nodetype.PropDef
	e.forEachType(func(typeName string, t TypeSpec) {
		if found {
			return
		}
		for i, p := range t.Properties {
			if p.Multiple != multiple {
				continue
			}
			if p.Name == name.Local {
				result = toPropDef(defID("prop", typeName, i), p)
				found = true
				return
			}
			if p.Name == "*" && residual == nil {
				d := toPropDef(defID("prop", typeName, i), p)
				residual = &d
			}
		}
	})
	if found {
		return result, true
	}
	if residual != nil {
		return *residual, true
	}
	return nodetype.PropDef{}, false
}

func (e *effective) ApplicableChildNodeDef(name ident.QualifiedName, childType string, registry nodetype.Registry) (nodetype.NodeDef, bool) {
	var residual *nodetype.NodeDef
	var result nodetype.NodeDef
	found := false
	e.forEachType(func(typeName string, t TypeSpec) {
		if found {
			return
		}
		for i, n := range t.ChildNodes {
			if !defAllowsChildType(n, childType, registry) {
				continue
			}
			if n.Name == name.Local {
				result = toNodeDef(defID("node", typeName, i), n)
				found = true
				return
			}
			if (n.Name == "*" || n.Name == "") && residual == nil {
				d := toNodeDef(defID("node", typeName, i), n)
				residual = &d
			}
		}
	})
	if found {
		return result, true
	}
	if residual != nil {
		return *residual, true
	}
	return nodetype.NodeDef{}, false
}

func defAllowsChildType(n NodeSpec, childType string, registry nodetype.Registry) bool {
	if len(n.RequiredPrimary) == 0 {
		return true
	}
	for _, req := range n.RequiredPrimary {
		if registry.IsNodeTypeDerivedFrom(childType, req) {
			return true
		}
	}
	return false
}

func (e *effective) CheckAddNodeConstraints(name ident.QualifiedName, childType string, registry nodetype.Registry) error {
	if _, ok := e.ApplicableChildNodeDef(name, childType, registry); !ok {
		return fmt.Errorf("nodetype: no applicable child node definition for %s of type %s under %s", name, childType, e.primary)
	}
	return nil
}

func (e *effective) CheckSetPropertyValueConstraints(def nodetype.PropDef, values []string) error {
	if len(def.ValueConstraints) == 0 {
		return nil
	}
	if def.RequiredType != nodetype.ValueTypeReference {
		return nil
	}
	// REFERENCE target-type constraints are not checked here: doing so
	// needs the referenced nodes resolved through the session, and this
	// function returns nil for every input. No caller in this module checks
	// REFERENCE targets against ValueConstraints either.
	return nil
}
