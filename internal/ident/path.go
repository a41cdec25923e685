package ident

import (
	"fmt"
	"strings"
)

// PathElement is one segment of a Path: a qualified name plus an optional
// 1-based same-name-sibling index. Index 0 means "no explicit index" (i.e.
// the element is the only child of that name, or index 1 is implied).
type PathElement struct {
	Name  QualifiedName
	Index int
}

// String renders "name" or "name[index]" when Index > 1.
func (e PathElement) String() string {
	if e.Index > 1 {
		return fmt.Sprintf("%s[%d]", e.Name, e.Index)
	}
	return e.Name.String()
}

// Equal compares name and effective index (treating 0 and 1 as equal).
func (e PathElement) Equal(other PathElement) bool {
	if !e.Name.Equal(other.Name) {
		return false
	}
	return e.effectiveIndex() == other.effectiveIndex()
}

func (e PathElement) effectiveIndex() int {
	if e.Index <= 0 {
		return 1
	}
	return e.Index
}

// Path is an immutable ordered sequence of elements identifying a
// location in the tree. The root path has zero elements and denotes "/".
type Path struct {
	elements []PathElement
}

// RootPath returns the path denoting "/".
func RootPath() Path { return Path{} }

// NewPath constructs a Path from elements, copying the slice so the result
// is immutable with respect to later mutation of the caller's slice.
func NewPath(elements ...PathElement) Path {
	cp := make([]PathElement, len(elements))
	copy(cp, elements)
	return Path{elements: cp}
}

// IsRoot reports whether this path denotes "/".
func (p Path) IsRoot() bool { return len(p.elements) == 0 }

// Depth returns the number of elements (0 for root).
func (p Path) Depth() int { return len(p.elements) }

// Elements returns a defensive copy of the path's elements.
func (p Path) Elements() []PathElement {
	cp := make([]PathElement, len(p.elements))
	copy(cp, p.elements)
	return cp
}

// NameElement returns the last element (the name this path resolves under
// its parent), or the zero PathElement if this is the root.
func (p Path) NameElement() PathElement {
	if p.IsRoot() {
		return PathElement{}
	}
	return p.elements[len(p.elements)-1]
}

// Parent returns the path one level up, or RootPath() if already root.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return p
	}
	return Path{elements: p.elements[:len(p.elements)-1]}
}

// Child returns a new path extending p with elem.
func (p Path) Child(elem PathElement) Path {
	next := make([]PathElement, len(p.elements)+1)
	copy(next, p.elements)
	next[len(p.elements)] = elem
	return Path{elements: next}
}

// Ancestor returns the ancestor path n levels up (n=0 returns p itself).
// Returns an error if n exceeds the current depth.
func (p Path) Ancestor(n int) (Path, error) {
	if n < 0 {
		return Path{}, fmt.Errorf("ident: negative ancestor degree %d", n)
	}
	if n > p.Depth() {
		return Path{}, fmt.Errorf("ident: ancestor degree %d exceeds depth %d", n, p.Depth())
	}
	return Path{elements: p.elements[:p.Depth()-n]}, nil
}

// IsAncestorOf reports whether p is a proper ancestor of other.
func (p Path) IsAncestorOf(other Path) bool {
	if p.Depth() >= other.Depth() {
		return false
	}
	for i, e := range p.elements {
		if !e.Equal(other.elements[i]) {
			return false
		}
	}
	return true
}

// IsDescendant reports whether p is a proper descendant of other.
func (p Path) IsDescendant(other Path) bool {
	return other.IsAncestorOf(p)
}

// Equal reports whether two paths denote the same location.
func (p Path) Equal(other Path) bool {
	if p.Depth() != other.Depth() {
		return false
	}
	for i, e := range p.elements {
		if !e.Equal(other.elements[i]) {
			return false
		}
	}
	return true
}

// String renders the path in "/{ns}local[idx]/..." form.
func (p Path) String() string {
	if p.IsRoot() {
		return "/"
	}
	var b strings.Builder
	for _, e := range p.elements {
		b.WriteByte('/')
		b.WriteString(e.String())
	}
	return b.String()
}
