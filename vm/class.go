package vm

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Class: identity plus a swappable shape
// ---------------------------------------------------------------------------

// ClassID is the small integer index of a class in the ClassTable.
// Object headers refer to classes by id, so an id never changes meaning
// once assigned below the checkpoint boundary.
type ClassID int32

// IllegalCid marks "no class".
const IllegalCid ClassID = -1

// ClassShape is the layout and behaviour of a class: the part of a class
// that a reload is allowed to replace.
type ClassShape struct {
	Superclass string               // superclass simple name ("" for roots)
	Fields     []string             // instance field names, in slot order
	Methods    map[string]*Function // selector -> function
}

// NewClassShape creates an empty shape with the given superclass and fields.
func NewClassShape(superclass string, fields ...string) *ClassShape {
	return &ClassShape{
		Superclass: superclass,
		Fields:     fields,
		Methods:    make(map[string]*Function),
	}
}

// AddMethod installs fn under its own name.
func (s *ClassShape) AddMethod(fn *Function) {
	if s.Methods == nil {
		s.Methods = make(map[string]*Function)
	}
	s.Methods[fn.Name()] = fn
}

// Lookup returns the locally defined method for selector, or nil.
func (s *ClassShape) Lookup(selector string) *Function {
	return s.Methods[selector]
}

// NumFields returns the number of instance fields.
func (s *ClassShape) NumFields() int {
	return len(s.Fields)
}

// Selectors returns the locally defined selectors in sorted order.
func (s *ClassShape) Selectors() []string {
	result := make([]string, 0, len(s.Methods))
	for sel := range s.Methods {
		result = append(result, sel)
	}
	sort.Strings(result)
	return result
}

// Class is a class descriptor. Identity is (id, library, name); the shape
// behind it may be replaced by Reload.
type Class struct {
	id        ClassID
	name      string
	library   *Library
	shape     *ClassShape
	finalized bool
}

// NewClass creates an unregistered class. The id is assigned by
// ClassTable.Register.
func NewClass(name string, lib *Library, shape *ClassShape) *Class {
	if shape == nil {
		shape = NewClassShape("")
	}
	return &Class{
		id:      IllegalCid,
		name:    name,
		library: lib,
		shape:   shape,
	}
}

// ID returns the class id.
func (c *Class) ID() ClassID { return c.id }

// Name returns the simple class name.
func (c *Class) Name() string { return c.name }

// Library returns the defining library (nil for detached classes).
func (c *Class) Library() *Library { return c.library }

// SetLibrary rebinds the defining library. Used when a freshly loaded
// library is folded into its predecessor.
func (c *Class) SetLibrary(lib *Library) { c.library = lib }

// Shape returns the current shape.
func (c *Class) Shape() *ClassShape { return c.shape }

// IsFinalized reports whether the class has passed finalization.
func (c *Class) IsFinalized() bool { return c.finalized }

// LibraryURL returns the defining library's URL, or "" when detached.
func (c *Class) LibraryURL() string {
	if c.library == nil {
		return ""
	}
	return c.library.URL()
}

// FullName returns url::name, or just name for detached classes.
func (c *Class) FullName() string {
	if c == nil {
		return "<nil>"
	}
	if c.library == nil {
		return c.name
	}
	return c.library.URL() + "::" + c.name
}

// String implements the Stringer interface.
func (c *Class) String() string {
	return c.FullName()
}

// ---------------------------------------------------------------------------
// Reload primitives
// ---------------------------------------------------------------------------

// CheckReload reports why replacement cannot take c's place, or nil when
// it can. Existing instances keep their slot layout, so every old field must
// stay at its index; new fields may only be appended. The superclass may not
// change. Methods may be added or removed freely.
func (c *Class) CheckReload(replacement *Class) error {
	if replacement == nil {
		return fmt.Errorf("class %s has no replacement", c)
	}
	if c.name != replacement.name {
		return fmt.Errorf("class %s cannot be replaced by %s", c, replacement)
	}
	old, next := c.shape, replacement.shape
	if old.Superclass != next.Superclass {
		return fmt.Errorf("class %s changes superclass from %q to %q", c, old.Superclass, next.Superclass)
	}
	for i, field := range old.Fields {
		if i >= len(next.Fields) {
			return fmt.Errorf("class %s removes field %q", c, field)
		}
		if next.Fields[i] != field {
			return fmt.Errorf("class %s changes field %d from %q to %q", c, i, field, next.Fields[i])
		}
	}
	return nil
}

// CanReload reports whether replacement is an acceptable successor of c.
// It has no side effects.
func (c *Class) CanReload(replacement *Class) bool {
	return c.CheckReload(replacement) == nil
}

// Reload replaces c's shape with replacement's, keeping c's id. The
// replacement's methods are re-owned by c.
func (c *Class) Reload(replacement *Class) {
	c.shape = replacement.shape
	c.finalized = replacement.finalized
	for _, fn := range c.shape.Methods {
		fn.SetOwner(c.id)
	}
}
