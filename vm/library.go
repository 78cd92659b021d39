package vm

import (
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Library: URL identity plus a swappable shape
// ---------------------------------------------------------------------------

// LibraryShape holds the reloadable contents of a library.
type LibraryShape struct {
	Classes map[string]ClassID // class dictionary, simple name -> id
	Imports []string           // imported library URLs, in order
}

// NewLibraryShape creates an empty library shape.
func NewLibraryShape() *LibraryShape {
	return &LibraryShape{Classes: make(map[string]ClassID)}
}

// Library is identified by its canonical URL, never by registry position.
type Library struct {
	url   string
	shape *LibraryShape
}

// NewLibrary creates a library with an empty shape.
func NewLibrary(url string) *Library {
	return &Library{url: url, shape: NewLibraryShape()}
}

// URL returns the canonical URL.
func (l *Library) URL() string { return l.url }

// Shape returns the current shape.
func (l *Library) Shape() *LibraryShape { return l.shape }

// Scheme returns the URL scheme ("maggie" for "maggie:core").
func (l *Library) Scheme() string {
	scheme, _, ok := strings.Cut(l.url, ":")
	if !ok {
		return ""
	}
	return scheme
}

// HasScheme reports whether the library URL uses scheme.
func (l *Library) HasScheme(scheme string) bool {
	return scheme != "" && l.Scheme() == scheme
}

// AddClass records c in the class dictionary. A name that is already
// bound keeps its first class.
func (l *Library) AddClass(c *Class) {
	if _, ok := l.shape.Classes[c.Name()]; ok {
		return
	}
	l.shape.Classes[c.Name()] = c.ID()
}

// LookupClass returns the id bound to name.
func (l *Library) LookupClass(name string) (ClassID, bool) {
	id, ok := l.shape.Classes[name]
	return id, ok
}

// ClassNames returns the dictionary keys in sorted order.
func (l *Library) ClassNames() []string {
	names := make([]string, 0, len(l.shape.Classes))
	for name := range l.shape.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reload replaces l's shape with replacement's.
func (l *Library) Reload(replacement *Library) {
	l.shape = replacement.shape
}

// RemapClassIDs rewrites every dictionary entry through fn.
func (l *Library) RemapClassIDs(fn func(ClassID) ClassID) {
	for name, id := range l.shape.Classes {
		l.shape.Classes[name] = fn(id)
	}
}

// String implements the Stringer interface.
func (l *Library) String() string {
	return l.url
}
