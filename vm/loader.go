package vm

import "fmt"

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LibraryTag tells the loader why it is being called.
type LibraryTag int

const (
	TagScript LibraryTag = iota // load the root script
	TagImport                   // load an imported library
)

// String implements the Stringer interface.
func (t LibraryTag) String() string {
	switch t {
	case TagScript:
		return "script"
	case TagImport:
		return "import"
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// LibraryTagHandler is the embedder's loader. For TagScript it must load the
// library at url and everything it transitively imports, installing the
// result as the root library.
type LibraryTagHandler func(tag LibraryTag, referrer *Library, url string) (*Library, error)

// LibraryDef describes a library whose source has already been compiled to
// structure.
type LibraryDef struct {
	URL     string     `toml:"url" cbor:"url" json:"url"`
	Imports []string   `toml:"imports" cbor:"imports,omitempty" json:"imports,omitempty"`
	Classes []ClassDef `toml:"class" cbor:"classes,omitempty" json:"classes,omitempty"`
}

// ClassDef describes one class.
type ClassDef struct {
	Name       string      `toml:"name" cbor:"name" json:"name"`
	Superclass string      `toml:"superclass" cbor:"superclass,omitempty" json:"superclass,omitempty"`
	Fields     []string    `toml:"fields" cbor:"fields,omitempty" json:"fields,omitempty"`
	Methods    []MethodDef `toml:"method" cbor:"methods,omitempty" json:"methods,omitempty"`
}

// MethodDef describes one method and the calls its body makes.
type MethodDef struct {
	Name  string        `toml:"name" cbor:"name" json:"name"`
	Calls []CallSiteDef `toml:"call" cbor:"calls,omitempty" json:"calls,omitempty"`
}

// CallSiteDef describes one call in a method body.
type CallSiteDef struct {
	Selector string `toml:"selector" cbor:"selector" json:"selector"`
	Static   bool   `toml:"static" cbor:"static,omitempty" json:"static,omitempty"`
}

// DefinitionLoader materializes LibraryDefs into an isolate. It is the
// loader used by the server and the tests.
type DefinitionLoader struct {
	iso  *Isolate
	defs map[string]LibraryDef
}

// NewDefinitionLoader creates a loader serving defs.
func NewDefinitionLoader(iso *Isolate, defs ...LibraryDef) *DefinitionLoader {
	l := &DefinitionLoader{iso: iso, defs: make(map[string]LibraryDef, len(defs))}
	for _, def := range defs {
		l.defs[def.URL] = def
	}
	return l
}

// Handler returns the loader as a LibraryTagHandler.
func (l *DefinitionLoader) Handler() LibraryTagHandler {
	return l.load
}

// Install sets the loader as iso's tag handler.
func (l *DefinitionLoader) Install() {
	l.iso.SetLibraryTagHandler(l.Handler())
}

func (l *DefinitionLoader) load(tag LibraryTag, referrer *Library, url string) (*Library, error) {
	if lib, _ := l.iso.store.LookupLibrary(url); lib != nil {
		// Already live: a system library, or a cycle through imports.
		if tag == TagScript {
			l.iso.store.SetRootLibrary(lib)
		}
		return lib, nil
	}

	def, ok := l.defs[url]
	if !ok {
		if referrer != nil {
			return nil, fmt.Errorf("%w: %s (imported from %s)", ErrLibraryNotFound, url, referrer.URL())
		}
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, url)
	}

	lib := l.iso.NewLibrary(url)
	lib.Shape().Imports = append([]string(nil), def.Imports...)
	if tag == TagScript {
		l.iso.store.SetRootLibrary(lib)
	}

	for _, imp := range def.Imports {
		if _, err := l.load(TagImport, lib, imp); err != nil {
			return nil, err
		}
	}

	for _, cd := range def.Classes {
		shape := NewClassShape(cd.Superclass, append([]string(nil), cd.Fields...)...)
		for _, md := range cd.Methods {
			sites := make([]CallSite, len(md.Calls))
			for i, call := range md.Calls {
				kind := CallInstance
				if call.Static {
					kind = CallStatic
				}
				sites[i] = CallSite{Selector: call.Selector, Kind: kind}
			}
			shape.AddMethod(NewFunction(md.Name, sites...))
		}
		l.iso.DefineClass(lib, cd.Name, shape)
	}
	return lib, nil
}
