package reload

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/swapvm/vm"
)

// ---------------------------------------------------------------------------
// Programs
//
// pkg:app/main imports pkg:app/util. Foo>>bar calls twice (an instance
// call) and helper (an unqualified call bound at compile time).
// ---------------------------------------------------------------------------

func baseProgram() []vm.LibraryDef {
	return []vm.LibraryDef{{
		URL:     "pkg:app/main",
		Imports: []string{"pkg:app/util"},
		Classes: []vm.ClassDef{{
			Name:   "Foo",
			Fields: []string{"a", "b"},
			Methods: []vm.MethodDef{{
				Name: "bar",
				Calls: []vm.CallSiteDef{
					{Selector: "twice"},
					{Selector: "helper", Static: true},
				},
			}, {
				Name: "helper",
			}},
		}},
	}, {
		URL: "pkg:app/util",
		Classes: []vm.ClassDef{{
			Name:    "Math",
			Methods: []vm.MethodDef{{Name: "twice"}},
		}},
	}}
}

// withNewMethod adds Foo>>baz: a compatible change.
func withNewMethod() []vm.LibraryDef {
	defs := baseProgram()
	defs[0].Classes[0].Methods = append(defs[0].Classes[0].Methods, vm.MethodDef{Name: "baz"})
	return defs
}

// withRemovedField drops Foo's field b: an incompatible change.
func withRemovedField() []vm.LibraryDef {
	defs := baseProgram()
	defs[0].Classes[0].Fields = []string{"a"}
	return defs
}

// withRenamedUtil moves Math to pkg:app/util2.
func withRenamedUtil() []vm.LibraryDef {
	defs := baseProgram()
	defs[0].Imports = []string{"pkg:app/util2"}
	defs[1].URL = "pkg:app/util2"
	return defs
}

type fixture struct {
	iso      *vm.Isolate
	manager  *Manager
	recorder *recorder
}

func newFixture(t *testing.T, opts ...vm.IsolateOption) *fixture {
	t.Helper()
	iso := vm.NewIsolate("test", opts...)
	vm.NewDefinitionLoader(iso, baseProgram()...).Install()
	_, err := iso.LoadScript("pkg:app/main")
	require.NoError(t, err)

	rec := &recorder{}
	return &fixture{
		iso:      iso,
		manager:  NewManager(iso, WithTestMode(), WithObserver(rec)),
		recorder: rec,
	}
}

func (f *fixture) reload(defs []vm.LibraryDef) Result {
	vm.NewDefinitionLoader(f.iso, defs...).Install()
	return f.manager.Reload(context.Background())
}

func (f *fixture) class(t *testing.T, name string) *vm.Class {
	t.Helper()
	cls := f.iso.LookupClass(f.iso.ObjectStore().RootLibrary(), name)
	require.NotNil(t, cls, "class %s", name)
	return cls
}

func (f *fixture) method(t *testing.T, class, selector string) *vm.Function {
	t.Helper()
	fn := f.class(t, class).Shape().Lookup(selector)
	require.NotNil(t, fn, "%s>>%s", class, selector)
	return fn
}

// tableState captures what atomicity compares: every slot's identity and
// shape, plus the registry and root.
type tableState struct {
	classes   []*vm.Class
	shapes    []*vm.ClassShape
	libraries []*vm.Library
	libShapes []*vm.LibraryShape
	root      *vm.Library
}

func captureState(iso *vm.Isolate) tableState {
	var st tableState
	st.classes = iso.ClassTable().Snapshot()
	for _, cls := range st.classes {
		if cls == nil {
			st.shapes = append(st.shapes, nil)
			continue
		}
		st.shapes = append(st.shapes, cls.Shape())
	}
	st.libraries = append(st.libraries, iso.ObjectStore().Libraries()...)
	for _, lib := range st.libraries {
		st.libShapes = append(st.libShapes, lib.Shape())
	}
	st.root = iso.ObjectStore().RootLibrary()
	return st
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
