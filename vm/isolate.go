package vm

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Isolate: one execution context
// ---------------------------------------------------------------------------

// DefaultSystemScheme marks built-in libraries ("maggie:core").
const DefaultSystemScheme = "maggie"

// maxSuperclassDepth bounds superclass walks so a cyclic hierarchy in a
// bad definition cannot hang dispatch.
const maxSuperclassDepth = 64

var (
	ErrDoesNotUnderstand = errors.New("does not understand")
	ErrUnknownClass      = errors.New("unknown class")
	ErrLibraryNotFound   = errors.New("library not found")
	ErrNoTagHandler      = errors.New("no library tag handler")
	ErrNoCallSite        = errors.New("no such call site")
)

// ExecutionMode tells whether the isolate's thread is running managed code
// or is out in an embedder callback.
type ExecutionMode int32

const (
	ModeVM ExecutionMode = iota
	ModeNative
)

// String implements the Stringer interface.
func (m ExecutionMode) String() string {
	if m == ModeNative {
		return "native"
	}
	return "vm"
}

// IsolateOption configures an Isolate.
type IsolateOption func(*Isolate)

// WithSystemScheme sets the URL scheme of libraries that are never reloaded.
func WithSystemScheme(scheme string) IsolateOption {
	return func(iso *Isolate) { iso.systemScheme = scheme }
}

// WithOptimizationThreshold sets the usage count that triggers optimization.
// Zero disables optimization.
func WithOptimizationThreshold(n int) IsolateOption {
	return func(iso *Isolate) { iso.profiler.OptimizationThreshold = n }
}

// WithLibraryTagHandler installs the embedder loader.
func WithLibraryTagHandler(h LibraryTagHandler) IsolateOption {
	return func(iso *Isolate) { iso.tagHandler = h }
}

// Isolate owns a class table, a library registry, a heap and one mutator
// stack. Structural mutation happens inside Safepoint; mutator entry points
// hold the safepoint lock shared.
type Isolate struct {
	name string

	safepoint sync.RWMutex

	classes  *ClassTable
	store    *ObjectStore
	heap     *Heap
	stack    *Stack
	profiler *Profiler

	systemScheme string
	coreLibrary  *Library
	tagHandler   LibraryTagHandler

	finalizationMu      sync.Mutex
	finalizationBlocked int
	pendingFinalization []*Class

	mode atomic.Int32
}

// NewIsolate creates and bootstraps an isolate.
func NewIsolate(name string, opts ...IsolateOption) *Isolate {
	iso := &Isolate{
		name:         name,
		classes:      NewClassTable(),
		store:        NewObjectStore(),
		heap:         NewHeap(),
		stack:        &Stack{},
		profiler:     NewProfiler(),
		systemScheme: DefaultSystemScheme,
	}
	for _, opt := range opts {
		opt(iso)
	}
	iso.profiler.OnHot = func(fn *Function) { iso.optimize(fn) }
	iso.bootstrap()
	return iso
}

// bootstrap creates the core library and its classes below the core boundary.
func (iso *Isolate) bootstrap() {
	iso.coreLibrary = iso.NewLibrary(iso.systemScheme + ":core")

	iso.DefineClass(iso.coreLibrary, "Object", NewClassShape(""))
	for _, name := range []string{"Null", "Bool", "Int", "Double", "String", "Array", "Closure"} {
		iso.DefineClass(iso.coreLibrary, name, NewClassShape("Object"))
	}
	iso.classes.SealCore()
}

// Name returns the isolate name.
func (iso *Isolate) Name() string { return iso.name }

// ClassTable returns the class table.
func (iso *Isolate) ClassTable() *ClassTable { return iso.classes }

// ObjectStore returns the object store.
func (iso *Isolate) ObjectStore() *ObjectStore { return iso.store }

// Heap returns the heap.
func (iso *Isolate) Heap() *Heap { return iso.heap }

// Stack returns the mutator stack.
func (iso *Isolate) Stack() *Stack { return iso.stack }

// Profiler returns the tiering profiler.
func (iso *Isolate) Profiler() *Profiler { return iso.profiler }

// SystemScheme returns the URL scheme of non-reloadable libraries.
func (iso *Isolate) SystemScheme() string { return iso.systemScheme }

// CoreLibrary returns the built-in core library.
func (iso *Isolate) CoreLibrary() *Library { return iso.coreLibrary }

// IsSystemLibrary reports whether lib is exempt from reload.
func (iso *Isolate) IsSystemLibrary(lib *Library) bool {
	return lib != nil && lib.HasScheme(iso.systemScheme)
}

// LibraryTagHandler returns the installed loader (nil if none).
func (iso *Isolate) LibraryTagHandler() LibraryTagHandler { return iso.tagHandler }

// SetLibraryTagHandler installs the loader.
func (iso *Isolate) SetLibraryTagHandler(h LibraryTagHandler) { iso.tagHandler = h }

// ---------------------------------------------------------------------------
// Safepoints and execution mode
// ---------------------------------------------------------------------------

// Safepoint runs fn with every mutator stopped.
func (iso *Isolate) Safepoint(fn func()) {
	iso.safepoint.Lock()
	defer iso.safepoint.Unlock()
	fn()
}

// Mode returns the current execution mode.
func (iso *Isolate) Mode() ExecutionMode {
	return ExecutionMode(iso.mode.Load())
}

// TransitionToNative runs fn in native mode, restoring the previous mode
// afterwards.
func (iso *Isolate) TransitionToNative(fn func()) {
	prev := iso.mode.Swap(int32(ModeNative))
	defer iso.mode.Store(prev)
	fn()
}

// ---------------------------------------------------------------------------
// Class finalization
// ---------------------------------------------------------------------------

// BlockClassFinalization defers finalization of newly defined classes.
// Calls nest.
func (iso *Isolate) BlockClassFinalization() {
	iso.finalizationMu.Lock()
	defer iso.finalizationMu.Unlock()
	iso.finalizationBlocked++
}

// UnblockClassFinalization undoes one BlockClassFinalization and, at the
// outermost level, finalizes every deferred class.
func (iso *Isolate) UnblockClassFinalization() {
	iso.finalizationMu.Lock()
	defer iso.finalizationMu.Unlock()

	if iso.finalizationBlocked == 0 {
		return
	}
	iso.finalizationBlocked--
	if iso.finalizationBlocked > 0 {
		return
	}
	for _, c := range iso.pendingFinalization {
		c.finalized = true
	}
	iso.pendingFinalization = nil
}

// IsClassFinalizationBlocked returns true while a loader is running.
func (iso *Isolate) IsClassFinalizationBlocked() bool {
	iso.finalizationMu.Lock()
	defer iso.finalizationMu.Unlock()
	return iso.finalizationBlocked > 0
}

// FinalizeClass finalizes c, or defers it while finalization is blocked.
// Returns true if c was finalized immediately.
func (iso *Isolate) FinalizeClass(c *Class) bool {
	iso.finalizationMu.Lock()
	defer iso.finalizationMu.Unlock()

	if iso.finalizationBlocked > 0 {
		iso.pendingFinalization = append(iso.pendingFinalization, c)
		return false
	}
	c.finalized = true
	return true
}

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

// NewLibrary creates a library and appends it to the live registry.
func (iso *Isolate) NewLibrary(url string) *Library {
	lib := NewLibrary(url)
	iso.store.AddLibrary(lib)
	return lib
}

// DefineClass registers a class in lib with the given shape. The shape's
// methods are placed on the heap and owned by the new class.
func (iso *Isolate) DefineClass(lib *Library, name string, shape *ClassShape) *Class {
	cls := NewClass(name, lib, shape)
	iso.classes.Register(cls)
	if lib != nil {
		lib.AddClass(cls)
	}
	for _, sel := range cls.shape.Selectors() {
		fn := cls.shape.Methods[sel]
		fn.SetOwner(cls.ID())
		iso.heap.AddFunction(fn)
	}
	iso.FinalizeClass(cls)
	return cls
}

// LoadScript asks the loader for url and installs the result as the root
// library.
func (iso *Isolate) LoadScript(url string) (*Library, error) {
	if iso.tagHandler == nil {
		return nil, ErrNoTagHandler
	}
	var (
		lib *Library
		err error
	)
	iso.TransitionToNative(func() {
		lib, err = iso.tagHandler(TagScript, nil, url)
	})
	if err != nil {
		return nil, err
	}
	iso.store.SetRootLibrary(lib)
	return lib, nil
}

// LookupClass resolves name as seen from lib: lib's own dictionary, then
// its imports in order, then the system libraries.
func (iso *Isolate) LookupClass(lib *Library, name string) *Class {
	if lib != nil {
		if id, ok := lib.LookupClass(name); ok {
			return iso.classes.At(id)
		}
		for _, url := range lib.Shape().Imports {
			imported, _ := iso.store.LookupLibrary(url)
			if imported == nil {
				continue
			}
			if id, ok := imported.LookupClass(name); ok {
				return iso.classes.At(id)
			}
		}
	}
	for _, sys := range iso.store.Libraries() {
		if !iso.IsSystemLibrary(sys) {
			continue
		}
		if id, ok := sys.LookupClass(name); ok {
			return iso.classes.At(id)
		}
	}
	return nil
}

// ResolveMethod looks selector up on cid and its superclasses.
func (iso *Isolate) ResolveMethod(cid ClassID, selector string) *Function {
	cls := iso.classes.At(cid)
	for depth := 0; cls != nil && depth < maxSuperclassDepth; depth++ {
		if fn := cls.Shape().Lookup(selector); fn != nil {
			return fn
		}
		super := cls.Shape().Superclass
		if super == "" {
			return nil
		}
		cls = iso.LookupClass(cls.Library(), super)
	}
	return nil
}

// NewInstance allocates an instance of cid sized to its current shape.
func (iso *Isolate) NewInstance(cid ClassID) (*Instance, error) {
	cls := iso.classes.At(cid)
	if cls == nil {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownClass, cid)
	}
	return iso.heap.Allocate(cid, cls.Shape().NumFields()), nil
}

// ---------------------------------------------------------------------------
// Mutator entry points
// ---------------------------------------------------------------------------

// Call prepares fn for an invocation and returns the code that runs:
// the stub path compiles, the profiler may promote to optimized code.
func (iso *Isolate) Call(fn *Function) *Code {
	iso.safepoint.RLock()
	defer iso.safepoint.RUnlock()
	return iso.call(fn)
}

func (iso *Isolate) call(fn *Function) *Code {
	if fn.code.IsStubCode() {
		iso.compileUnoptimized(fn)
	}
	iso.profiler.RecordInvocation(fn)
	return fn.code
}

// Enter calls fn and pushes a frame for the activation.
func (iso *Isolate) Enter(fn *Function) *Frame {
	iso.safepoint.RLock()
	defer iso.safepoint.RUnlock()
	return iso.stack.Push(iso.call(fn))
}

// Leave pops the top frame.
func (iso *Isolate) Leave() *Frame {
	iso.safepoint.RLock()
	defer iso.safepoint.RUnlock()
	return iso.stack.Pop()
}

// InstanceCall dispatches call site deoptID of caller on a receiver of
// class cid, going through the site's IC and, once the site is
// megamorphic, the shared megamorphic cache for its selector.
func (iso *Isolate) InstanceCall(caller *Function, deoptID int, cid ClassID) (*Function, error) {
	iso.safepoint.RLock()
	defer iso.safepoint.RUnlock()

	if !caller.HasCode() {
		iso.compileUnoptimized(caller)
	}
	unopt := caller.unoptimizedCode
	ic := unopt.ICDataAt(deoptID)
	if ic == nil {
		return nil, fmt.Errorf("%w: %s has no call site %d", ErrNoCallSite, iso.qualifiedName(caller), deoptID)
	}

	if target := ic.Lookup(cid); target != nil {
		return target, nil
	}
	if ic.Static {
		return nil, fmt.Errorf("%w: static %s from %s", ErrDoesNotUnderstand, ic.Selector, iso.qualifiedName(caller))
	}

	var mc *MegamorphicCache
	if ic.State == CacheMegamorphic {
		mc = iso.store.LookupMegamorphicCache(ic.Selector)
		if target := mc.Lookup(cid); target != nil {
			return target, nil
		}
	}

	target := iso.ResolveMethod(cid, ic.Selector)
	if target == nil {
		return nil, fmt.Errorf("%w: %v>>%s", ErrDoesNotUnderstand, iso.classes.At(cid), ic.Selector)
	}

	if mc != nil {
		mc.Insert(cid, target)
		return target, nil
	}
	ic.Update(cid, target)
	if ic.State == CacheMegamorphic {
		iso.store.LookupMegamorphicCache(ic.Selector).Insert(cid, target)
	}
	return target, nil
}
