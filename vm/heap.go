package vm

import "sync"

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// Instance is a heap object. Its header is a class id, so a reload that
// keeps the id keeps the instance attached to the (reshaped) class.
type Instance struct {
	cid    ClassID
	fields []any
}

// ClassID returns the header class id.
func (o *Instance) ClassID() ClassID { return o.cid }

// Field returns field i. Fields appended to the class after the instance
// was allocated read as nil.
func (o *Instance) Field(i int) any {
	if i < 0 || i >= len(o.fields) {
		return nil
	}
	return o.fields[i]
}

// SetField stores v in field i, growing the instance if its class gained
// fields since allocation.
func (o *Instance) SetField(i int, v any) {
	if i < 0 {
		return
	}
	if i >= len(o.fields) {
		grown := make([]any, i+1)
		copy(grown, o.fields)
		o.fields = grown
	}
	o.fields[i] = v
}

// NumFields returns the allocated field count.
func (o *Instance) NumFields() int { return len(o.fields) }

// Heap tracks every function and instance in an isolate. Functions are kept
// in their own population so passes over them need no dynamic type tests.
type Heap struct {
	mu        sync.RWMutex
	functions []*Function
	instances []*Instance
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{}
}

// AddFunction registers fn.
func (h *Heap) AddFunction(fn *Function) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.functions = append(h.functions, fn)
}

// Allocate creates an instance of cid with numFields nil fields.
func (h *Heap) Allocate(cid ClassID, numFields int) *Instance {
	obj := &Instance{cid: cid, fields: make([]any, numFields)}
	h.mu.Lock()
	h.instances = append(h.instances, obj)
	h.mu.Unlock()
	return obj
}

// NumFunctions returns the function population size.
func (h *Heap) NumFunctions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.functions)
}

// VisitFunctions calls fn for every function. fn must not allocate on
// this heap.
func (h *Heap) VisitFunctions(fn func(*Function)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, f := range h.functions {
		fn(f)
	}
}

// VisitInstances calls fn for every instance. fn must not allocate on
// this heap.
func (h *Heap) VisitInstances(fn func(*Instance)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, obj := range h.instances {
		fn(obj)
	}
}

// RemapClassIDs rewrites instance headers and function owners through fn.
func (h *Heap) RemapClassIDs(fn func(ClassID) ClassID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, obj := range h.instances {
		obj.cid = fn(obj.cid)
	}
	for _, f := range h.functions {
		if f.owner != IllegalCid {
			f.owner = fn(f.owner)
		}
	}
}

// ReleaseClassesFrom forgets every function and instance belonging to a
// class id at or above cid.
func (h *Heap) ReleaseClassesFrom(cid ClassID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	functions := h.functions[:0]
	for _, f := range h.functions {
		if f.owner < cid {
			functions = append(functions, f)
		}
	}
	for i := len(functions); i < len(h.functions); i++ {
		h.functions[i] = nil
	}
	h.functions = functions

	instances := h.instances[:0]
	for _, obj := range h.instances {
		if obj.cid < cid {
			instances = append(instances, obj)
		}
	}
	for i := len(instances); i < len(h.instances); i++ {
		h.instances[i] = nil
	}
	h.instances = instances
}
