package reload

import "github.com/chazu/swapvm/vm"

// InvalidationStats counts what one world invalidation touched.
type InvalidationStats struct {
	FramesDeoptimized        int `cbor:"frames_deoptimized" json:"framesDeoptimized"`
	ICsReset                 int `cbor:"ics_reset" json:"icsReset"`
	MegamorphicCachesDropped int `cbor:"megamorphic_dropped" json:"megamorphicCachesDropped"`
	FunctionsReset           int `cbor:"functions_reset" json:"functionsReset"`
}

// Invalidator discards every cached lookup that may encode the pre-reload
// program shape:
//   - optimized code, which may have inlined a class layout or target
//   - ICs and megamorphic caches
//   - unoptimized code, whose unqualified calls were bound early
//
// The passes are heap-wide and stack-wide, not limited to remapped classes,
// because inlining can embed an assumption about any class.
type Invalidator struct {
	isolate *vm.Isolate
}

// NewInvalidator creates an invalidator for iso.
func NewInvalidator(iso *vm.Isolate) *Invalidator {
	return &Invalidator{isolate: iso}
}

// InvalidateWorld runs the four passes in order. It must run inside the
// isolate's safepoint, after commit.
func (w *Invalidator) InvalidateWorld() InvalidationStats {
	var stats InvalidationStats
	stats.FramesDeoptimized = w.DeoptimizeFunctionsOnStack()
	stats.ICsReset = w.ResetUnoptimizedICsOnStack()
	stats.MegamorphicCachesDropped = w.ResetMegamorphicCaches()
	stats.FunctionsReset = w.MarkAllFunctionsForRecompilation()
	return stats
}

// DeoptimizeFunctionsOnStack marks every frame running optimized code for
// lazy deoptimization and switches its function back to unoptimized code.
func (w *Invalidator) DeoptimizeFunctionsOnStack() int {
	count := 0
	w.isolate.Stack().Walk(func(f *vm.Frame) bool {
		code := f.Code()
		if !f.MarkForLazyDeopt() {
			return true
		}
		count++
		fn := code.Function()
		if fn.CurrentCode() == code {
			fn.SwitchToUnoptimizedCode()
			fn.SetDeoptimizationCounter(fn.DeoptimizationCounter() + 1)
		}
		return true
	})
	return count
}

// ResetUnoptimizedICsOnStack resets the ICs of the unoptimized code every
// frame will run when control returns to it. For an optimized frame that is
// the unoptimized code in the optimized code's object pool, which is what
// the frame deoptimizes to; it can differ from the function's current
// unoptimized code.
func (w *Invalidator) ResetUnoptimizedICsOnStack() int {
	count := 0
	w.isolate.Stack().Walk(func(f *vm.Frame) bool {
		code := f.Code()
		if code.IsStubCode() {
			return true
		}
		fn := code.Function()
		if code.IsOptimized() {
			for _, unopt := range code.DeoptTargets() {
				count += resetICs(fn, unopt)
			}
			return true
		}
		count += resetICs(fn, code)
		return true
	})
	return count
}

// resetICs resets every instance-call and unoptimized static-call IC of
// code, taking the caches from fn's own IC data array.
func resetICs(fn *vm.Function, code *vm.Code) int {
	if fn.ICDataArray() == nil {
		return 0 // Already reset in an earlier round.
	}
	icData := fn.RestoreICDataMap()
	count := 0
	for _, desc := range code.Descriptors(vm.DescIcCall | vm.DescUnoptStaticCall) {
		ic := icData[desc.DeoptID]
		if ic == nil {
			continue
		}
		ic.Reset(desc.Kind == vm.DescUnoptStaticCall)
		count++
	}
	return count
}

// ResetMegamorphicCaches drops the whole megamorphic cache table instead of
// clearing each cache. Code still holding an old cache makes no further
// calls once every function is marked for recompilation.
func (w *Invalidator) ResetMegamorphicCaches() int {
	store := w.isolate.ObjectStore()
	dropped := len(store.MegamorphicCacheTable())
	store.SetMegamorphicCacheTable(nil)
	return dropped
}

// MarkAllFunctionsForRecompilation sends every compiled function back
// through the lazy-compile stub with empty type feedback and zeroed
// optimization counters. Functions already on the stub are left alone.
func (w *Invalidator) MarkAllFunctionsForRecompilation() int {
	count := 0
	w.isolate.Heap().VisitFunctions(func(fn *vm.Function) {
		if fn.CurrentCode().IsStubCode() {
			return
		}
		fn.ClearICDataArray()
		fn.ClearCode()
		fn.SetUsageCounter(0)
		fn.SetDeoptimizationCounter(0)
		count++
	})
	return count
}
