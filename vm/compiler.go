package vm

import "fmt"

// ---------------------------------------------------------------------------
// Tiered compilation
// ---------------------------------------------------------------------------

// pcStride spaces call-site pcs in generated code.
const pcStride = 4

// compileUnoptimized builds baseline code for fn: one IC per call site,
// static sites pre-bound to their target in the owning class.
func (iso *Isolate) compileUnoptimized(fn *Function) *Code {
	sites := fn.CallSites()
	icData := make([]*ICData, len(sites))
	descriptors := make([]PcDescriptor, 0, len(sites)+1)

	for deoptID, site := range sites {
		ic := NewICData(deoptID, site)
		kind := DescIcCall
		if site.Kind == CallStatic {
			kind = DescUnoptStaticCall
			ic.StaticTarget = iso.ResolveMethod(fn.Owner(), site.Selector)
		}
		icData[deoptID] = ic
		descriptors = append(descriptors, PcDescriptor{
			PC:      (deoptID + 1) * pcStride,
			Kind:    kind,
			DeoptID: deoptID,
		})
	}
	descriptors = append(descriptors, PcDescriptor{
		PC:      (len(sites) + 1) * pcStride,
		Kind:    DescReturn,
		DeoptID: -1,
	})

	code := &Code{
		name:        fmt.Sprintf("%s (unoptimized)", iso.qualifiedName(fn)),
		function:    fn,
		descriptors: descriptors,
		icData:      icData,
	}
	fn.icDataArray = icData
	fn.unoptimizedCode = code
	fn.code = code
	return code
}

// optimize builds optimized code for fn. Monomorphic instance calls are
// inlined: the callee's unoptimized code goes into the object pool next to
// fn's own deopt target, so the optimized code embeds an assumption about
// the receiver class.
func (iso *Isolate) optimize(fn *Function) *Code {
	unopt := fn.unoptimizedCode
	if unopt == nil {
		unopt = iso.compileUnoptimized(fn)
	}

	pool := []any{unopt}
	var inlined []string
	for _, ic := range fn.icDataArray {
		if ic == nil || ic.Static || ic.State != CacheMonomorphic {
			continue
		}
		callee := ic.Entries[0].Target
		if callee.unoptimizedCode != nil {
			pool = append(pool, callee.unoptimizedCode)
		}
		pool = append(pool, ic.Entries[0].Cid)
		inlined = append(inlined, callee.Name())
	}

	code := &Code{
		name:        fmt.Sprintf("%s (optimized, inlined %v)", iso.qualifiedName(fn), inlined),
		function:    fn,
		optimized:   true,
		objectPool:  pool,
		descriptors: unopt.descriptors,
	}
	fn.code = code
	return code
}

func (iso *Isolate) qualifiedName(fn *Function) string {
	if cls := iso.classes.At(fn.Owner()); cls != nil {
		return cls.Name() + "." + fn.Name()
	}
	return fn.Name()
}
