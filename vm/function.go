package vm

// ---------------------------------------------------------------------------
// Function: a method body plus its code and type feedback
// ---------------------------------------------------------------------------

// CallKind distinguishes dispatching call sites from early-bound ones.
type CallKind uint8

const (
	CallInstance CallKind = iota // receiver-class dispatch through an IC
	CallStatic                   // unqualified call bound at compile time
)

// CallSite is one call in a function body. Its index in the function's
// call site list is its deopt id.
type CallSite struct {
	Selector string
	Kind     CallKind
}

// Function is a method. Its current code is either the lazy-compile stub
// (not yet compiled, or marked for recompilation), unoptimized code, or
// optimized code.
type Function struct {
	name      string
	owner     ClassID
	callSites []CallSite

	code            *Code
	unoptimizedCode *Code
	icDataArray     []*ICData

	usageCounter          int
	deoptimizationCounter int
}

// NewFunction creates an uncompiled function.
func NewFunction(name string, callSites ...CallSite) *Function {
	return &Function{
		name:      name,
		owner:     IllegalCid,
		callSites: callSites,
		code:      LazyCompileStub,
	}
}

// Name returns the selector this function implements.
func (f *Function) Name() string { return f.name }

// Owner returns the id of the class that defines f.
func (f *Function) Owner() ClassID { return f.owner }

// SetOwner rebinds the owning class id.
func (f *Function) SetOwner(id ClassID) { f.owner = id }

// CallSites returns the call sites in deopt-id order.
func (f *Function) CallSites() []CallSite { return f.callSites }

// CurrentCode returns the code a new invocation would run.
func (f *Function) CurrentCode() *Code { return f.code }

// UnoptimizedCode returns the baseline code, or nil when not compiled.
func (f *Function) UnoptimizedCode() *Code { return f.unoptimizedCode }

// HasCode returns true if f has real code installed.
func (f *Function) HasCode() bool { return !f.code.IsStubCode() }

// HasOptimizedCode returns true if f currently runs optimized code.
func (f *Function) HasOptimizedCode() bool { return f.code.IsOptimized() }

// ICDataArray returns the per-call-site caches, indexed by deopt id.
// nil means the caches were already discarded.
func (f *Function) ICDataArray() []*ICData { return f.icDataArray }

// ClearICDataArray discards type feedback so the next compilation starts
// from empty caches.
func (f *Function) ClearICDataArray() { f.icDataArray = nil }

// RestoreICDataMap indexes the IC data array by deopt id.
func (f *Function) RestoreICDataMap() map[int]*ICData {
	result := make(map[int]*ICData, len(f.icDataArray))
	for _, ic := range f.icDataArray {
		if ic != nil {
			result[ic.DeoptID] = ic
		}
	}
	return result
}

// ClearCode reinstalls the lazy-compile stub.
func (f *Function) ClearCode() {
	f.code = LazyCompileStub
	f.unoptimizedCode = nil
}

// SwitchToUnoptimizedCode drops optimized code in favour of the baseline.
func (f *Function) SwitchToUnoptimizedCode() {
	if f.unoptimizedCode == nil {
		f.code = LazyCompileStub
		return
	}
	f.code = f.unoptimizedCode
}

// UsageCounter returns the invocation count since the last reset.
func (f *Function) UsageCounter() int { return f.usageCounter }

// SetUsageCounter sets the invocation count.
func (f *Function) SetUsageCounter(n int) { f.usageCounter = n }

// DeoptimizationCounter returns how often f was deoptimized.
func (f *Function) DeoptimizationCounter() int { return f.deoptimizationCounter }

// SetDeoptimizationCounter sets the deoptimization count.
func (f *Function) SetDeoptimizationCounter(n int) { f.deoptimizationCounter = n }

// String implements the Stringer interface.
func (f *Function) String() string {
	return f.name
}
