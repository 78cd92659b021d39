package vm

import "sync/atomic"

// Profiler decides when a function is hot enough to optimize. Based on
// Cog VM's approach of counting invocations per method and promoting past a
// threshold. The count itself lives on the Function (its usage counter) so
// that resetting a function also resets its profile.
type Profiler struct {
	// OptimizationThreshold is the usage count at which a function is
	// optimized. Zero disables optimization.
	OptimizationThreshold int

	// OnHot is called when a function crosses the threshold.
	OnHot func(fn *Function)

	hotCount uint64
}

// DefaultOptimizationThreshold is used by NewProfiler.
const DefaultOptimizationThreshold = 100

// NewProfiler creates a profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{OptimizationThreshold: DefaultOptimizationThreshold}
}

// RecordInvocation counts one invocation of fn.
// Returns true if this invocation made fn hot.
func (p *Profiler) RecordInvocation(fn *Function) bool {
	fn.usageCounter++
	if p.OptimizationThreshold <= 0 || fn.HasOptimizedCode() {
		return false
	}
	if fn.usageCounter != p.OptimizationThreshold {
		return false
	}
	atomic.AddUint64(&p.hotCount, 1)
	if p.OnHot != nil {
		p.OnHot(fn)
	}
	return true
}

// HotCount returns how many functions have become hot.
func (p *Profiler) HotCount() uint64 {
	return atomic.LoadUint64(&p.hotCount)
}
