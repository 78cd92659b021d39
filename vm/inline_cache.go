package vm

// Inline Caching for Method Dispatch
//
// Based on Cog VM's proven approach where:
// - ~90% of call sites are monomorphic (single receiver type)
// - ~9% are polymorphic (2-6 types)
// - ~1% are megamorphic (many types)
//
// Each call site of a function owns one ICData, indexed by deopt id. The
// cache is keyed on class id, so a class whose shape is swapped by a reload
// keeps hitting the same entries until the cache is reset.

// CacheState represents the current state of an inline cache.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // No cached lookup yet
	CacheMonomorphic                   // Single (class, target) cached
	CachePolymorphic                   // 2-6 entries in PIC
	CacheMegamorphic                   // Too many types, use megamorphic cache
)

// MaxPICEntries is the maximum number of entries in a polymorphic inline cache.
// Cog VM uses 6 entries.
const MaxPICEntries = 6

// ICEntry holds a single cached lookup result.
type ICEntry struct {
	Cid    ClassID   // Receiver class id
	Target *Function // Resolved target
}

// ICData is the cache for a single call site.
// It progresses through states: Empty -> Monomorphic -> Polymorphic -> Megamorphic
type ICData struct {
	DeoptID  int
	Selector string

	// Static call sites are bound at compile time and keep their target
	// across resets.
	Static       bool
	StaticTarget *Function

	State   CacheState
	Entries [MaxPICEntries]ICEntry
	Count   int // Number of valid entries (1 for mono, 2-6 for poly)

	// Statistics for profiling
	Hits   uint64
	Misses uint64
}

// NewICData creates an empty cache for a call site.
func NewICData(deoptID int, site CallSite) *ICData {
	return &ICData{
		DeoptID:  deoptID,
		Selector: site.Selector,
		Static:   site.Kind == CallStatic,
		State:    CacheEmpty,
	}
}

// Lookup checks the cache for a target matching the given class id.
// Returns the cached target on hit, nil on miss.
func (ic *ICData) Lookup(cid ClassID) *Function {
	if ic.Static && ic.StaticTarget != nil {
		ic.Hits++
		return ic.StaticTarget
	}

	switch ic.State {
	case CacheMonomorphic:
		if ic.Entries[0].Cid == cid {
			ic.Hits++
			return ic.Entries[0].Target
		}

	case CachePolymorphic:
		for i := 0; i < ic.Count; i++ {
			if ic.Entries[i].Cid == cid {
				ic.Hits++
				return ic.Entries[i].Target
			}
		}

	case CacheMegamorphic, CacheEmpty:
		// Always miss for megamorphic or empty
	}

	ic.Misses++
	return nil
}

// Update records a new (class, target) pair, potentially upgrading the cache state.
func (ic *ICData) Update(cid ClassID, target *Function) {
	if target == nil {
		return // Don't cache failed lookups
	}

	switch ic.State {
	case CacheEmpty:
		ic.State = CacheMonomorphic
		ic.Entries[0] = ICEntry{Cid: cid, Target: target}
		ic.Count = 1

	case CacheMonomorphic:
		if ic.Entries[0].Cid == cid {
			return
		}
		ic.State = CachePolymorphic
		ic.Entries[1] = ICEntry{Cid: cid, Target: target}
		ic.Count = 2

	case CachePolymorphic:
		for i := 0; i < ic.Count; i++ {
			if ic.Entries[i].Cid == cid {
				return
			}
		}
		if ic.Count < MaxPICEntries {
			ic.Entries[ic.Count] = ICEntry{Cid: cid, Target: target}
			ic.Count++
		} else {
			// Too many types - go megamorphic
			ic.State = CacheMegamorphic
			ic.clearEntries()
		}

	case CacheMegamorphic:
		// Stay megamorphic, don't cache anything
	}
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (ic *ICData) HitRate() float64 {
	total := ic.Hits + ic.Misses
	if total == 0 {
		return 0
	}
	return float64(ic.Hits) * 100 / float64(total)
}

// Reset returns the cache to its freshly compiled state. Static call sites
// keep their compile-time target; instance call sites forget every entry.
func (ic *ICData) Reset(isStaticCall bool) {
	ic.State = CacheEmpty
	ic.Hits = 0
	ic.Misses = 0
	ic.clearEntries()
	if !isStaticCall {
		ic.StaticTarget = nil
	}
}

// IsEmpty returns true if the cache holds no receiver entries.
func (ic *ICData) IsEmpty() bool {
	return ic.State == CacheEmpty && ic.Count == 0
}

func (ic *ICData) clearEntries() {
	for i := range ic.Entries {
		ic.Entries[i] = ICEntry{}
	}
	ic.Count = 0
}

// ICStats holds aggregate inline cache statistics.
type ICStats struct {
	TotalCallSites  int     // Total number of call sites with caches
	Monomorphic     int     // Call sites in monomorphic state
	Polymorphic     int     // Call sites in polymorphic state
	Megamorphic     int     // Call sites in megamorphic state
	Empty           int     // Call sites never used
	TotalHits       uint64  // Total cache hits
	TotalMisses     uint64  // Total cache misses
	HitRate         float64 // Overall hit rate percentage
	MonomorphicRate float64 // Percentage of call sites that are monomorphic
}

// CollectICStats gathers inline cache statistics from every function on the heap.
func CollectICStats(h *Heap) ICStats {
	var stats ICStats

	h.VisitFunctions(func(fn *Function) {
		for _, ic := range fn.ICDataArray() {
			if ic == nil {
				continue
			}
			stats.TotalCallSites++
			switch ic.State {
			case CacheMonomorphic:
				stats.Monomorphic++
			case CachePolymorphic:
				stats.Polymorphic++
			case CacheMegamorphic:
				stats.Megamorphic++
			case CacheEmpty:
				stats.Empty++
			}
			stats.TotalHits += ic.Hits
			stats.TotalMisses += ic.Misses
		}
	})

	total := stats.TotalHits + stats.TotalMisses
	if total > 0 {
		stats.HitRate = float64(stats.TotalHits) * 100 / float64(total)
	}

	nonEmpty := stats.TotalCallSites - stats.Empty
	if nonEmpty > 0 {
		stats.MonomorphicRate = float64(stats.Monomorphic) * 100 / float64(nonEmpty)
	}

	return stats
}
