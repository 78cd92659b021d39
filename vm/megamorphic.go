package vm

import "sync"

// MegamorphicCache is the shared dispatch cache for one selector, used by
// every call site that has seen more than MaxPICEntries receiver classes.
type MegamorphicCache struct {
	mu       sync.RWMutex
	selector string
	entries  map[ClassID]*Function

	Probes uint64
}

// NewMegamorphicCache creates an empty cache for selector.
func NewMegamorphicCache(selector string) *MegamorphicCache {
	return &MegamorphicCache{
		selector: selector,
		entries:  make(map[ClassID]*Function),
	}
}

// Selector returns the selector this cache serves.
func (mc *MegamorphicCache) Selector() string { return mc.selector }

// Lookup returns the cached target for cid.
func (mc *MegamorphicCache) Lookup(cid ClassID) *Function {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.Probes++
	return mc.entries[cid]
}

// Insert caches target for cid.
func (mc *MegamorphicCache) Insert(cid ClassID, target *Function) {
	if target == nil {
		return
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.entries[cid] = target
}

// Len returns the number of cached receiver classes.
func (mc *MegamorphicCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.entries)
}
