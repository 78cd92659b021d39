package vm

import "sync"

// ---------------------------------------------------------------------------
// ObjectStore: isolate-wide roots
// ---------------------------------------------------------------------------

// ObjectStore holds the isolate roots the reload machinery swaps: the
// library registry, the root library, the megamorphic cache table and the
// compile-time constants cache.
type ObjectStore struct {
	mu sync.RWMutex

	libraries            []*Library
	rootLibrary          *Library
	megamorphicCaches    []*MegamorphicCache
	compileTimeConstants map[string]any
}

// NewObjectStore creates an empty object store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		compileTimeConstants: make(map[string]any),
	}
}

// Libraries returns the live registry. The slice is owned by the store;
// callers that keep it must not append to it.
func (s *ObjectStore) Libraries() []*Library {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.libraries
}

// SetLibraries replaces the live registry.
func (s *ObjectStore) SetLibraries(libs []*Library) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.libraries = libs
}

// AddLibrary appends lib to the registry and returns its index.
func (s *ObjectStore) AddLibrary(lib *Library) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy on append so saved registries never alias the live one.
	libs := make([]*Library, len(s.libraries), len(s.libraries)+1)
	copy(libs, s.libraries)
	s.libraries = append(libs, lib)
	return len(s.libraries) - 1
}

// LookupLibrary finds a live library by URL. Returns nil, -1 if absent.
func (s *ObjectStore) LookupLibrary(url string) (*Library, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, lib := range s.libraries {
		if lib != nil && lib.URL() == url {
			return lib, i
		}
	}
	return nil, -1
}

// RootLibrary returns the root library (nil when detached).
func (s *ObjectStore) RootLibrary() *Library {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rootLibrary
}

// SetRootLibrary sets the root library.
func (s *ObjectStore) SetRootLibrary(lib *Library) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rootLibrary = lib
}

// MegamorphicCacheTable returns every megamorphic cache allocated so far.
func (s *ObjectStore) MegamorphicCacheTable() []*MegamorphicCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.megamorphicCaches
}

// SetMegamorphicCacheTable replaces the table. Passing nil drops every cache.
func (s *ObjectStore) SetMegamorphicCacheTable(table []*MegamorphicCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.megamorphicCaches = table
}

// LookupMegamorphicCache returns the cache for selector, allocating one
// on first use.
func (s *ObjectStore) LookupMegamorphicCache(selector string) *MegamorphicCache {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mc := range s.megamorphicCaches {
		if mc.Selector() == selector {
			return mc
		}
	}
	mc := NewMegamorphicCache(selector)
	s.megamorphicCaches = append(s.megamorphicCaches, mc)
	return mc
}

// CompileTimeConstant returns a cached constant.
func (s *ObjectStore) CompileTimeConstant(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.compileTimeConstants[key]
	return v, ok
}

// SetCompileTimeConstant caches a constant.
func (s *ObjectStore) SetCompileTimeConstant(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compileTimeConstants[key] = value
}

// CompileTimeConstants returns the constants cache.
func (s *ObjectStore) CompileTimeConstants() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compileTimeConstants
}

// SetCompileTimeConstants replaces the constants cache. nil clears it.
func (s *ObjectStore) SetCompileTimeConstants(constants map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if constants == nil {
		constants = make(map[string]any)
	}
	s.compileTimeConstants = constants
}
