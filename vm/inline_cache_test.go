package vm

import (
	"testing"
)

func TestInlineCacheEmpty(t *testing.T) {
	ic := NewICData(0, CallSite{Selector: "foo"})

	if fn := ic.Lookup(ClassID(10)); fn != nil {
		t.Error("Expected nil from empty cache")
	}
	if ic.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", ic.Misses)
	}
	if !ic.IsEmpty() {
		t.Error("Expected cache to stay empty after a miss")
	}
}

func TestInlineCacheMonomorphic(t *testing.T) {
	ic := NewICData(0, CallSite{Selector: "test"})
	testMethod := NewFunction("test")

	// First update - becomes monomorphic
	ic.Update(ClassID(10), testMethod)

	if ic.State != CacheMonomorphic {
		t.Errorf("Expected monomorphic state, got %v", ic.State)
	}
	if ic.Count != 1 {
		t.Errorf("Expected count 1, got %d", ic.Count)
	}

	if fn := ic.Lookup(ClassID(10)); fn != testMethod {
		t.Error("Expected cache hit")
	}
	if ic.Hits != 1 {
		t.Errorf("Expected 1 hit, got %d", ic.Hits)
	}

	// Different class should miss
	if fn := ic.Lookup(ClassID(11)); fn != nil {
		t.Error("Expected cache miss for different class")
	}
	if ic.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", ic.Misses)
	}
}

func TestInlineCacheUpgradeToPolymorphic(t *testing.T) {
	ic := NewICData(0, CallSite{Selector: "m"})
	method1 := NewFunction("m")
	method2 := NewFunction("m")

	ic.Update(ClassID(10), method1)
	ic.Update(ClassID(10), method1)
	if ic.State != CacheMonomorphic {
		t.Errorf("Expected monomorphic after repeated update, got %v", ic.State)
	}

	ic.Update(ClassID(11), method2)
	if ic.State != CachePolymorphic {
		t.Errorf("Expected polymorphic, got %v", ic.State)
	}
	if ic.Count != 2 {
		t.Errorf("Expected count 2, got %d", ic.Count)
	}

	if ic.Lookup(ClassID(10)) != method1 {
		t.Error("Expected hit for first class")
	}
	if ic.Lookup(ClassID(11)) != method2 {
		t.Error("Expected hit for second class")
	}
}

func TestInlineCacheUpgradeToMegamorphic(t *testing.T) {
	ic := NewICData(0, CallSite{Selector: "m"})
	method := NewFunction("m")

	for i := 0; i < MaxPICEntries; i++ {
		ic.Update(ClassID(10+i), method)
	}
	if ic.State != CachePolymorphic || ic.Count != MaxPICEntries {
		t.Fatalf("Expected full PIC, got state %v count %d", ic.State, ic.Count)
	}

	ic.Update(ClassID(10+MaxPICEntries), method)
	if ic.State != CacheMegamorphic {
		t.Errorf("Expected megamorphic, got %v", ic.State)
	}
	if ic.Count != 0 {
		t.Errorf("Expected entries cleared, got count %d", ic.Count)
	}
	if ic.Lookup(ClassID(10)) != nil {
		t.Error("Megamorphic cache should always miss")
	}
}

func TestInlineCacheHitRate(t *testing.T) {
	ic := NewICData(0, CallSite{Selector: "m"})
	if ic.HitRate() != 0 {
		t.Errorf("Expected 0 hit rate for unused cache, got %f", ic.HitRate())
	}

	ic.Update(ClassID(10), NewFunction("m"))
	ic.Lookup(ClassID(10))
	ic.Lookup(ClassID(10))
	ic.Lookup(ClassID(10))
	ic.Lookup(ClassID(11))

	if rate := ic.HitRate(); rate != 75 {
		t.Errorf("Expected 75%% hit rate, got %f", rate)
	}
}

func TestInlineCacheResetInstanceCall(t *testing.T) {
	ic := NewICData(3, CallSite{Selector: "m"})
	ic.Update(ClassID(10), NewFunction("m"))
	ic.Update(ClassID(11), NewFunction("m"))
	ic.Lookup(ClassID(10))

	ic.Reset(false)

	if !ic.IsEmpty() {
		t.Errorf("Expected empty cache after reset, got state %v count %d", ic.State, ic.Count)
	}
	if ic.Hits != 0 || ic.Misses != 0 {
		t.Errorf("Expected counters cleared, got %d hits %d misses", ic.Hits, ic.Misses)
	}
	if ic.DeoptID != 3 || ic.Selector != "m" {
		t.Error("Reset must keep the call site identity")
	}
}

func TestInlineCacheResetStaticCallKeepsTarget(t *testing.T) {
	target := NewFunction("helper")
	ic := NewICData(0, CallSite{Selector: "helper", Kind: CallStatic})
	ic.StaticTarget = target

	if ic.Lookup(ClassID(99)) != target {
		t.Fatal("Static call should hit its bound target for any receiver")
	}

	ic.Reset(true)
	if ic.StaticTarget != target {
		t.Error("Static reset must keep the compile-time target")
	}

	ic.Reset(false)
	if ic.StaticTarget != nil {
		t.Error("Instance reset must drop the target")
	}
}

func TestCollectICStats(t *testing.T) {
	h := NewHeap()

	mono := NewFunction("a", CallSite{Selector: "x"}, CallSite{Selector: "y"})
	mono.icDataArray = []*ICData{NewICData(0, mono.callSites[0]), NewICData(1, mono.callSites[1])}
	mono.icDataArray[0].Update(ClassID(10), NewFunction("x"))
	mono.icDataArray[0].Lookup(ClassID(10))
	mono.icDataArray[0].Lookup(ClassID(11))
	h.AddFunction(mono)

	uncompiled := NewFunction("b", CallSite{Selector: "z"})
	h.AddFunction(uncompiled)

	stats := CollectICStats(h)
	if stats.TotalCallSites != 2 {
		t.Errorf("Expected 2 call sites, got %d", stats.TotalCallSites)
	}
	if stats.Monomorphic != 1 || stats.Empty != 1 {
		t.Errorf("Expected 1 monomorphic and 1 empty, got %d and %d", stats.Monomorphic, stats.Empty)
	}
	if stats.HitRate != 50 {
		t.Errorf("Expected 50%% hit rate, got %f", stats.HitRate)
	}
	if stats.MonomorphicRate != 100 {
		t.Errorf("Expected 100%% monomorphic rate, got %f", stats.MonomorphicRate)
	}
}

func TestMegamorphicCache(t *testing.T) {
	mc := NewMegamorphicCache("m")
	fn := NewFunction("m")

	mc.Insert(ClassID(10), fn)
	mc.Insert(ClassID(11), nil)

	if mc.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", mc.Len())
	}
	if mc.Lookup(ClassID(10)) != fn {
		t.Error("Expected hit")
	}
	if mc.Lookup(ClassID(11)) != nil {
		t.Error("nil targets are not cached")
	}
	if mc.Probes != 2 {
		t.Errorf("Expected 2 probes, got %d", mc.Probes)
	}
}
