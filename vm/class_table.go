package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// ClassTable: dense class-id registry
// ---------------------------------------------------------------------------

// ClassTable maps class ids to class descriptors. Slots are dense; a nil
// slot is free. Ids below NumCoreCids belong to built-in classes and are
// never remapped or removed.
type ClassTable struct {
	mu          sync.RWMutex
	classes     []*Class
	numCoreCids int
}

// NewClassTable creates an empty class table.
func NewClassTable() *ClassTable {
	return &ClassTable{
		classes: make([]*Class, 0, 64),
	}
}

// Register appends c and assigns its id.
func (ct *ClassTable) Register(c *Class) ClassID {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	c.id = ClassID(len(ct.classes))
	ct.classes = append(ct.classes, c)
	return c.id
}

// SealCore marks every currently registered class as a core class.
func (ct *ClassTable) SealCore() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.numCoreCids = len(ct.classes)
}

// NumCoreCids returns the core boundary.
func (ct *ClassTable) NumCoreCids() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.numCoreCids
}

// NumCids returns the high-water mark of allocated ids.
func (ct *ClassTable) NumCids() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.classes)
}

// At returns the class at id, or nil for free or out-of-range slots.
func (ct *ClassTable) At(id ClassID) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	if id < 0 || int(id) >= len(ct.classes) {
		return nil
	}
	return ct.classes[id]
}

// HasValidClassAt returns true if id names a live class.
func (ct *ClassTable) HasValidClassAt(id ClassID) bool {
	return ct.At(id) != nil
}

// ClearClassAt frees the slot at id. Core ids cannot be cleared.
func (ct *ClassTable) ClearClassAt(id ClassID) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if int(id) < ct.numCoreCids || int(id) >= len(ct.classes) {
		return
	}
	ct.classes[id] = nil
}

// DropNewClasses discards every class allocated at or above savedNumCids.
func (ct *ClassTable) DropNewClasses(savedNumCids int) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if savedNumCids < ct.numCoreCids || savedNumCids > len(ct.classes) {
		return
	}
	for i := savedNumCids; i < len(ct.classes); i++ {
		ct.classes[i] = nil
	}
	ct.classes = ct.classes[:savedNumCids]
}

// CompactNewClasses slides the live classes at or above savedNumCids down
// over free slots and truncates the table. The returned map holds the
// old -> new id of every class that moved; the moved classes have their
// ids rewritten.
func (ct *ClassTable) CompactNewClasses(savedNumCids int) map[ClassID]ClassID {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	moved := make(map[ClassID]ClassID)
	if savedNumCids > len(ct.classes) {
		return moved
	}
	next := savedNumCids
	for i := savedNumCids; i < len(ct.classes); i++ {
		c := ct.classes[i]
		if c == nil {
			continue
		}
		if i != next {
			ct.classes[next] = c
			ct.classes[i] = nil
			c.id = ClassID(next)
			moved[ClassID(i)] = ClassID(next)
		}
		next++
	}
	for i := next; i < len(ct.classes); i++ {
		ct.classes[i] = nil
	}
	ct.classes = ct.classes[:next]
	return moved
}

// Snapshot returns a copy of the slot array.
func (ct *ClassTable) Snapshot() []*Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	result := make([]*Class, len(ct.classes))
	copy(result, ct.classes)
	return result
}

// DumpNonCore renders one line per live non-core class, for tracing.
func (ct *ClassTable) DumpNonCore() []string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	var lines []string
	for i := ct.numCoreCids; i < len(ct.classes); i++ {
		c := ct.classes[i]
		if c == nil {
			lines = append(lines, fmt.Sprintf("%d: <free>", i))
			continue
		}
		lines = append(lines, fmt.Sprintf("%d: %s", i, c.FullName()))
	}
	return lines
}
