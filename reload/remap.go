package reload

// Remapping pairs an old identity with its successor. For classes the ids
// are class ids; for libraries they are positions in the saved and the
// post-load registries respectively.
type Remapping struct {
	OldID int `cbor:"old" json:"old"`
	NewID int `cbor:"new" json:"new"`
}

// RemappingTable collects the class and library remappings of one attempt.
// Insertion order is preserved; lookups work in both directions.
type RemappingTable struct {
	classes   []Remapping
	libraries []Remapping

	classByNew map[int]int
	classByOld map[int]int
}

// NewRemappingTable creates an empty table.
func NewRemappingTable() *RemappingTable {
	return &RemappingTable{
		classByNew: make(map[int]int),
		classByOld: make(map[int]int),
	}
}

// AddClass records oldID -> newID.
func (t *RemappingTable) AddClass(oldID, newID int) {
	t.classes = append(t.classes, Remapping{OldID: oldID, NewID: newID})
	t.classByNew[newID] = oldID
	t.classByOld[oldID] = newID
}

// AddLibrary records a library remapping.
func (t *RemappingTable) AddLibrary(oldID, newID int) {
	t.libraries = append(t.libraries, Remapping{OldID: oldID, NewID: newID})
}

// Classes returns the class remappings in insertion order.
func (t *RemappingTable) Classes() []Remapping { return t.classes }

// Libraries returns the library remappings in insertion order.
func (t *RemappingTable) Libraries() []Remapping { return t.libraries }

// FindOriginalClass returns the old id that newID replaces.
func (t *RemappingTable) FindOriginalClass(newID int) (int, bool) {
	old, ok := t.classByNew[newID]
	return old, ok
}

// FindReplacementClass returns the new id that replaces oldID.
func (t *RemappingTable) FindReplacementClass(oldID int) (int, bool) {
	next, ok := t.classByOld[oldID]
	return next, ok
}

// Reset empties the table.
func (t *RemappingTable) Reset() {
	t.classes = nil
	t.libraries = nil
	t.classByNew = make(map[int]int)
	t.classByOld = make(map[int]int)
}
