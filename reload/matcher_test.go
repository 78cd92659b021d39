package reload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/swapvm/vm"
)

// duplicateTable defines Foo and Bar before the checkpoint, then two Foos,
// a Bar and a Foo from another library after it.
func duplicateTable() (*vm.Isolate, int) {
	iso := vm.NewIsolate("dup")
	old := iso.NewLibrary("pkg:app/main")
	iso.DefineClass(old, "Foo", vm.NewClassShape(""))
	iso.DefineClass(old, "Bar", vm.NewClassShape(""))
	saved := iso.ClassTable().NumCids()

	next := vm.NewLibrary("pkg:app/main")
	other := vm.NewLibrary("pkg:app/other")
	iso.DefineClass(next, "Foo", vm.NewClassShape("", "first"))
	iso.DefineClass(other, "Foo", vm.NewClassShape(""))
	iso.DefineClass(next, "Foo", vm.NewClassShape("", "second"))
	iso.DefineClass(next, "Bar", vm.NewClassShape(""))
	return iso, saved
}

func TestFindReplacementClassIDFirstByAscendingID(t *testing.T) {
	iso, saved := duplicateTable()
	table := iso.ClassTable()
	foo := table.At(vm.ClassID(saved - 2))

	id, extra := FindReplacementClassID(table, saved, foo, nil)
	assert.Equal(t, vm.ClassID(saved), id)
	assert.Equal(t, 1, extra, "the second Foo in the same library is a duplicate")
	assert.Equal(t, []string{"first"}, table.At(id).Shape().Fields)

	remap := NewRemappingTable()
	remap.AddClass(saved-2, saved)
	id, extra = FindReplacementClassID(table, saved, foo, remap)
	assert.Equal(t, vm.ClassID(saved+2), id, "claimed candidates are skipped")
	assert.Zero(t, extra)
}

func TestFindReplacementClassIDNoMatch(t *testing.T) {
	iso, saved := duplicateTable()
	orphan := vm.NewClass("Gone", iso.ObjectStore().Libraries()[1], nil)

	id, extra := FindReplacementClassID(iso.ClassTable(), saved, orphan, nil)
	assert.Equal(t, vm.IllegalCid, id)
	assert.Zero(t, extra)
}

func TestBuildClassIDMapReportsDuplicates(t *testing.T) {
	iso, saved := duplicateTable()
	remap := NewRemappingTable()

	dups := BuildClassIDMap(iso.ClassTable(), saved, remap)

	assert.Equal(t, []Remapping{
		{OldID: saved - 2, NewID: saved},
		{OldID: saved - 1, NewID: saved + 3},
	}, remap.Classes())
	require.Len(t, dups, 1)
	assert.Equal(t, DuplicateMatch{Class: "pkg:app/main::Foo", Chosen: saved, Extra: 1}, dups[0])
}

func TestBuildClassIDMapIsDeterministic(t *testing.T) {
	var runs [][]Remapping
	for i := 0; i < 5; i++ {
		iso, saved := duplicateTable()
		remap := NewRemappingTable()
		BuildClassIDMap(iso.ClassTable(), saved, remap)
		runs = append(runs, remap.Classes())
	}
	for _, run := range runs[1:] {
		assert.Equal(t, runs[0], run)
	}
}

func TestBuildClassIDMapSkipsCoreAndFreeSlots(t *testing.T) {
	iso, saved := duplicateTable()
	iso.ClassTable().ClearClassAt(vm.ClassID(saved - 1))
	remap := NewRemappingTable()

	BuildClassIDMap(iso.ClassTable(), saved, remap)

	for _, m := range remap.Classes() {
		assert.GreaterOrEqual(t, m.OldID, iso.ClassTable().NumCoreCids())
	}
	assert.Len(t, remap.Classes(), 1)
}

func TestBuildLibraryIDMap(t *testing.T) {
	iso := vm.NewIsolate("libs")
	core := iso.CoreLibrary()
	saved := []*vm.Library{core, vm.NewLibrary("pkg:app/main"), vm.NewLibrary("pkg:app/util")}
	live := []*vm.Library{core, vm.NewLibrary("pkg:app/util2"), vm.NewLibrary("pkg:app/main")}

	remap := NewRemappingTable()
	BuildLibraryIDMap(saved, live, iso.IsSystemLibrary, remap)

	assert.Equal(t, []Remapping{{OldID: 1, NewID: 2}}, remap.Libraries(),
		"system libraries are never remapped and renamed libraries have no successor")
	assert.Equal(t, -1, FindReplacementLibrary(live, saved[2]))
}
