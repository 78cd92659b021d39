package reload

import "github.com/chazu/swapvm/vm"

// DuplicateMatch records an old class for which more than one newly loaded
// class had the same name and library URL. The lowest id wins.
type DuplicateMatch struct {
	Class  string `cbor:"class" json:"class"`
	Chosen int    `cbor:"chosen" json:"chosen"`
	Extra  int    `cbor:"extra" json:"extra"`
}

// FindReplacementClassID searches the classes loaded since the checkpoint
// (ids in [savedNumCids, NumCids)) in ascending id order for one with cls's
// simple name and defining-library URL. It returns the first unclaimed
// match, or vm.IllegalCid, plus the number of further candidates.
func FindReplacementClassID(table *vm.ClassTable, savedNumCids int, cls *vm.Class, remap *RemappingTable) (vm.ClassID, int) {
	name := cls.Name()
	url := cls.LibraryURL()

	found := vm.IllegalCid
	extra := 0
	upper := table.NumCids()
	for i := savedNumCids; i < upper; i++ {
		candidate := table.At(vm.ClassID(i))
		if candidate == nil {
			continue
		}
		if candidate.Name() != name || candidate.LibraryURL() != url {
			continue
		}
		if remap != nil {
			if _, claimed := remap.FindOriginalClass(i); claimed {
				continue
			}
		}
		if found == vm.IllegalCid {
			found = vm.ClassID(i)
		} else {
			extra++
		}
	}
	return found, extra
}

// FindReplacementLibrary returns the position in live of the library with
// lib's URL, or -1.
func FindReplacementLibrary(live []*vm.Library, lib *vm.Library) int {
	for i, candidate := range live {
		if candidate == nil {
			continue
		}
		if candidate.URL() == lib.URL() {
			return i
		}
	}
	return -1
}

// BuildClassIDMap adds a remapping for every non-core class that existed at
// the checkpoint and has a successor. Classes without one are left out:
// they were deleted from the program.
func BuildClassIDMap(table *vm.ClassTable, savedNumCids int, remap *RemappingTable) []DuplicateMatch {
	var duplicates []DuplicateMatch
	for i := table.NumCoreCids(); i < savedNumCids; i++ {
		cls := table.At(vm.ClassID(i))
		if cls == nil {
			continue
		}
		newID, extra := FindReplacementClassID(table, savedNumCids, cls, remap)
		if newID == vm.IllegalCid {
			continue
		}
		if extra > 0 {
			duplicates = append(duplicates, DuplicateMatch{
				Class:  cls.FullName(),
				Chosen: int(newID),
				Extra:  extra,
			})
		}
		remap.AddClass(i, int(newID))
	}
	return duplicates
}

// BuildLibraryIDMap adds a remapping for every saved non-system library
// whose URL is present in the post-load registry.
func BuildLibraryIDMap(saved, live []*vm.Library, isSystem func(*vm.Library) bool, remap *RemappingTable) {
	for i, lib := range saved {
		if lib == nil || isSystem(lib) {
			continue
		}
		newID := FindReplacementLibrary(live, lib)
		if newID < 0 {
			continue
		}
		remap.AddLibrary(i, newID)
	}
}
