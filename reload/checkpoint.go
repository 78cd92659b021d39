package reload

import (
	"github.com/chazu/swapvm/vm"
)

// Checkpoint is the pre-reload program shape needed to compute and, if
// necessary, undo an attempt. It lives only as long as its session.
type Checkpoint struct {
	SavedNumCids     int
	SavedLibraries   []*vm.Library
	SavedRootLibrary *vm.Library

	savedConstants map[string]any
}

// checkpointClassTable records the class table high-water mark, moves the
// whole library registry aside leaving only the system libraries live, and
// detaches the root library so the loader starts from a clean root.
func (s *Session) checkpointClassTable() {
	iso := s.isolate
	store := iso.ObjectStore()

	s.tracer.step("---- CHECKPOINTING CLASS TABLE")
	s.tracer.classTable(iso.ClassTable())

	cp := &Checkpoint{
		SavedNumCids:     iso.ClassTable().NumCids(),
		SavedLibraries:   store.Libraries(),
		SavedRootLibrary: store.RootLibrary(),
		savedConstants:   store.CompileTimeConstants(),
	}

	var system []*vm.Library
	for _, lib := range cp.SavedLibraries {
		if iso.IsSystemLibrary(lib) {
			system = append(system, lib)
		}
	}
	store.SetLibraries(system)
	store.SetRootLibrary(nil)

	s.checkpoint = cp
}

// validateReload asks every remapped class whether its successor may take
// its place. It stops at the first refusal and changes nothing.
func (s *Session) validateReload() error {
	table := s.isolate.ClassTable()
	for _, m := range s.remap.Classes() {
		cls := table.At(vm.ClassID(m.OldID))
		newCls := table.At(vm.ClassID(m.NewID))
		if err := cls.CheckReload(newCls); err != nil {
			return &IncompatibleClassError{
				OldID: vm.ClassID(m.OldID),
				NewID: vm.ClassID(m.NewID),
				Class: cls.FullName(),
				Err:   err,
			}
		}
	}
	return nil
}

// commitClassTable folds every successor into its predecessor, reclaims the
// scratch ids, restores the saved registry and root, and invalidates every
// cache. Must only run after validateReload succeeded.
func (s *Session) commitClassTable() InvalidationStats {
	iso := s.isolate
	table := iso.ClassTable()
	store := iso.ObjectStore()
	cp := s.checkpoint

	s.tracer.step("---- COMMITTING CLASS TABLE")

	for _, m := range s.remap.Classes() {
		cls := table.At(vm.ClassID(m.OldID))
		newCls := table.At(vm.ClassID(m.NewID))
		cls.Reload(newCls)
	}

	// The successors were scratch space; their slots are reclaimed below.
	for _, m := range s.remap.Classes() {
		table.ClearClassAt(vm.ClassID(m.NewID))
	}

	saved := cp.SavedLibraries
	live := store.Libraries()
	folded := make(map[*vm.Library]*vm.Library, len(s.remap.Libraries()))
	for _, m := range s.remap.Libraries() {
		lib := saved[m.OldID]
		newLib := live[m.NewID]
		lib.Reload(newLib)
		folded[newLib] = lib
	}

	moved := table.CompactNewClasses(cp.SavedNumCids)
	translate := func(id vm.ClassID) vm.ClassID {
		if old, ok := s.remap.FindOriginalClass(int(id)); ok {
			return vm.ClassID(old)
		}
		if to, ok := moved[id]; ok {
			return to
		}
		return id
	}

	// Classes that are new in this program belong to the surviving
	// library objects, not the folded-away ones.
	for i := cp.SavedNumCids; i < table.NumCids(); i++ {
		cls := table.At(vm.ClassID(i))
		if cls == nil {
			continue
		}
		if owner, ok := folded[cls.Library()]; ok {
			cls.SetLibrary(owner)
		}
	}

	var added []*vm.Library
	for _, lib := range live {
		if iso.IsSystemLibrary(lib) {
			continue
		}
		if _, ok := folded[lib]; ok {
			continue
		}
		added = append(added, lib)
	}

	restored := make([]*vm.Library, 0, len(saved)+len(added))
	restored = append(restored, saved...)
	restored = append(restored, added...)
	for _, lib := range restored {
		if !iso.IsSystemLibrary(lib) {
			lib.RemapClassIDs(translate)
		}
	}
	iso.Heap().RemapClassIDs(translate)

	store.SetLibraries(restored)
	root := cp.SavedRootLibrary
	if root == nil {
		root = store.RootLibrary()
	}
	store.SetRootLibrary(root)

	s.tracer.classTable(table)
	s.checkpoint = nil

	return NewInvalidator(iso).InvalidateWorld()
}

// rollbackClassTable discards everything loaded since the checkpoint and
// restores the saved registry and root verbatim.
func (s *Session) rollbackClassTable() {
	iso := s.isolate
	store := iso.ObjectStore()
	cp := s.checkpoint

	s.tracer.step("---- ROLLING BACK CLASS TABLE")

	iso.ClassTable().DropNewClasses(cp.SavedNumCids)
	iso.Heap().ReleaseClassesFrom(vm.ClassID(cp.SavedNumCids))

	if cp.SavedLibraries != nil {
		store.SetLibraries(cp.SavedLibraries)
	}
	store.SetRootLibrary(cp.SavedRootLibrary)
	store.SetCompileTimeConstants(cp.savedConstants)

	s.tracer.classTable(iso.ClassTable())
	s.checkpoint = nil
}
