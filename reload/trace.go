package reload

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/swapvm/vm"
)

const logName = "swapvm.reload"

// tracer writes the operator-facing reload trace: class table dumps, the
// id maps and the checkpoint/commit/rollback steps. Nothing is written
// unless enabled.
type tracer struct {
	log     commonlog.Logger
	enabled bool
}

func newTracer(enabled bool) *tracer {
	return &tracer{log: commonlog.GetLogger(logName), enabled: enabled}
}

func (t *tracer) step(format string, args ...any) {
	if !t.enabled {
		return
	}
	t.log.Infof(format, args...)
}

func (t *tracer) classTable(table *vm.ClassTable) {
	if !t.enabled {
		return
	}
	for _, line := range table.DumpNonCore() {
		t.log.Infof("  %s", line)
	}
}

func (t *tracer) classMap(remap *RemappingTable) {
	if !t.enabled {
		return
	}
	t.log.Info("---- CLASS ID MAPPING")
	for _, m := range remap.Classes() {
		t.log.Infof("  %d -> %d", m.OldID, m.NewID)
	}
}

func (t *tracer) libraryMap(mappings []LibraryMapping) {
	if !t.enabled {
		return
	}
	t.log.Info("---- LIBRARY ID MAPPING")
	for _, m := range mappings {
		t.log.Infof("  %d %s -> %d %s", m.OldID, m.OldURL, m.NewID, m.NewURL)
	}
}

func (t *tracer) duplicates(dups []DuplicateMatch) {
	if !t.enabled {
		return
	}
	for _, d := range dups {
		t.log.Warningf("%s matched %d additional classes; keeping id %d", d.Class, d.Extra, d.Chosen)
	}
}

func (t *tracer) failure(err error) {
	if !t.enabled {
		return
	}
	t.log.Errorf("Error: %s", err)
}
