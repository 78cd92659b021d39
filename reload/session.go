package reload

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/swapvm/vm"
)

// Session is the state of one in-flight reload: checkpoint, remapping
// table, error flag and captured error. It is created by Manager.Begin and
// released when FinishReload returns, on either branch.
type Session struct {
	manager *Manager
	isolate *vm.Isolate
	tracer  *tracer

	id        uuid.UUID
	scriptURL string
	started   time.Time

	checkpoint *Checkpoint
	remap      *RemappingTable
	duplicates []DuplicateMatch

	hasError bool
	err      error

	loaded   bool
	reported bool
	finished bool
}

// ID returns the attempt id.
func (s *Session) ID() uuid.UUID { return s.id }

// ScriptURL returns the root library URL being reloaded.
func (s *Session) ScriptURL() string { return s.scriptURL }

// HasError returns true once an error has been reported.
func (s *Session) HasError() bool { return s.hasError }

// Error returns the captured error.
func (s *Session) Error() error { return s.err }

// Checkpoint returns the live checkpoint, or nil once committed or
// rolled back.
func (s *Session) Checkpoint() *Checkpoint { return s.checkpoint }

// Remappings returns the remapping table of this attempt.
func (s *Session) Remappings() *RemappingTable { return s.remap }

// StartReload checkpoints the isolate and asks the loader for the root
// library. Class finalization is blocked while the loader runs in native
// mode. A loader failure is recorded; FinishReload will roll back.
func (s *Session) StartReload(ctx context.Context) {
	if s.finished || s.loaded {
		return
	}
	s.loaded = true

	iso := s.isolate
	root := iso.ObjectStore().RootLibrary()
	if root == nil {
		s.recordError(ErrNoRootLibrary)
		return
	}
	s.scriptURL = root.URL()

	iso.Safepoint(func() {
		s.checkpointClassTable()
		iso.ObjectStore().SetCompileTimeConstants(nil)
	})

	if err := ctx.Err(); err != nil {
		s.recordError(fmt.Errorf("reload: cancelled before loading: %w", err))
		return
	}

	handler := iso.LibraryTagHandler()
	if handler == nil {
		s.recordError(&LoaderError{URL: s.scriptURL, Err: vm.ErrNoTagHandler})
		return
	}

	if err := s.runLoader(handler); err != nil {
		s.recordError(&LoaderError{URL: s.scriptURL, Err: err})
	}
}

// runLoader calls the loader in native mode with finalization blocked. A
// panicking loader is reported as an error.
func (s *Session) runLoader(handler vm.LibraryTagHandler) (err error) {
	iso := s.isolate
	iso.BlockClassFinalization()
	defer iso.UnblockClassFinalization()

	iso.TransitionToNative(func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("loader panicked: %v", r)
			}
		}()
		_, err = handler(vm.TagScript, nil, s.scriptURL)
	})
	return err
}

// FinishReload builds the remappings, validates them and commits or rolls
// back. After a commit the world is invalidated. Exactly one event is
// published, after the table is settled, and the session is released.
func (s *Session) FinishReload() Result {
	if s.finished {
		return Result{AttemptID: s.id, Err: ErrSessionFinished}
	}
	iso := s.isolate
	result := Result{AttemptID: s.id}
	summary := Summary{ScriptURL: s.scriptURL}

	if s.checkpoint == nil {
		// Nothing was checkpointed: StartReload never ran or found no root.
		if !s.hasError {
			s.recordError(ErrNoRootLibrary)
		}
		s.finished = true
		s.manager.release(s)
		result.Err = s.err
		result.Summary = summary
		s.ReportError(s.err, summary)
		return result
	}
	summary.SavedNumCids = s.checkpoint.SavedNumCids

	iso.Safepoint(func() {
		if !s.hasError {
			s.tracer.step("---- DONE FINALIZING")
			s.tracer.classTable(iso.ClassTable())
			summary.ClassMappings, summary.LibraryMappings = s.buildMaps()
			summary.Duplicates = s.duplicates
			if err := s.validateReload(); err != nil {
				s.recordError(err)
			}
		}

		if s.hasError {
			s.rollbackClassTable()
		} else {
			summary.Invalidation = s.commitClassTable()
			result.Committed = true
		}
		summary.NumCids = iso.ClassTable().NumCids()
	})

	// Release before publishing: an observer may start the next attempt.
	s.finished = true
	s.manager.release(s)
	result.Summary = summary
	if s.hasError {
		result.Err = s.err
		s.ReportError(s.err, summary)
	} else {
		s.ReportSuccess(summary)
	}
	return result
}

// buildMaps fills the remapping table and returns it in reportable form.
func (s *Session) buildMaps() ([]Remapping, []LibraryMapping) {
	iso := s.isolate
	s.duplicates = BuildClassIDMap(iso.ClassTable(), s.checkpoint.SavedNumCids, s.remap)
	s.tracer.classMap(s.remap)
	s.tracer.duplicates(s.duplicates)

	saved := s.checkpoint.SavedLibraries
	live := iso.ObjectStore().Libraries()
	BuildLibraryIDMap(saved, live, iso.IsSystemLibrary, s.remap)

	libs := make([]LibraryMapping, 0, len(s.remap.Libraries()))
	for _, m := range s.remap.Libraries() {
		libs = append(libs, LibraryMapping{
			OldID:  m.OldID,
			NewID:  m.NewID,
			OldURL: saved[m.OldID].URL(),
			NewURL: live[m.NewID].URL(),
		})
	}
	s.tracer.libraryMap(libs)

	classes := append([]Remapping(nil), s.remap.Classes()...)
	return classes, libs
}

func (s *Session) recordError(err error) {
	s.hasError = true
	s.err = err
}

// ReportError sets the error flag, stores err and publishes the failure
// event. Only the first report of a session is published.
func (s *Session) ReportError(err error, summary Summary) {
	s.recordError(err)
	s.tracer.failure(err)
	s.publish(EventReloadFailed, err, summary)
}

// ReportSuccess publishes the success event. Only the first report of a
// session is published.
func (s *Session) ReportSuccess(summary Summary) {
	s.publish(EventReloadSucceeded, nil, summary)
}

func (s *Session) publish(kind EventKind, err error, summary Summary) {
	if s.reported {
		return
	}
	s.reported = true
	s.manager.bus.Publish(Event{
		Kind:      kind,
		AttemptID: s.id,
		Isolate:   s.isolate.Name(),
		Err:       err,
		Summary:   summary,
		Time:      time.Now(),
		Elapsed:   time.Since(s.started),
	})
}
