// Package reload replaces a running isolate's classes and libraries in
// place.
//
// An attempt runs Start -> Load -> Validate -> Commit|Rollback ->
// Invalidate -> Report:
//
//	s, err := manager.Begin()
//	s.StartReload(ctx)        // checkpoint, then call the loader for the root URL
//	result := s.FinishReload() // remap, validate, commit or roll back, report
//
// After a commit every pre-existing class id still names the same class,
// now with its successor's shape, and every cache that could encode the old
// shape has been discarded. After a rollback the class table, library
// registry and root library are exactly as checkpointed. Exactly one Event
// is published per attempt.
package reload
