package reload

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chazu/swapvm/vm"
)

var (
	// ErrAlreadyReloading is returned by Manager.Begin while another
	// session is live on the same isolate.
	ErrAlreadyReloading = errors.New("reload: already reloading")

	// ErrNoRootLibrary is returned when the isolate has nothing to reload.
	ErrNoRootLibrary = errors.New("reload: isolate has no root library")

	// ErrSessionFinished is returned when a finished session is reused.
	ErrSessionFinished = errors.New("reload: session already finished")
)

// LoaderError reports that the embedder loader failed.
type LoaderError struct {
	URL string
	Err error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("reload: loading %s: %v", e.URL, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }

// IncompatibleClassError reports the first class whose new shape cannot
// replace the old one.
type IncompatibleClassError struct {
	OldID vm.ClassID
	NewID vm.ClassID
	Class string
	Err   error
}

func (e *IncompatibleClassError) Error() string {
	return fmt.Sprintf("reload: %s (id %d) cannot be replaced by id %d: %v", e.Class, e.OldID, e.NewID, e.Err)
}

func (e *IncompatibleClassError) Unwrap() error { return e.Err }

// Result is the outcome of one reload attempt: Ok when Err is nil, in
// which case the attempt committed.
type Result struct {
	AttemptID uuid.UUID
	Committed bool
	Err       error
	Summary   Summary
}

// OK returns true if the attempt committed.
func (r Result) OK() bool {
	return r.Err == nil
}
