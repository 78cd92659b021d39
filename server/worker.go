package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/swapvm/vm"
)

// isolateRequest is a unit of work for the isolate goroutine.
type isolateRequest struct {
	fn   func(*vm.Isolate) interface{}
	done chan isolateResult
}

type isolateResult struct {
	value interface{}
	err   error
}

var (
	ErrWorkerStopped = errors.New("server: isolate worker stopped")
	ErrWorkerPanic   = errors.New("server: isolate request panicked")
)

// IsolateWorker runs every service request against the isolate on one
// goroutine, so a reload never interleaves with a load or an invocation
// issued through the service.
type IsolateWorker struct {
	iso      *vm.Isolate
	requests chan isolateRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewIsolateWorker creates an IsolateWorker and starts its goroutine.
func NewIsolateWorker(iso *vm.Isolate) *IsolateWorker {
	w := &IsolateWorker{
		iso:      iso,
		requests: make(chan isolateRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *IsolateWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			result := w.execute(req.fn)
			req.done <- result
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, turning a panic into an error.
func (w *IsolateWorker) execute(fn func(*vm.Isolate) interface{}) isolateResult {
	var result isolateResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			}
		}()
		result.value = fn(w.iso)
	}()
	return result
}

// Do runs fn on the isolate goroutine and waits for it. It gives up with
// ctx's error if ctx ends first and with ErrWorkerStopped after Stop.
func (w *IsolateWorker) Do(ctx context.Context, fn func(*vm.Isolate) interface{}) (interface{}, error) {
	select {
	case <-w.quit:
		return nil, ErrWorkerStopped
	default:
	}

	req := isolateRequest{
		fn:   fn,
		done: make(chan isolateResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *IsolateWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}

// Isolate returns the underlying isolate.
func (w *IsolateWorker) Isolate() *vm.Isolate {
	return w.iso
}
