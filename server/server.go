package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/swapvm/journal"
	"github.com/chazu/swapvm/reload"
)

// SwapServer serves the reload service for one isolate over Connect,
// using the CBOR codec.
type SwapServer struct {
	worker  *IsolateWorker
	manager *reload.Manager
	handles *HandleStore
	mux     *http.ServeMux
	log     commonlog.Logger

	mu               sync.Mutex
	httpServer       *http.Server
	stopSweeper      func()
	unsubscribeEvent func()
}

// ServerOption configures a SwapServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	journal        *journal.Store
	sweepInterval  time.Duration
	handleTTL      time.Duration
	handlerOptions []connect.HandlerOption
}

// WithJournal serves History from store.
func WithJournal(store *journal.Store) ServerOption {
	return func(c *serverConfig) { c.journal = store }
}

// WithHandleTTL expires instance handles not used for ttl.
func WithHandleTTL(interval, ttl time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.sweepInterval = interval
		c.handleTTL = ttl
	}
}

// WithHandlerOptions adds connect handler options, such as interceptors.
func WithHandlerOptions(opts ...connect.HandlerOption) ServerOption {
	return func(c *serverConfig) { c.handlerOptions = append(c.handlerOptions, opts...) }
}

// New creates a SwapServer for the manager's isolate.
func New(manager *reload.Manager, opts ...ServerOption) *SwapServer {
	cfg := &serverConfig{
		sweepInterval: 5 * time.Minute,
		handleTTL:     30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &SwapServer{
		worker:  NewIsolateWorker(manager.Isolate()),
		manager: manager,
		handles: NewHandleStore(),
		mux:     http.NewServeMux(),
		log:     commonlog.GetLogger("swapvm.server"),
	}
	s.unsubscribeEvent = manager.Subscribe(reload.ObserverFunc(s.logEvent))

	svc := NewReloadService(s.worker, manager, s.handles, cfg.journal)
	handlerOpts := append([]connect.HandlerOption{connect.WithCodec(cborCodec{})}, cfg.handlerOptions...)

	s.mux.Handle(LoadProcedure, connect.NewUnaryHandler(LoadProcedure, svc.Load, handlerOpts...))
	s.mux.Handle(ReloadProcedure, connect.NewUnaryHandler(ReloadProcedure, svc.Reload, handlerOpts...))
	s.mux.Handle(HistoryProcedure, connect.NewUnaryHandler(HistoryProcedure, svc.History, handlerOpts...))
	s.mux.Handle(ClassesProcedure, connect.NewUnaryHandler(ClassesProcedure, svc.Classes, handlerOpts...))
	s.mux.Handle(InvokeProcedure, connect.NewUnaryHandler(InvokeProcedure, svc.Invoke, handlerOpts...))
	s.mux.Handle(NewProcedure, connect.NewUnaryHandler(NewProcedure, svc.New, handlerOpts...))
	s.mux.Handle(InspectProcedure, connect.NewUnaryHandler(InspectProcedure, svc.Inspect, handlerOpts...))

	s.stopSweeper = s.handles.StartSweeper(cfg.sweepInterval, cfg.handleTTL)
	return s
}

// Handler returns the HTTP handler serving every procedure.
func (s *SwapServer) Handler() http.Handler {
	return s.mux
}

// Worker returns the isolate worker, for in-process callers that must not
// race the service.
func (s *SwapServer) Worker() *IsolateWorker {
	return s.worker
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *SwapServer) ListenAndServe(addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	s.log.Noticef("reload service listening on %s", addr)
	s.log.Infof("  Reload: http://%s%s", addr, ReloadProcedure)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *SwapServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

// Stop shuts down the background goroutines.
func (s *SwapServer) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
		s.stopSweeper = nil
	}
	if s.unsubscribeEvent != nil {
		s.unsubscribeEvent()
		s.unsubscribeEvent = nil
	}
	s.worker.Stop()
}

func (s *SwapServer) logEvent(e reload.Event) {
	for _, d := range e.Summary.Duplicates {
		s.log.Warningf("reload %s: %s matched %d additional classes; kept id %d", e.AttemptID, d.Class, d.Extra, d.Chosen)
	}
	switch e.Kind {
	case reload.EventReloadSucceeded:
		s.log.Infof("reload %s of %s committed in %s: %d classes remapped, %d functions reset",
			e.AttemptID, e.Summary.ScriptURL, e.Elapsed,
			len(e.Summary.ClassMappings), e.Summary.Invalidation.FunctionsReset)
	case reload.EventReloadFailed:
		s.log.Warningf("reload %s of %s rolled back: %s", e.AttemptID, e.Summary.ScriptURL, e.Err)
	}
}
