package server

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/chazu/swapvm/journal"
	"github.com/chazu/swapvm/reload"
	"github.com/chazu/swapvm/vm"
)

// ReloadService exposes loading, reloading and inspection of one isolate.
// Every isolate access goes through the worker.
type ReloadService struct {
	worker  *IsolateWorker
	manager *reload.Manager
	handles *HandleStore
	journal *journal.Store
}

// NewReloadService creates a ReloadService. history may be nil, in which
// case History fails with CodeUnimplemented.
func NewReloadService(worker *IsolateWorker, manager *reload.Manager, handles *HandleStore, history *journal.Store) *ReloadService {
	return &ReloadService{
		worker:  worker,
		manager: manager,
		handles: handles,
		journal: history,
	}
}

// Load installs the first program and makes Root the root library.
func (s *ReloadService) Load(
	ctx context.Context,
	req *connect.Request[LoadRequest],
) (*connect.Response[LoadResponse], error) {
	if req.Msg.Root == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("root is required"))
	}

	type loadResult struct {
		resp *LoadResponse
		err  error
	}
	result, err := s.worker.Do(ctx, func(iso *vm.Isolate) interface{} {
		if root := iso.ObjectStore().RootLibrary(); root != nil {
			return loadResult{err: connect.NewError(connect.CodeFailedPrecondition,
				fmt.Errorf("root library %s already loaded; use Reload", root.URL()))}
		}
		vm.NewDefinitionLoader(iso, req.Msg.Libraries...).Install()
		lib, err := iso.LoadScript(req.Msg.Root)
		if err != nil {
			iso.ObjectStore().SetRootLibrary(nil)
			return loadResult{err: connect.NewError(codeOf(err), err)}
		}
		return loadResult{resp: &LoadResponse{
			Root:    lib.URL(),
			NumCids: iso.ClassTable().NumCids(),
		}}
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	r := result.(loadResult)
	if r.err != nil {
		return nil, r.err
	}
	return connect.NewResponse(r.resp), nil
}

// Reload replaces the running program with req.Libraries.
func (s *ReloadService) Reload(
	ctx context.Context,
	req *connect.Request[ReloadRequest],
) (*connect.Response[ReloadResponse], error) {
	result, err := s.worker.Do(ctx, func(iso *vm.Isolate) interface{} {
		session, err := s.manager.Begin()
		if err != nil {
			return reload.Result{Err: err}
		}
		vm.NewDefinitionLoader(iso, req.Msg.Libraries...).Install()
		session.StartReload(ctx)
		return session.FinishReload()
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	res := result.(reload.Result)
	switch {
	case errors.Is(res.Err, reload.ErrAlreadyReloading), errors.Is(res.Err, reload.ErrNoRootLibrary):
		return nil, connect.NewError(connect.CodeFailedPrecondition, res.Err)
	}

	resp := &ReloadResponse{
		AttemptID: res.AttemptID.String(),
		Committed: res.Committed,
		Summary:   res.Summary,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return connect.NewResponse(resp), nil
}

// History lists journaled attempts, newest first.
func (s *ReloadService) History(
	ctx context.Context,
	req *connect.Request[HistoryRequest],
) (*connect.Response[HistoryResponse], error) {
	if s.journal == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("no reload journal configured"))
	}
	records, err := s.journal.List(ctx, req.Msg.Limit)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&HistoryResponse{Attempts: records}), nil
}

// Classes lists the live classes, in id order.
func (s *ReloadService) Classes(
	ctx context.Context,
	req *connect.Request[ClassesRequest],
) (*connect.Response[ClassesResponse], error) {
	result, err := s.worker.Do(ctx, func(iso *vm.Isolate) interface{} {
		resp := &ClassesResponse{}
		if root := iso.ObjectStore().RootLibrary(); root != nil {
			resp.Root = root.URL()
		}
		table := iso.ClassTable()
		for _, cls := range table.Snapshot() {
			if cls == nil {
				continue
			}
			if !req.Msg.IncludeCore && int(cls.ID()) < table.NumCoreCids() {
				continue
			}
			resp.Classes = append(resp.Classes, classInfo(cls))
		}
		return resp
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(result.(*ClassesResponse)), nil
}

// Invoke calls a method of a root-visible class once.
func (s *ReloadService) Invoke(
	ctx context.Context,
	req *connect.Request[InvokeRequest],
) (*connect.Response[InvokeResponse], error) {
	if req.Msg.Class == "" || req.Msg.Selector == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("class and selector are required"))
	}

	type invokeResult struct {
		resp *InvokeResponse
		err  error
	}
	result, err := s.worker.Do(ctx, func(iso *vm.Isolate) interface{} {
		cls, err := lookupRootClass(iso, req.Msg.Class)
		if err != nil {
			return invokeResult{err: err}
		}
		fn := iso.ResolveMethod(cls.ID(), req.Msg.Selector)
		if fn == nil {
			return invokeResult{err: connect.NewError(connect.CodeNotFound,
				fmt.Errorf("%w: %s>>%s", vm.ErrDoesNotUnderstand, cls.Name(), req.Msg.Selector))}
		}
		code := iso.Call(fn)
		return invokeResult{resp: &InvokeResponse{
			Function:   fn.String(),
			Optimized:  code.IsOptimized(),
			UsageCount: fn.UsageCounter(),
		}}
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	r := result.(invokeResult)
	if r.err != nil {
		return nil, r.err
	}
	return connect.NewResponse(r.resp), nil
}

// New allocates an instance of a root-visible class.
func (s *ReloadService) New(
	ctx context.Context,
	req *connect.Request[NewRequest],
) (*connect.Response[NewResponse], error) {
	if req.Msg.Class == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("class is required"))
	}

	type newResult struct {
		inst *vm.Instance
		err  error
	}
	result, err := s.worker.Do(ctx, func(iso *vm.Isolate) interface{} {
		cls, err := lookupRootClass(iso, req.Msg.Class)
		if err != nil {
			return newResult{err: err}
		}
		inst, err := iso.NewInstance(cls.ID())
		if err != nil {
			return newResult{err: connect.NewError(codeOf(err), err)}
		}
		return newResult{inst: inst}
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	r := result.(newResult)
	if r.err != nil {
		return nil, r.err
	}
	return connect.NewResponse(&NewResponse{Handle: s.handles.Create(r.inst)}), nil
}

// Inspect describes the instance behind a handle using its class's
// current shape.
func (s *ReloadService) Inspect(
	ctx context.Context,
	req *connect.Request[InspectRequest],
) (*connect.Response[InspectResponse], error) {
	inst, ok := s.handles.Lookup(req.Msg.Handle)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("handle %q not found", req.Msg.Handle))
	}

	result, err := s.worker.Do(ctx, func(iso *vm.Isolate) interface{} {
		resp := &InspectResponse{
			Handle:  req.Msg.Handle,
			ClassID: int32(inst.ClassID()),
		}
		if cls := iso.ClassTable().At(inst.ClassID()); cls != nil {
			resp.Class = cls.FullName()
			resp.Fields = append([]string(nil), cls.Shape().Fields...)
		}
		return resp
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(result.(*InspectResponse)), nil
}

func lookupRootClass(iso *vm.Isolate, name string) (*vm.Class, error) {
	root := iso.ObjectStore().RootLibrary()
	if root == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, reload.ErrNoRootLibrary)
	}
	cls := iso.LookupClass(root, name)
	if cls == nil {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("%w: %s", vm.ErrUnknownClass, name))
	}
	return cls, nil
}

func classInfo(cls *vm.Class) ClassInfo {
	shape := cls.Shape()
	info := ClassInfo{
		ID:         int32(cls.ID()),
		Name:       cls.Name(),
		Library:    cls.LibraryURL(),
		Superclass: shape.Superclass,
		Fields:     append([]string(nil), shape.Fields...),
		Methods:    shape.Selectors(),
	}
	return info
}

// codeOf maps isolate errors to connect codes.
func codeOf(err error) connect.Code {
	switch {
	case errors.Is(err, vm.ErrLibraryNotFound), errors.Is(err, vm.ErrUnknownClass):
		return connect.CodeNotFound
	case errors.Is(err, vm.ErrNoTagHandler):
		return connect.CodeFailedPrecondition
	}
	return connect.CodeInternal
}
