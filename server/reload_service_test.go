package server

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/swapvm/reload"
	"github.com/chazu/swapvm/vm"
)

func TestLoadInstallsRoot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.client.Load(ctx, &LoadRequest{Root: "app:main", Libraries: programV1()})
	require.NoError(t, err)
	assert.Equal(t, "app:main", resp.Root)
	assert.Equal(t, env.iso.ClassTable().NumCoreCids()+2, resp.NumCids)

	_, err = env.client.Load(ctx, &LoadRequest{Root: "app:main", Libraries: programV1()})
	require.Error(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestLoadValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Load(ctx, &LoadRequest{})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = env.client.Load(ctx, &LoadRequest{Root: "app:missing"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	// A failed load leaves the isolate loadable.
	env.load(t)
}

func TestReloadCommits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t)

	before, err := env.client.Classes(ctx, &ClassesRequest{})
	require.NoError(t, err)
	require.Len(t, before.Classes, 2)

	resp, err := env.client.Reload(ctx, &ReloadRequest{Libraries: programV2()})
	require.NoError(t, err)
	assert.True(t, resp.Committed)
	assert.Empty(t, resp.Error)
	assert.NotEmpty(t, resp.AttemptID)
	assert.Len(t, resp.Summary.ClassMappings, 2)
	assert.Len(t, resp.Summary.LibraryMappings, 2)

	after, err := env.client.Classes(ctx, &ClassesRequest{})
	require.NoError(t, err)
	require.Len(t, after.Classes, 2)
	assert.Equal(t, "app:main", after.Root)

	for i := range before.Classes {
		assert.Equal(t, before.Classes[i].ID, after.Classes[i].ID, "class ids survive a reload")
		assert.Equal(t, before.Classes[i].Name, after.Classes[i].Name)
	}
	point := findClass(t, after, "Point")
	assert.Equal(t, []string{"x", "y"}, point.Fields)
	assert.Equal(t, []string{"dot", "norm"}, point.Methods)
}

func TestReloadRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t)

	resp, err := env.client.Reload(ctx, &ReloadRequest{Libraries: programBroken()})
	require.NoError(t, err, "a refused reload is reported in the response")
	assert.False(t, resp.Committed)
	assert.Contains(t, resp.Error, "Point")

	classes, err := env.client.Classes(ctx, &ClassesRequest{})
	require.NoError(t, err)
	require.Len(t, classes.Classes, 2)
	assert.Equal(t, []string{"x"}, findClass(t, classes, "Point").Fields)
}

func TestReloadWithoutProgram(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.Reload(context.Background(), &ReloadRequest{Libraries: programV1()})
	require.Error(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestRefusedReloadKeepsLoader(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t)

	session, err := env.manager.Begin()
	require.NoError(t, err)

	_, err = env.client.Reload(ctx, &ReloadRequest{Libraries: programBroken()})
	require.Error(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	// The live session still loads the program installed by Load.
	result, err := env.server.Worker().Do(ctx, func(*vm.Isolate) interface{} {
		session.StartReload(ctx)
		return session.FinishReload()
	})
	require.NoError(t, err)
	res := result.(reload.Result)
	require.NoError(t, res.Err)
	assert.True(t, res.Committed)

	classes, err := env.client.Classes(ctx, &ClassesRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, findClass(t, classes, "Point").Fields)
}

func TestHistoryRecordsAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t)

	ok, err := env.client.Reload(ctx, &ReloadRequest{Libraries: programV2()})
	require.NoError(t, err)
	failed, err := env.client.Reload(ctx, &ReloadRequest{Libraries: programBroken()})
	require.NoError(t, err)

	history, err := env.client.History(ctx, &HistoryRequest{})
	require.NoError(t, err)
	require.Len(t, history.Attempts, 2)

	assert.Equal(t, failed.AttemptID, history.Attempts[0].AttemptID)
	assert.Equal(t, reload.EventReloadFailed, history.Attempts[0].Outcome)
	assert.NotEmpty(t, history.Attempts[0].Error)

	assert.Equal(t, ok.AttemptID, history.Attempts[1].AttemptID)
	assert.True(t, history.Attempts[1].Committed())
	assert.Len(t, history.Attempts[1].Summary.ClassMappings, 2)

	limited, err := env.client.History(ctx, &HistoryRequest{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited.Attempts, 1)
}

func TestHistoryWithoutJournal(t *testing.T) {
	srv := New(reload.NewManager(vm.NewIsolate("bare"), reload.WithTestMode()))
	defer srv.Stop()

	svc := NewReloadService(srv.worker, srv.manager, srv.handles, nil)
	_, err := svc.History(context.Background(), connect.NewRequest(&HistoryRequest{}))
	assert.Equal(t, connect.CodeUnimplemented, connect.CodeOf(err))
}

func TestInvokeOptimizesAndReloadInvalidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t)

	threshold := env.iso.Profiler().OptimizationThreshold
	var resp *InvokeResponse
	var err error
	for i := 0; i < threshold; i++ {
		resp, err = env.client.Invoke(ctx, &InvokeRequest{Class: "Point", Selector: "norm"})
		require.NoError(t, err)
	}
	assert.True(t, resp.Optimized)
	assert.Equal(t, threshold, resp.UsageCount)

	reloaded, err := env.client.Reload(ctx, &ReloadRequest{Libraries: programV2()})
	require.NoError(t, err)
	require.True(t, reloaded.Committed)
	assert.Positive(t, reloaded.Summary.Invalidation.FunctionsReset)

	resp, err = env.client.Invoke(ctx, &InvokeRequest{Class: "Point", Selector: "norm"})
	require.NoError(t, err)
	assert.False(t, resp.Optimized, "reload discards optimized code")
	assert.Equal(t, 1, resp.UsageCount)
}

func TestInvokeErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Invoke(ctx, &InvokeRequest{Class: "Point"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = env.client.Invoke(ctx, &InvokeRequest{Class: "Point", Selector: "norm"})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	env.load(t)
	_, err = env.client.Invoke(ctx, &InvokeRequest{Class: "Nope", Selector: "norm"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
	_, err = env.client.Invoke(ctx, &InvokeRequest{Class: "Point", Selector: "nope"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestHandleSurvivesReload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t)

	created, err := env.client.New(ctx, &NewRequest{Class: "Point"})
	require.NoError(t, err)

	before, err := env.client.Inspect(ctx, &InspectRequest{Handle: created.Handle})
	require.NoError(t, err)
	assert.Equal(t, "app:main::Point", before.Class)
	assert.Equal(t, []string{"x"}, before.Fields)

	_, err = env.client.Reload(ctx, &ReloadRequest{Libraries: programV2()})
	require.NoError(t, err)

	after, err := env.client.Inspect(ctx, &InspectRequest{Handle: created.Handle})
	require.NoError(t, err)
	assert.Equal(t, before.ClassID, after.ClassID)
	assert.Equal(t, []string{"x", "y"}, after.Fields)

	_, err = env.client.Inspect(ctx, &InspectRequest{Handle: "h-404"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func findClass(t *testing.T, resp *ClassesResponse, name string) ClassInfo {
	t.Helper()
	for _, cls := range resp.Classes {
		if cls.Name == name {
			return cls
		}
	}
	t.Fatalf("class %s not listed", name)
	return ClassInfo{}
}
