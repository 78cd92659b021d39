package server

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/swapvm/journal"
	"github.com/chazu/swapvm/reload"
	"github.com/chazu/swapvm/vm"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
//
// Each test gets its own isolate: reloads mutate the class table, so
// sharing one across tests would make them order dependent.
// ---------------------------------------------------------------------------

func programV1() []vm.LibraryDef {
	return []vm.LibraryDef{{
		URL:     "app:main",
		Imports: []string{"app:util"},
		Classes: []vm.ClassDef{{
			Name:   "Point",
			Fields: []string{"x"},
			Methods: []vm.MethodDef{{
				Name:  "norm",
				Calls: []vm.CallSiteDef{{Selector: "abs"}},
			}},
		}},
	}, {
		URL: "app:util",
		Classes: []vm.ClassDef{{
			Name:    "Math",
			Methods: []vm.MethodDef{{Name: "abs"}},
		}},
	}}
}

// programV2 adds a field and a method: a compatible change.
func programV2() []vm.LibraryDef {
	defs := programV1()
	defs[0].Classes[0].Fields = []string{"x", "y"}
	defs[0].Classes[0].Methods = append(defs[0].Classes[0].Methods, vm.MethodDef{Name: "dot"})
	return defs
}

// programBroken drops a field, which existing instances cannot follow.
func programBroken() []vm.LibraryDef {
	defs := programV1()
	defs[0].Classes[0].Fields = []string{"y"}
	return defs
}

type testEnv struct {
	iso     *vm.Isolate
	manager *reload.Manager
	journal *journal.Store
	server  *SwapServer
	http    *httptest.Server
	client  *Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := journal.Open("")
	require.NoError(t, err)

	iso := vm.NewIsolate("test")
	manager := reload.NewManager(iso, reload.WithTestMode(), reload.WithObserver(store))
	srv := New(manager, WithJournal(store))
	ts := httptest.NewServer(srv.Handler())

	env := &testEnv{
		iso:     iso,
		manager: manager,
		journal: store,
		server:  srv,
		http:    ts,
		client:  NewClient(ts.Client(), ts.URL),
	}
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
		store.Close()
	})
	return env
}

func (e *testEnv) load(t *testing.T) {
	t.Helper()
	_, err := e.client.Load(context.Background(), &LoadRequest{Root: "app:main", Libraries: programV1()})
	require.NoError(t, err)
}
