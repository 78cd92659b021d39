package server

import (
	"github.com/chazu/swapvm/journal"
	"github.com/chazu/swapvm/reload"
	"github.com/chazu/swapvm/vm"
)

// Procedure paths of the reload service.
const (
	ReloadServiceName = "swapvm.v1.ReloadService"

	LoadProcedure    = "/" + ReloadServiceName + "/Load"
	ReloadProcedure  = "/" + ReloadServiceName + "/Reload"
	HistoryProcedure = "/" + ReloadServiceName + "/History"
	ClassesProcedure = "/" + ReloadServiceName + "/Classes"
	InvokeProcedure  = "/" + ReloadServiceName + "/Invoke"
	NewProcedure     = "/" + ReloadServiceName + "/New"
	InspectProcedure = "/" + ReloadServiceName + "/Inspect"
)

// LoadRequest installs the first program. Root names the script library.
type LoadRequest struct {
	Root      string          `cbor:"root" json:"root"`
	Libraries []vm.LibraryDef `cbor:"libraries" json:"libraries"`
}

type LoadResponse struct {
	Root    string `cbor:"root" json:"root"`
	NumCids int    `cbor:"num_cids" json:"numCids"`
}

// ReloadRequest carries the complete new program. The root library keeps
// its URL, so Libraries must define it.
type ReloadRequest struct {
	Libraries []vm.LibraryDef `cbor:"libraries" json:"libraries"`
}

// ReloadResponse reports the outcome. A refused reload is not an RPC
// error: Committed is false and Error explains why.
type ReloadResponse struct {
	AttemptID string         `cbor:"attempt_id" json:"attemptId"`
	Committed bool           `cbor:"committed" json:"committed"`
	Error     string         `cbor:"error,omitempty" json:"error,omitempty"`
	Summary   reload.Summary `cbor:"summary" json:"summary"`
}

type HistoryRequest struct {
	Limit int `cbor:"limit,omitempty" json:"limit,omitempty"`
}

type HistoryResponse struct {
	Attempts []journal.Record `cbor:"attempts" json:"attempts"`
}

type ClassesRequest struct {
	// IncludeCore lists the core classes too.
	IncludeCore bool `cbor:"include_core,omitempty" json:"includeCore,omitempty"`
}

// ClassInfo describes one live class.
type ClassInfo struct {
	ID         int32    `cbor:"id" json:"id"`
	Name       string   `cbor:"name" json:"name"`
	Library    string   `cbor:"library" json:"library"`
	Superclass string   `cbor:"superclass,omitempty" json:"superclass,omitempty"`
	Fields     []string `cbor:"fields,omitempty" json:"fields,omitempty"`
	Methods    []string `cbor:"methods,omitempty" json:"methods,omitempty"`
}

type ClassesResponse struct {
	Root    string      `cbor:"root" json:"root"`
	Classes []ClassInfo `cbor:"classes" json:"classes"`
}

// InvokeRequest calls Class>>Selector once, as the profiler sees a call.
type InvokeRequest struct {
	Class    string `cbor:"class" json:"class"`
	Selector string `cbor:"selector" json:"selector"`
}

type InvokeResponse struct {
	Function   string `cbor:"function" json:"function"`
	Optimized  bool   `cbor:"optimized" json:"optimized"`
	UsageCount int    `cbor:"usage_count" json:"usageCount"`
}

// NewRequest allocates an instance and returns a handle to it.
type NewRequest struct {
	Class string `cbor:"class" json:"class"`
}

type NewResponse struct {
	Handle string `cbor:"handle" json:"handle"`
}

type InspectRequest struct {
	Handle string `cbor:"handle" json:"handle"`
}

// InspectResponse shows an instance through its class's current shape.
type InspectResponse struct {
	Handle  string   `cbor:"handle" json:"handle"`
	ClassID int32    `cbor:"class_id" json:"classId"`
	Class   string   `cbor:"class" json:"class"`
	Fields  []string `cbor:"fields,omitempty" json:"fields,omitempty"`
}
