package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a remote ReloadService.
type Client struct {
	load    *connect.Client[LoadRequest, LoadResponse]
	reload  *connect.Client[ReloadRequest, ReloadResponse]
	history *connect.Client[HistoryRequest, HistoryResponse]
	classes *connect.Client[ClassesRequest, ClassesResponse]
	invoke  *connect.Client[InvokeRequest, InvokeResponse]
	new     *connect.Client[NewRequest, NewResponse]
	inspect *connect.Client[InspectRequest, InspectResponse]
}

// NewClient creates a client for the service at baseURL, for example
// "http://localhost:7151".
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(cborCodec{})}, opts...)
	return &Client{
		load:    connect.NewClient[LoadRequest, LoadResponse](httpClient, baseURL+LoadProcedure, opts...),
		reload:  connect.NewClient[ReloadRequest, ReloadResponse](httpClient, baseURL+ReloadProcedure, opts...),
		history: connect.NewClient[HistoryRequest, HistoryResponse](httpClient, baseURL+HistoryProcedure, opts...),
		classes: connect.NewClient[ClassesRequest, ClassesResponse](httpClient, baseURL+ClassesProcedure, opts...),
		invoke:  connect.NewClient[InvokeRequest, InvokeResponse](httpClient, baseURL+InvokeProcedure, opts...),
		new:     connect.NewClient[NewRequest, NewResponse](httpClient, baseURL+NewProcedure, opts...),
		inspect: connect.NewClient[InspectRequest, InspectResponse](httpClient, baseURL+InspectProcedure, opts...),
	}
}

func (c *Client) Load(ctx context.Context, req *LoadRequest) (*LoadResponse, error) {
	resp, err := c.load.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Reload(ctx context.Context, req *ReloadRequest) (*ReloadResponse, error) {
	resp, err := c.reload.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) History(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	resp, err := c.history.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Classes(ctx context.Context, req *ClassesRequest) (*ClassesResponse, error) {
	resp, err := c.classes.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	resp, err := c.invoke.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) New(ctx context.Context, req *NewRequest) (*NewResponse, error) {
	resp, err := c.new.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Inspect(ctx context.Context, req *InspectRequest) (*InspectResponse, error) {
	resp, err := c.inspect.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
