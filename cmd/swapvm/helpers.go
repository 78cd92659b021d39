package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/chazu/swapvm/server"
)

// userErr marks errors caused by bad input rather than a failing system.
type userErr struct{ err error }

func (e *userErr) Error() string { return e.err.Error() }
func (e *userErr) Unwrap() error { return e.err }

func userError(err error) error {
	if err == nil {
		return nil
	}
	return &userErr{err: err}
}

func isUserError(err error) bool {
	var ue *userErr
	return errors.As(err, &ue)
}

// serviceURL turns a listen address into a URL a client can dial.
func serviceURL(listen string) string {
	if strings.HasPrefix(listen, "http://") || strings.HasPrefix(listen, "https://") {
		return listen
	}
	if strings.HasPrefix(listen, ":") {
		listen = "localhost" + listen
	}
	return "http://" + listen
}

// rpcError classifies a service error. Requests the isolate refuses are
// user errors; an unreachable service is not.
func rpcError(err error) error {
	switch connect.CodeOf(err) {
	case connect.CodeInvalidArgument, connect.CodeNotFound, connect.CodeFailedPrecondition:
		return userError(err)
	}
	return err
}

func newClient() *server.Client {
	return server.NewClient(http.DefaultClient, serviceURL(config.Server.Listen))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
