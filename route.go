package weft

import (
	"strings"

	"github.com/weftsrv/weft/cmn/cos"
	"github.com/weftsrv/weft/schema"
)

// HandlerFunc is a user route handler. It receives a Request bound to
// the in-flight context and returns an HTTP status code; 0 means "close
// the connection without writing a reply."
type HandlerFunc func(*Request) int

// ErrorHandlerFunc handles a request that failed before dispatch (a
// missing route or a query-argument parse failure).
type ErrorHandlerFunc func(*Request, error) int

// Route is an exact-match (path, schema, handler, user data) quadruple.
// Schema is immutable once compiled.
type Route struct {
	Path     string
	Schema   *schema.Schema
	Handler  HandlerFunc
	UserData any
}

// routeTable is an exact-path string map, read-only after Listen begins
// and therefore safe for unsynchronized concurrent reads from every
// reactor goroutine, per spec.md section 4.3.
type routeTable struct {
	routes map[string]*Route
}

func newRouteTable() *routeTable {
	return &routeTable{routes: make(map[string]*Route)}
}

func (rt *routeTable) add(path string, schema *schema.Schema, h HandlerFunc, userData any) error {
	if path == "" || !strings.HasPrefix(path, "/") {
		return cos.NewProtocolError("route path %q must be non-empty and start with '/'", path)
	}
	if h == nil {
		return cos.NewProtocolError("route path %q: handler must not be nil", path)
	}
	rt.routes[path] = &Route{Path: path, Schema: schema, Handler: h, UserData: userData}
	return nil
}

func (rt *routeTable) lookup(path string) (*Route, bool) {
	r, ok := rt.routes[path]
	return r, ok
}
