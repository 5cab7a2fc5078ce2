// Package gateway wraps the grpc-gateway ServeMux as a plain HTTP router
// with middleware chains and route groups.
package gateway

import (
	"fmt"
	"net/http"

	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
)

// HTTPMiddlewareFunc wraps the whole gateway handler.
type HTTPMiddlewareFunc func(http.Handler) http.Handler

// Gateway routes requests through a grpc-gateway ServeMux.
type Gateway struct {
	mux           *gwruntime.ServeMux
	premiddleware []HTTPMiddlewareFunc
	middleware    []HTTPMiddlewareFunc
}

// New creates a gateway over a fresh ServeMux.
func New(opts ...gwruntime.ServeMuxOption) *Gateway {
	return &Gateway{mux: gwruntime.NewServeMux(opts...)}
}

// Mux returns the underlying ServeMux.
func (gw *Gateway) Mux() *gwruntime.ServeMux {
	return gw.mux
}

func applyMiddleware(h http.Handler, middleware ...HTTPMiddlewareFunc) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// ServeHTTP runs the pre chain, then the regular chain, then the router.
func (gw *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var h http.Handler = gw.mux
	h = applyMiddleware(h, gw.middleware...)
	h = applyMiddleware(h, gw.premiddleware...)
	h.ServeHTTP(w, r)
}

// Use adds middleware to the chain which is run after Pre middleware.
func (gw *Gateway) Use(middleware ...HTTPMiddlewareFunc) {
	gw.middleware = append(gw.middleware, middleware...)
}

// Pre adds middleware to the chain which is run first.
func (gw *Gateway) Pre(middleware ...HTTPMiddlewareFunc) {
	gw.premiddleware = append(gw.premiddleware, middleware...)
}

// MiddlewareFunc wraps a single route.
type MiddlewareFunc func(gwruntime.HandlerFunc) gwruntime.HandlerFunc

// Group registers routes under a common prefix.
func (gw *Gateway) Group(prefix string, m ...MiddlewareFunc) *Group {
	g := &Group{
		prefix: prefix,
		gw:     gw,
	}
	g.Use(m...)
	return g
}

// Group is a set of routes sharing a prefix and middleware.
type Group struct {
	prefix     string
	gw         *Gateway
	middleware []MiddlewareFunc
}

// Use adds route middleware to every route registered afterwards.
func (g *Group) Use(middleware ...MiddlewareFunc) {
	g.middleware = append(g.middleware, middleware...)
}

// GET registers a GET route. Path templates follow google.api.http syntax,
// e.g. "/history/{execution_id}".
func (g *Group) GET(path string, h gwruntime.HandlerFunc, m ...MiddlewareFunc) error {
	return g.add(http.MethodGet, path, h, m...)
}

// POST registers a POST route.
func (g *Group) POST(path string, h gwruntime.HandlerFunc, m ...MiddlewareFunc) error {
	return g.add(http.MethodPost, path, h, m...)
}

func (g *Group) add(method, path string, h gwruntime.HandlerFunc, m ...MiddlewareFunc) error {
	middleware := append(append([]MiddlewareFunc(nil), g.middleware...), m...)
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	if err := g.gw.mux.HandlePath(method, g.prefix+path, h); err != nil {
		return fmt.Errorf("failed to register %s %s: %w", method, g.prefix+path, err)
	}
	return nil
}
