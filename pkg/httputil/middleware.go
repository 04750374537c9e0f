package httputil

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

// Middleware is a function that wraps a handler
type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

// MiddlewareGroup wraps a router group with middleware support
type MiddlewareGroup struct {
	group      *router.Group
	middleware []Middleware
}

// NewMiddlewareGroup creates a new middleware group
func NewMiddlewareGroup(group *router.Group, m ...Middleware) *MiddlewareGroup {
	return &MiddlewareGroup{
		group:      group,
		middleware: append(make([]Middleware, 0, len(m)), m...),
	}
}

// Use adds middleware to the group
func (g *MiddlewareGroup) Use(m ...Middleware) *MiddlewareGroup {
	g.middleware = append(g.middleware, m...)
	return g
}

// Group creates a new sub-group with inherited middleware
func (g *MiddlewareGroup) Group(path string) *MiddlewareGroup {
	return &MiddlewareGroup{
		group:      g.group.Group(path),
		middleware: append([]Middleware{}, g.middleware...),
	}
}

// Wrap applies the group middleware to a handler
func (g *MiddlewareGroup) Wrap(handler fasthttp.RequestHandler) fasthttp.RequestHandler {
	for i := len(g.middleware) - 1; i >= 0; i-- {
		handler = g.middleware[i](handler)
	}
	return handler
}

// GET registers a GET handler
func (g *MiddlewareGroup) GET(path string, handler fasthttp.RequestHandler) {
	g.group.GET(path, g.Wrap(handler))
}

// POST registers a POST handler
func (g *MiddlewareGroup) POST(path string, handler fasthttp.RequestHandler) {
	g.group.POST(path, g.Wrap(handler))
}

// DELETE registers a DELETE handler
func (g *MiddlewareGroup) DELETE(path string, handler fasthttp.RequestHandler) {
	g.group.DELETE(path, g.Wrap(handler))
}

// OPTIONS registers a preflight handler
func (g *MiddlewareGroup) OPTIONS(path string, handler fasthttp.RequestHandler) {
	g.group.OPTIONS(path, g.Wrap(handler))
}
