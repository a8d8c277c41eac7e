// Package router maps (method, path-pattern) keys to handlers and their
// ordered middleware chains. Patterns are exact literals or contain
// single-segment wildcards written as ":name" (e.g. /users/:id).
//
// Matching is deterministic: an exact literal match always wins over a
// wildcard match, and ties between wildcard patterns are resolved by
// registration order (first registered wins). This tie-break is part of
// the registry's contract and is relied upon by callers.
package router

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"servlite/pkg/httpx"
	"servlite/pkg/middleware"
)

var (
	// ErrDuplicateRoute reports a second registration for an already
	// registered (method, pattern) key. It is a startup-time error.
	ErrDuplicateRoute = errors.New("duplicate route")
	// ErrNotFound reports that no registered route matches.
	ErrNotFound = errors.New("route not found")
)

// Route is an immutable registered mapping. The middleware chain is fixed
// at registration and applied identically on every matching request.
type Route struct {
	Method  string
	Pattern string
	// Handler is the endpoint as registered, without middleware.
	Handler httpx.Handler
	// Middleware is the ordered chain as registered.
	Middleware []httpx.Middleware

	segments []segment
	composed httpx.Handler
}

// Serve runs the composed pipeline: every middleware in order, then the
// handler, honoring short-circuits.
func (rt *Route) Serve(r *httpx.Request) (*httpx.Response, error) {
	return rt.composed(r)
}

type segment struct {
	literal string
	param   string // non-empty for :name segments
}

// Registry holds all routes. It is populated before the listeners start
// accepting and is read-only afterwards, so Resolve takes no lock.
type Registry struct {
	mu       sync.Mutex
	exact    map[string]*Route   // "METHOD pattern" for literal patterns
	wildcard map[string][]*Route // per method, in registration order
	keys     map[string]struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		exact:    map[string]*Route{},
		wildcard: map[string][]*Route{},
		keys:     map[string]struct{}{},
	}
}

// Register adds a route. The middleware pipeline is composed here, once;
// no ordering metadata is allocated per request afterwards.
func (g *Registry) Register(method, pattern string, h httpx.Handler, mw ...httpx.Middleware) error {
	if h == nil {
		return fmt.Errorf("register %s %s: nil handler", method, pattern)
	}
	segs, wild, err := parsePattern(pattern)
	if err != nil {
		return fmt.Errorf("register %s %s: %w", method, pattern, err)
	}
	method = strings.ToUpper(method)
	pattern = normalize(pattern)

	g.mu.Lock()
	defer g.mu.Unlock()

	key := method + " " + pattern
	if _, dup := g.keys[key]; dup {
		return fmt.Errorf("%w: %s %s", ErrDuplicateRoute, method, pattern)
	}
	g.keys[key] = struct{}{}

	rt := &Route{
		Method:     method,
		Pattern:    pattern,
		Handler:    h,
		Middleware: append([]httpx.Middleware(nil), mw...),
		segments:   segs,
		composed:   middleware.Chain(h, mw...),
	}
	if wild {
		g.wildcard[method] = append(g.wildcard[method], rt)
	} else {
		g.exact[key] = rt
	}
	return nil
}

// MustRegister is Register for startup code where a failure is fatal.
func (g *Registry) MustRegister(method, pattern string, h httpx.Handler, mw ...httpx.Middleware) {
	if err := g.Register(method, pattern, h, mw...); err != nil {
		panic(err)
	}
}

// Resolve finds the route matching (method, path) and returns the wildcard
// bindings extracted from the path. It returns ErrNotFound when nothing
// matches.
func (g *Registry) Resolve(method, path string) (*Route, map[string]string, error) {
	method = strings.ToUpper(method)
	path = normalize(path)

	if rt, ok := g.exact[method+" "+path]; ok {
		return rt, map[string]string{}, nil
	}
	parts := splitPath(path)
	for _, rt := range g.wildcard[method] {
		if params, ok := rt.match(parts); ok {
			return rt, params, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
}

func (rt *Route) match(parts []string) (map[string]string, bool) {
	if len(parts) != len(rt.segments) {
		return nil, false
	}
	params := map[string]string{}
	for i, seg := range rt.segments {
		if seg.param != "" {
			params[seg.param] = parts[i]
			continue
		}
		if seg.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}

func parsePattern(pattern string) ([]segment, bool, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, false, fmt.Errorf("pattern must start with '/'")
	}
	pattern = normalize(pattern)
	var segs []segment
	wild := false
	for _, p := range splitPath(pattern) {
		if strings.HasPrefix(p, ":") {
			name := p[1:]
			if name == "" {
				return nil, false, fmt.Errorf("wildcard segment missing name")
			}
			segs = append(segs, segment{param: name})
			wild = true
			continue
		}
		segs = append(segs, segment{literal: p})
	}
	return segs, wild, nil
}

// normalize strips a trailing slash so /a/ and /a address the same route;
// the root path stays "/".
func normalize(p string) string {
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		p = "/"
	}
	return p
}

func splitPath(p string) []string {
	if p == "/" {
		return []string{""}
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}
