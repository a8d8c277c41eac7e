// Package middleware provides the composition primitive for request
// pipelines plus the built-in CORS and rate-limiting stages.
package middleware

import "servlite/pkg/httpx"

// Chain wraps h with the given middleware so that mw[0] is outermost:
// mw[0] observes the request first and the response last. Composition
// happens once, at route registration.
func Chain(h httpx.Handler, mw ...httpx.Middleware) httpx.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
