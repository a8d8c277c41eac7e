package middleware

import (
	"net/http"
	"strings"

	"servlite/pkg/httpx"
)

const (
	corsMethods = "GET,POST,PUT,DELETE,PATCH,OPTIONS"
	corsHeaders = "Authorization,Content-Type,X-Client-ID"
	corsMaxAge  = "600"
)

// CORS returns a middleware handling cross-origin requests for the given
// allowed origins ("*" allows any). Requests without an Origin header pass
// through untouched. Preflight OPTIONS requests short-circuit with 204
// carrying only the CORS headers; other requests get the headers injected
// into the handler's eventual response.
func CORS(allowedOrigins []string) httpx.Middleware {
	allowed := append([]string(nil), allowedOrigins...)
	return func(next httpx.Handler) httpx.Handler {
		return func(r *httpx.Request) (*httpx.Response, error) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return next(r)
			}

			if r.Method == http.MethodOptions {
				resp := httpx.NewResponse(http.StatusNoContent)
				if originAllowed(origin, allowed) {
					setCORSHeaders(resp, origin)
				}
				return resp, nil
			}

			resp, err := next(r)
			if err != nil || resp == nil {
				return resp, err
			}
			if originAllowed(origin, allowed) {
				setCORSHeaders(resp, origin)
			}
			return resp, nil
		}
	}
}

func setCORSHeaders(resp *httpx.Response, origin string) {
	resp.SetHeader("Access-Control-Allow-Origin", origin)
	resp.SetHeader("Vary", "Origin")
	resp.SetHeader("Access-Control-Allow-Methods", corsMethods)
	resp.SetHeader("Access-Control-Allow-Headers", corsHeaders)
	resp.SetHeader("Access-Control-Max-Age", corsMaxAge)
}

func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
