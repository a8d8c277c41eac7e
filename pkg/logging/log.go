package logging

import (
	"net/http"
	"strings"

	"servlite/pkg/httpx"
	"servlite/pkg/logger"
)

var sensitive = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"x-client-id":   {},
}

// redactHeaderValue redacts known sensitive header values.
func redactHeaderValue(k, v string) string {
	if v == "" {
		return ""
	}
	if _, ok := sensitive[strings.ToLower(k)]; ok {
		return "<redacted>"
	}
	return v
}

// SafeHeaders returns a map of headers suitable for logging with sensitive
// values redacted. Only the first value is returned for brevity.
func SafeHeaders(h http.Header) map[string]string {
	out := make(map[string]string)
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		out[k] = redactHeaderValue(k, v[0])
	}
	return out
}

// LogRequest logs a concise, safe summary of an incoming request.
func LogRequest(r *httpx.Request) {
	logger.Info("incoming_request", "method", r.Method, "path", r.Path, "remote", r.RemoteAddr, "headers", SafeHeaders(r.Header))
}
