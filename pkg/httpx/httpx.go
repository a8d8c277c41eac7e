package httpx

import (
	"encoding/json"
	"net"
	"net/http"
)

// Request is the unified request representation used by handlers on both
// listening surfaces. It is built once per inbound message and must not be
// retained or shared after the dispatch call that created it returns.
type Request struct {
	Method string
	Path   string
	Proto  string
	// Header holds canonicalized (case-insensitive) header keys.
	Header http.Header
	// Query holds decoded query-string parameters (first value wins).
	Query map[string]string
	// Params holds path parameters bound by the route registry,
	// e.g. pattern /users/:id with path /users/42 yields {"id": "42"}.
	Params     map[string]string
	Body       []byte
	RemoteAddr string
}

// ClientIP returns the host portion of the remote address.
func (r *Request) ClientIP() string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Response is produced by a handler or middleware and consumed exactly once
// by the serializer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse returns an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

// SetHeader sets a response header, replacing any existing value.
func (r *Response) SetHeader(key, value string) {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
}

// Text returns a text/plain response.
func Text(status int, body string) *Response {
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Body = []byte(body)
	return resp
}

// HTML returns a text/html response.
func HTML(status int, body string) *Response {
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	resp.Body = []byte(body)
	return resp
}

// JSON marshals v into an application/json response. Marshal failures
// degrade to an opaque 500 so handlers never need a second error path.
func JSON(status int, v interface{}) *Response {
	b, err := json.Marshal(v)
	if err != nil {
		return Error(http.StatusInternalServerError, "internal server error")
	}
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = b
	return resp
}

// Error returns a JSON error response with the given status code and
// message. It ensures the Content-Type is set to application/json.
func Error(status int, message string) *Response {
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "application/json")
	b, _ := json.Marshal(map[string]string{"error": message})
	resp.Body = b
	return resp
}

// Handler is the application handler signature used across both surfaces.
// A returned error is converted to an opaque 500 at the pipeline boundary;
// the error detail is logged and never reaches the client body.
type Handler func(r *Request) (*Response, error)

// Middleware wraps a handler. A middleware may short-circuit by returning a
// response without invoking the wrapped handler.
type Middleware func(Handler) Handler
