package httpserver

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"servlite/pkg/httpx"
	"servlite/pkg/logger"
	"servlite/pkg/logging"
	"servlite/pkg/shutdown"
	"servlite/pkg/telemetry"
)

// Connection states. Transitions only move forward; a connection is never
// reopened.
const (
	stateOpening int32 = iota
	stateActive
	stateClosing
	stateClosed
)

// conn is one accepted HTTP connection. It implements shutdown.Conn so the
// coordinator can ask it to finish gracefully or tear it down.
type conn struct {
	c   net.Conn
	srv *Server

	state     atomic.Int32
	closing   atomic.Bool // drain requested: finish in-flight, take no new
	closeOnce sync.Once
}

func newConn(c net.Conn, srv *Server) *conn {
	cn := &conn{c: c, srv: srv}
	cn.state.Store(stateOpening)
	return cn
}

// Kind implements shutdown.Conn.
func (cn *conn) Kind() shutdown.Kind { return shutdown.KindHTTP }

// CloseGraceful implements shutdown.Conn: the in-flight request (if any)
// completes, but no further request is read from this socket.
func (cn *conn) CloseGraceful() {
	cn.closing.Store(true)
	cn.advance(stateClosing)
}

// CloseForce implements shutdown.Conn.
func (cn *conn) CloseForce() error {
	cn.closing.Store(true)
	return cn.closeSocket()
}

// advance moves the state forward, never backward.
func (cn *conn) advance(to int32) {
	for {
		cur := cn.state.Load()
		if cur >= to {
			return
		}
		if cn.state.CompareAndSwap(cur, to) {
			return
		}
	}
}

func (cn *conn) closeSocket() error {
	var err error
	cn.closeOnce.Do(func() {
		cn.advance(stateClosing)
		err = cn.c.Close()
		cn.advance(stateClosed)
	})
	return err
}

// serve runs the per-connection read loop. The connection is registered
// with the shutdown coordinator before the first parse and deregistered
// exactly once on every exit path.
func (cn *conn) serve() {
	cn.srv.co.Register(cn)
	cn.advance(stateActive)
	telemetry.ActiveConnections.WithLabelValues(cn.Kind().String()).Inc()
	defer func() {
		_ = cn.closeSocket()
		cn.srv.co.Deregister(cn)
		telemetry.ActiveConnections.WithLabelValues(cn.Kind().String()).Dec()
	}()

	br := bufio.NewReader(cn.c)
	for !cn.closing.Load() {
		_ = cn.c.SetReadDeadline(time.Now().Add(cn.srv.cfg.ReadTimeout))
		req, err := httpx.ReadRequest(br, cn.c.RemoteAddr().String(), cn.srv.cfg.MaxBodyBytes)
		if err != nil {
			if errors.Is(err, httpx.ErrMalformedRequest) {
				logger.Warn("malformed_request", "remote", cn.c.RemoteAddr().String(), "error", err)
				cn.write(httpx.Error(http.StatusBadRequest, "bad request"), false)
				return
			}
			// clean close, idle deadline expiry or forced teardown
			var ne net.Error
			if err != io.EOF && !errors.Is(err, net.ErrClosed) && !(errors.As(err, &ne) && ne.Timeout()) {
				logger.Debug("request_read_failed", "remote", cn.c.RemoteAddr().String(), "error", err)
			}
			return
		}

		logging.LogRequest(req)
		start := time.Now()
		resp := cn.dispatch(req)
		if req.Method == http.MethodHead {
			// a HEAD response must not carry a body; dropping it keeps the
			// emitted Content-Length and the bytes on the wire in agreement
			resp.Body = nil
		}
		keepAlive := req.KeepAlive() && !cn.closing.Load() &&
			resp.Header.Get("Connection") != "close"
		telemetry.ObserveRequest(req.Method, resp.Status, time.Since(start))

		if !cn.write(resp, keepAlive) {
			return
		}
		if !keepAlive {
			return
		}
	}
}

// dispatch resolves and runs one request, converting every failure class
// to its response: 404 for unknown routes, 500 for handler errors and
// panics. Internal detail is logged, never sent to the client.
func (cn *conn) dispatch(req *httpx.Request) (resp *httpx.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("handler_panic", "method", req.Method, "path", req.Path, "panic", rec)
			resp = httpx.Error(http.StatusInternalServerError, "internal server error")
		}
	}()

	rt, params, err := cn.srv.reg.Resolve(req.Method, req.Path)
	if err != nil {
		logger.Debug("route_not_found", "method", req.Method, "path", req.Path)
		return httpx.Error(http.StatusNotFound, "not found")
	}
	req.Params = params

	out, err := rt.Serve(req)
	if err != nil {
		logger.Error("handler_error", "method", req.Method, "path", req.Path, "error", err)
		return httpx.Error(http.StatusInternalServerError, "internal server error")
	}
	if out == nil {
		logger.Error("handler_nil_response", "method", req.Method, "path", req.Path)
		return httpx.Error(http.StatusInternalServerError, "internal server error")
	}
	return out
}

func (cn *conn) write(resp *httpx.Response, keepAlive bool) bool {
	_ = cn.c.SetWriteDeadline(time.Now().Add(cn.srv.cfg.WriteTimeout))
	if err := httpx.WriteResponse(cn.c, resp, keepAlive); err != nil {
		logger.Debug("response_write_failed", "remote", cn.c.RemoteAddr().String(), "error", err)
		return false
	}
	return true
}
