// Package wsserver is the persistent bidirectional surface: it performs
// the WebSocket upgrade handshake on its own listener and then runs a
// per-connection frame loop independent of the HTTP dispatcher.
//
// A connection walks a fixed forward-only state machine:
// Handshaking -> Open -> Closing -> Closed.
package wsserver

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"servlite/pkg/httpx"
	"servlite/pkg/logger"
	"servlite/pkg/shutdown"
	"servlite/pkg/telemetry"
)

// Config holds engine tunables.
type Config struct {
	Addr string
	// IdleTimeout is how long the read loop waits for any frame before
	// probing the peer with a ping. Two unanswered pings close the
	// session with an abnormal-closure status.
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxMessageBytes  int64
}

// Server owns the WebSocket listener.
type Server struct {
	cfg     Config
	handler Handler
	co      *shutdown.Coordinator

	ln        net.Listener
	accepting atomic.Bool
	wg        sync.WaitGroup
}

// New returns an unstarted engine delivering messages to handler.
func New(cfg Config, handler Handler, co *shutdown.Coordinator) *Server {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 1 << 20
	}
	return &Server{cfg: cfg, handler: handler, co: co}
}

// Start binds the listener and begins accepting in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.accepting.Store(true)
	logger.Info("ws_listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.cfg.Addr
	}
	return s.ln.Addr().String()
}

// Stop closes the listener; established sessions are left to the
// coordinator's drain.
func (s *Server) Stop() {
	if !s.accepting.CompareAndSwap(true, false) {
		return
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if !s.accepting.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("ws_accept_failed", "error", err)
			continue
		}
		go s.serveConn(c)
	}
}

// serveConn performs the handshake and, on success, runs the session until
// it closes. The session is registered with the shutdown coordinator for
// its entire Open lifetime and deregistered exactly once.
func (s *Server) serveConn(c net.Conn) {
	br := bufio.NewReader(c)
	_ = c.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))

	req, err := httpx.ReadRequest(br, c.RemoteAddr().String(), 4096)
	if err != nil {
		_ = httpx.WriteResponse(c, httpx.Error(http.StatusBadRequest, "bad request"), false)
		_ = c.Close()
		return
	}
	key, err := validateUpgrade(req)
	if err != nil {
		logger.Warn("ws_handshake_failed", "remote", c.RemoteAddr().String(), "error", err)
		_ = httpx.WriteResponse(c, httpx.Error(http.StatusBadRequest, "bad websocket handshake"), false)
		_ = c.Close()
		return
	}
	if err := writeHandshakeResponse(c, key); err != nil {
		_ = c.Close()
		return
	}

	sess := newSession(c, s)
	sess.advance(stateOpen)
	s.co.Register(sess)
	telemetry.ActiveConnections.WithLabelValues(sess.Kind().String()).Inc()
	logger.Info("ws_session_open", "remote", sess.RemoteAddr())

	go sess.writeLoop()
	s.readLoop(sess, br)

	sess.stop()
	_ = sess.closeSocket()
	s.co.Deregister(sess)
	telemetry.ActiveConnections.WithLabelValues(sess.Kind().String()).Dec()
	logger.Info("ws_session_closed", "remote", sess.RemoteAddr(), "status", sess.closeStatus.Load())
}

// readLoop parses frames, assembles fragmented messages, answers control
// frames internally and delivers complete data messages to the handler.
func (s *Server) readLoop(sess *Session, br *bufio.Reader) {
	var msgOp opcode
	var msgBuf []byte
	unansweredPings := 0

	for {
		_ = sess.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		f, err := readFrame(br, s.cfg.MaxMessageBytes)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if unansweredPings >= 2 {
					// two consecutive missed pongs: abnormal closure
					logger.Warn("ws_liveness_failed", "remote", sess.RemoteAddr())
					sess.closeStatus.Store(CloseAbnormal)
					sess.advance(stateClosing)
					return
				}
				sess.sendControl(frame{fin: true, op: opPing})
				unansweredPings++
				continue
			}
			if errors.Is(err, errProtocol) {
				logger.Warn("ws_protocol_error", "remote", sess.RemoteAddr(), "error", err)
				sess.sendControl(frame{fin: true, op: opClose, payload: closePayload(CloseProtocolError, "protocol error")})
				sess.closeStatus.Store(CloseProtocolError)
				sess.advance(stateClosing)
				return
			}
			sess.closeStatus.Store(CloseAbnormal)
			sess.advance(stateClosing)
			return
		}
		unansweredPings = 0

		switch f.op {
		case opPing:
			// answer immediately; never delivered to the handler
			sess.sendControl(frame{fin: true, op: opPong, payload: f.payload})
		case opPong:
			sess.lastPong.Store(time.Now().UnixNano())
		case opClose:
			code := parseClosePayload(f.payload)
			if sess.state.Load() < stateClosing {
				// peer-initiated close: echo before tearing down
				sess.sendControl(frame{fin: true, op: opClose, payload: closePayload(code, "")})
			}
			sess.closeStatus.Store(int32(code))
			sess.advance(stateClosing)
			// give the writer a moment to flush the close frame
			time.Sleep(10 * time.Millisecond)
			return
		case opText, opBinary:
			if msgBuf != nil {
				s.protocolAbort(sess, "data frame while awaiting continuation")
				return
			}
			if f.fin {
				s.deliver(sess, Message{Type: MessageType(f.op), Data: f.payload})
				continue
			}
			msgOp = f.op
			msgBuf = append([]byte(nil), f.payload...)
		case opContinuation:
			if msgBuf == nil {
				s.protocolAbort(sess, "continuation without initial frame")
				return
			}
			if int64(len(msgBuf)+len(f.payload)) > s.cfg.MaxMessageBytes {
				s.protocolAbort(sess, "assembled message too large")
				return
			}
			msgBuf = append(msgBuf, f.payload...)
			if f.fin {
				s.deliver(sess, Message{Type: MessageType(msgOp), Data: msgBuf})
				msgBuf = nil
			}
		}
	}
}

func (s *Server) protocolAbort(sess *Session, reason string) {
	logger.Warn("ws_protocol_error", "remote", sess.RemoteAddr(), "error", reason)
	sess.sendControl(frame{fin: true, op: opClose, payload: closePayload(CloseProtocolError, reason)})
	sess.closeStatus.Store(CloseProtocolError)
	sess.advance(stateClosing)
	time.Sleep(10 * time.Millisecond)
}

// deliver hands one assembled message to the application handler with a
// panic boundary so a misbehaving handler cannot kill the engine.
func (s *Server) deliver(sess *Session, m Message) {
	if s.handler == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("ws_handler_panic", "remote", sess.RemoteAddr(), "panic", rec)
		}
	}()
	telemetry.WSMessages.Inc()
	s.handler(sess, m)
}
