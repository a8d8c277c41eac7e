package wsserver

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"servlite/pkg/logger"
	"servlite/pkg/shutdown"
)

// ErrConnectionClosed is returned by Send once the session has entered
// Closing: no outbound data frame may follow a close.
var ErrConnectionClosed = errors.New("websocket connection closed")

// Session states. Transitions only move forward.
const (
	stateHandshaking int32 = iota
	stateOpen
	stateClosing
	stateClosed
)

// MessageType identifies a delivered message's payload kind. The values
// match the wire opcodes.
type MessageType int

const (
	TextMessage   MessageType = MessageType(opText)
	BinaryMessage MessageType = MessageType(opBinary)
)

// Message is one logical message: all continuation fragments already
// assembled. Control frames are never surfaced as messages.
type Message struct {
	Type MessageType
	Data []byte
}

// Handler receives each data message delivered on a session. It runs on
// the session's read goroutine; messages on one session arrive in order.
type Handler func(s *Session, m Message)

// Session is one upgraded WebSocket connection. All writes funnel through
// a single writer goroutine, so Send is safe for concurrent use.
type Session struct {
	conn net.Conn
	srv  *Server

	state       atomic.Int32
	closeStatus atomic.Int32
	lastPong    atomic.Int64 // unix nanos

	sendCh chan frame
	ctrlCh chan frame
	done   chan struct{}

	closeOnce sync.Once
	stopOnce  sync.Once
}

func newSession(c net.Conn, srv *Server) *Session {
	s := &Session{
		conn:   c,
		srv:    srv,
		sendCh: make(chan frame, 16),
		ctrlCh: make(chan frame, 8),
		done:   make(chan struct{}),
	}
	s.state.Store(stateHandshaking)
	s.closeStatus.Store(CloseNormal)
	return s
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// Send queues one data message for delivery to the peer. It fails with
// ErrConnectionClosed once the session is Closing or Closed.
func (s *Session) Send(t MessageType, data []byte) error {
	if t != TextMessage && t != BinaryMessage {
		return errors.New("websocket: invalid message type")
	}
	if s.state.Load() >= stateClosing {
		return ErrConnectionClosed
	}
	select {
	case s.sendCh <- frame{fin: true, op: opcode(t), payload: data}:
		return nil
	case <-s.done:
		return ErrConnectionClosed
	}
}

// Kind implements shutdown.Conn.
func (s *Session) Kind() shutdown.Kind { return shutdown.KindWebSocket }

// CloseGraceful implements shutdown.Conn: send a close frame and wait for
// the peer's acknowledgment to finish the teardown (the read loop handles
// the echoed close). Safe to call repeatedly.
func (s *Session) CloseGraceful() {
	if s.state.Load() >= stateClosing {
		return
	}
	s.sendControl(frame{fin: true, op: opClose, payload: closePayload(CloseGoingAway, "server shutting down")})
	s.advance(stateClosing)
}

// CloseForce implements shutdown.Conn.
func (s *Session) CloseForce() error {
	s.advance(stateClosing)
	return s.closeSocket()
}

func (s *Session) advance(to int32) {
	for {
		cur := s.state.Load()
		if cur >= to {
			return
		}
		if s.state.CompareAndSwap(cur, to) {
			return
		}
	}
}

func (s *Session) closeSocket() error {
	var err error
	s.closeOnce.Do(func() {
		s.advance(stateClosing)
		err = s.conn.Close()
		s.advance(stateClosed)
	})
	return err
}

// sendControl queues a control frame, preferring the control channel so
// pings and closes are not starved by a full data queue.
func (s *Session) sendControl(f frame) {
	select {
	case s.ctrlCh <- f:
	case <-s.done:
	default:
		// control queue full: the connection is wedged, the liveness
		// check will tear it down
	}
}

// writeLoop is the session's single writer. Control frames take priority
// over queued data frames. When the writer dies for any reason it stops
// the session, so senders blocked on a full queue are released instead of
// waiting on a consumer that no longer exists.
func (s *Session) writeLoop() {
	defer s.stop()
	for {
		var f frame
		select {
		case f = <-s.ctrlCh:
		case <-s.done:
			return
		default:
			select {
			case f = <-s.ctrlCh:
			case f = <-s.sendCh:
			case <-s.done:
				return
			}
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteTimeout))
		if err := writeFrame(s.conn, f.op, f.payload); err != nil {
			logger.Debug("ws_write_failed", "remote", s.RemoteAddr(), "error", err)
			return
		}
	}
}

// stop releases the writer goroutine. Idempotent.
func (s *Session) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
