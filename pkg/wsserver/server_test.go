package wsserver

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"servlite/pkg/shutdown"
)

func startEchoServer(t *testing.T, cfg Config) (*Server, *shutdown.Coordinator) {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	co := shutdown.NewCoordinator()
	srv := New(cfg, func(s *Session, m Message) {
		_ = s.Send(m.Type, m.Data)
	}, co)
	if err := srv.Start(); err != nil {
		t.Fatalf("server start failed: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv, co
}

func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEchoText(t *testing.T) {
	srv, _ := startEchoServer(t, Config{})
	c := dialWS(t, srv)

	if err := c.WriteMessage(websocket.TextMessage, []byte("ping me")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	mt, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if mt != websocket.TextMessage || string(data) != "ping me" {
		t.Fatalf("echo = (%d, %q)", mt, data)
	}
}

func TestEchoBinaryPreservesType(t *testing.T) {
	srv, _ := startEchoServer(t, Config{})
	c := dialWS(t, srv)

	payload := []byte{0x00, 0xFF, 0x10, 0x80}
	if err := c.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	mt, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("type = %d, want binary", mt)
	}
	if string(data) != string(payload) {
		t.Fatalf("payload = %v", data)
	}
}

func TestMessagesStayOrdered(t *testing.T) {
	srv, _ := startEchoServer(t, Config{})
	c := dialWS(t, srv)

	const n = 20
	for i := 0; i < n; i++ {
		msg := strings.Repeat("x", i+1)
		if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		_, data, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		if len(data) != i+1 {
			t.Fatalf("message %d out of order: length %d", i, len(data))
		}
	}
}

func TestClientCloseHandshake(t *testing.T) {
	srv, co := startEchoServer(t, Config{})
	c := dialWS(t, srv)

	err := c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("close write failed: %v", err)
	}
	// the server echoes the close before tearing down
	_, _, err = c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("want close 1000, got %v", err)
	}

	waitForActive(t, co, 0)
}

func TestHandshakeRejectsPlainHTTP(t *testing.T) {
	srv, _ := startEchoServer(t, Config{})
	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	io.WriteString(conn, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandshakeRejectsBadVersion(t *testing.T) {
	srv, _ := startEchoServer(t, Config{})
	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	io.WriteString(conn, "GET / HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 8\r\n\r\n")
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConcurrentSessionsIsolated(t *testing.T) {
	srv, co := startEchoServer(t, Config{})

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dialWS(t, srv)
	}
	for i, c := range conns {
		msg := strings.Repeat("m", i+1)
		if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("session %d write failed: %v", i, err)
		}
	}
	for i, c := range conns {
		_, data, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("session %d read failed: %v", i, err)
		}
		if len(data) != i+1 {
			t.Fatalf("session %d got another session's echo: %q", i, data)
		}
	}
	waitForActive(t, co, 3)
}

func TestDrainSendsGoingAway(t *testing.T) {
	srv, co := startEchoServer(t, Config{})
	c := dialWS(t, srv)

	// wait until the session is registered
	waitForActive(t, co, 1)

	done := make(chan error, 1)
	go func() {
		// the client's default close handler echoes the close frame,
		// completing the handshake; ReadMessage surfaces the close error
		_, _, err := c.ReadMessage()
		done <- err
	}()

	co.Drain(2 * time.Second)

	select {
	case err := <-done:
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Fatalf("want close 1001, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("client never received the close frame")
	}
	waitForActive(t, co, 0)
}

func TestDrainForcesUnresponsivePeer(t *testing.T) {
	srv, co := startEchoServer(t, Config{})

	// two cooperating clients whose close handlers acknowledge the drain
	cooperating := []*websocket.Conn{dialWS(t, srv), dialWS(t, srv)}
	closed := make(chan error, len(cooperating))
	for _, c := range cooperating {
		go func(c *websocket.Conn) {
			_, _, err := c.ReadMessage()
			closed <- err
		}(c)
	}

	// a raw TCP client that completes the handshake but never answers the
	// close frame
	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	io.WriteString(conn, "GET / HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n")
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, &http.Request{Method: "GET"})
	if err != nil {
		t.Fatalf("handshake read failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}
	waitForActive(t, co, 3)

	start := time.Now()
	co.Drain(200 * time.Millisecond)
	if time.Since(start) > 2*time.Second {
		t.Fatal("drain ran far past the grace period")
	}

	// every cooperating session saw the going-away close
	for i := 0; i < len(cooperating); i++ {
		select {
		case err := <-closed:
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Fatalf("want close 1001, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("cooperating client never received the close frame")
		}
	}
	waitForActive(t, co, 0)
}

func TestSendAfterCloseFails(t *testing.T) {
	var mu sync.Mutex
	var captured *Session

	co := shutdown.NewCoordinator()
	srv := New(Config{Addr: "127.0.0.1:0"}, func(s *Session, m Message) {
		mu.Lock()
		captured = s
		mu.Unlock()
		_ = s.Send(m.Type, m.Data)
	}, co)
	if err := srv.Start(); err != nil {
		t.Fatalf("server start failed: %v", err)
	}
	t.Cleanup(srv.Stop)

	c := dialWS(t, srv)
	if err := c.WriteMessage(websocket.TextMessage, []byte("hi")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, _, err := c.ReadMessage(); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	_ = c.Close()
	waitForActive(t, co, 0)

	mu.Lock()
	s := captured
	mu.Unlock()
	if s == nil {
		t.Fatal("handler never ran")
	}
	if err := s.Send(TextMessage, []byte("late")); err != ErrConnectionClosed {
		t.Fatalf("Send after close = %v, want ErrConnectionClosed", err)
	}
}

// A peer that floods messages without ever reading stalls the writer on
// its deadline; the session must still tear down and deregister once the
// peer vanishes instead of wedging the read goroutine in Send forever.
func TestStalledPeerDoesNotLeakSession(t *testing.T) {
	srv, co := startEchoServer(t, Config{WriteTimeout: 50 * time.Millisecond})

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	io.WriteString(conn, "GET / HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n")
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, &http.Request{Method: "GET"})
	if err != nil {
		t.Fatalf("handshake read failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}
	waitForActive(t, co, 1)

	// pump enough echo traffic to fill the send queue and both socket
	// buffers while never reading a byte back
	payload := strings.Repeat("z", 32<<10)
	raw := maskedFrame(true, opText, []byte(payload))
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 128; i++ {
		if _, err := conn.Write(raw); err != nil {
			break
		}
	}
	_ = conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for co.Active() > 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if co.Active() != 0 {
		t.Fatalf("session leaked: %d connection(s) still registered", co.Active())
	}
}

func waitForActive(t *testing.T, co *shutdown.Coordinator, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for co.Active() != want && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if co.Active() != want {
		t.Fatalf("active = %d, want %d", co.Active(), want)
	}
}
