// Package httpserver is the request/response surface: a raw TCP accept
// loop that parses HTTP/1.x requests, resolves them through the route
// registry, runs the composed middleware pipeline and serializes the
// response. One goroutine serves one connection; requests on a keep-alive
// connection are processed strictly in sequence.
package httpserver

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"servlite/pkg/logger"
	"servlite/pkg/router"
	"servlite/pkg/shutdown"
)

// Config holds dispatcher tunables.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
}

// Server owns the HTTP listener.
type Server struct {
	cfg Config
	reg *router.Registry
	co  *shutdown.Coordinator

	ln        net.Listener
	accepting atomic.Bool
	wg        sync.WaitGroup
}

// New returns an unstarted server. The registry must be fully populated
// before Start; it is treated as read-only from then on.
func New(cfg Config, reg *router.Registry, co *shutdown.Coordinator) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	return &Server{cfg: cfg, reg: reg, co: co}
}

// Start binds the listener and begins accepting in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.accepting.Store(true)
	logger.Info("http_listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address (useful with ":0").
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.cfg.Addr
	}
	return s.ln.Addr().String()
}

// Stop closes the listener so no new connections are accepted. Connections
// already accepted keep running; draining them is the coordinator's job.
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
			logger.Warn("http_accept_failed", "error", err)
			continue
		}
		conn := newConn(c, s)
		go conn.serve()
	}
}
