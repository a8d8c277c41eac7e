// Package shutdown tracks every active connection across both listening
// surfaces and drives orderly drain when the process receives a
// termination signal.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"servlite/pkg/logger"
)

// Kind identifies the surface a connection belongs to.
type Kind int

const (
	KindHTTP Kind = iota
	KindWebSocket
)

// String returns the metric/log label for the kind.
func (k Kind) String() string {
	if k == KindWebSocket {
		return "websocket"
	}
	return "http"
}

// Conn is the coordinator's view of an active connection. CloseGraceful
// asks the connection to stop taking new work (HTTP: finish the in-flight
// request, start no new one; WebSocket: send a close frame). CloseForce
// tears the socket down. Both must be safe to call more than once.
type Conn interface {
	Kind() Kind
	CloseGraceful()
	CloseForce() error
}

// Coordinator is the process-wide active-connection set. The lock is held
// only for the brief register/deregister operation, never across I/O.
type Coordinator struct {
	mu    sync.Mutex
	conns map[Conn]struct{}

	drainOnce sync.Once
	drained   chan struct{}
}

// NewCoordinator returns an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		conns:   map[Conn]struct{}{},
		drained: make(chan struct{}),
	}
}

// Register adds a connection to the active set.
func (co *Coordinator) Register(c Conn) {
	co.mu.Lock()
	co.conns[c] = struct{}{}
	co.mu.Unlock()
}

// Deregister removes a connection. Removing a connection that was already
// removed (or never registered) is a no-op.
func (co *Coordinator) Deregister(c Conn) {
	co.mu.Lock()
	delete(co.conns, c)
	co.mu.Unlock()
}

// Active returns the current number of registered connections.
func (co *Coordinator) Active() int {
	co.mu.Lock()
	defer co.mu.Unlock()
	return len(co.conns)
}

func (co *Coordinator) snapshot() []Conn {
	co.mu.Lock()
	defer co.mu.Unlock()
	out := make([]Conn, 0, len(co.conns))
	for c := range co.conns {
		out = append(out, c)
	}
	return out
}

// Drain runs the drain sequence: ask every connection to finish
// gracefully, wait up to grace for the active set to empty, then force
// close whatever remains. Drain is idempotent; concurrent or repeated
// calls (a second termination signal) wait for the first drain to finish
// instead of restarting it.
func (co *Coordinator) Drain(grace time.Duration) {
	co.drainOnce.Do(func() {
		defer close(co.drained)

		active := co.snapshot()
		logger.Info("drain_started", "active", len(active), "grace", grace.String())
		for _, c := range active {
			c.CloseGraceful()
		}

		deadline := time.Now().Add(grace)
		for co.Active() > 0 && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}

		remaining := co.snapshot()
		for _, c := range remaining {
			if err := c.CloseForce(); err != nil {
				// close failures must not abort the drain sequence
				logger.Warn("drain_force_close_failed", "kind", c.Kind().String(), "error", err)
			}
		}
		logger.Info("drain_finished", "forced", len(remaining))
	})
	<-co.drained
}

// SetupSignalHandler installs handlers for SIGINT/SIGTERM and returns a
// cancellable context. The returned context is cancelled when either
// signal arrives; further signals are absorbed so a second SIGTERM during
// drain does not kill the process mid-sequence.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
		cancel()
		for s = range sigc {
			logger.Info("signal_ignored_during_drain", "signal", s.String())
		}
	}()

	return ctx, cancel
}
