// Package app wires configuration, routes, both listening surfaces and
// the shutdown coordinator into one runnable unit.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"servlite/pkg/banner"
	"servlite/pkg/config"
	"servlite/pkg/httpserver"
	"servlite/pkg/logger"
	"servlite/pkg/ratelimit"
	"servlite/pkg/router"
	"servlite/pkg/shutdown"
	"servlite/pkg/static"
	"servlite/pkg/store"
	"servlite/pkg/templates"
	"servlite/pkg/wsserver"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg     *config.Config
	version string

	reg      *router.Registry
	co       *shutdown.Coordinator
	pool     *ratelimit.Pool
	store    *store.Store
	static   *static.Resolver
	renderer *templates.Renderer

	httpSrv *httpserver.Server
	wsSrv   *wsserver.Server
	opsSrv  *http.Server
}

// New initializes resources that do not require a running context (store,
// routes, limiter pool). It does not bind any listener; call Run to start
// the surfaces and block until shutdown.
func New(cfg *config.Config, version string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", cfg.Storage.DBName, err)
	}

	res, err := static.NewResolver(cfg.Static.Dir)
	if err != nil {
		return nil, fmt.Errorf("invalid static dir %s: %w", cfg.Static.Dir, err)
	}

	a := &App{
		cfg:      cfg,
		version:  version,
		co:       shutdown.NewCoordinator(),
		store:    st,
		static:   res,
		renderer: templates.NewRenderer(cfg.Templates.Dir),
		pool: ratelimit.NewPool(ratelimit.Config{
			Capacity: cfg.Security.RateLimit.Capacity,
			Refill:   cfg.Security.RateLimit.Refill,
		}),
	}
	reg, err := a.buildRoutes()
	if err != nil {
		return nil, err
	}
	a.reg = reg

	a.httpSrv = httpserver.New(httpserver.Config{
		Addr:         cfg.Addr(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}, a.reg, a.co)
	a.wsSrv = wsserver.New(wsserver.Config{
		Addr:        cfg.WSAddr(),
		IdleTimeout: cfg.WebSocket.IdleTimeout.Duration(),
	}, a.wsHandler, a.co)
	return a, nil
}

// Run starts both surfaces (and the ops listener when configured) and
// blocks until ctx is canceled, then drains active connections within the
// configured grace period.
func (a *App) Run(ctx context.Context) error {
	raiseFileLimit()

	if err := a.httpSrv.Start(); err != nil {
		return fmt.Errorf("http listener: %w", err)
	}
	if err := a.wsSrv.Start(); err != nil {
		a.httpSrv.Stop()
		return fmt.Errorf("websocket listener: %w", err)
	}
	opsErr := a.startOps()

	if err := a.pool.StartJanitor(ctx, a.cfg.Security.RateLimit.EvictCron, a.cfg.Security.RateLimit.EvictIdle.Duration()); err != nil {
		logger.Warn("limiter_janitor_disabled", "error", err)
	}

	banner.Print(a.cfg, a.version)

	select {
	case <-ctx.Done():
	case err := <-opsErr:
		if err != nil {
			logger.Error("ops_server_failed", "error", err)
		}
	}
	a.shutdown()
	return nil
}

// shutdown stops accepting, drains established connections and releases
// the store. Safe to call once.
func (a *App) shutdown() {
	logger.Info("shutdown_started", "grace", a.cfg.Server.GracePeriod.Duration().String())
	a.httpSrv.Stop()
	a.wsSrv.Stop()
	a.stopOps()

	grace := a.cfg.Server.GracePeriod.Duration()
	if grace <= 0 {
		grace = 10 * time.Second
	}
	a.co.Drain(grace)

	if err := a.store.Close(); err != nil {
		logger.Warn("store_close_failed", "error", err)
	}
	logger.Info("shutdown_finished")
}

// HTTPAddr returns the bound HTTP address, useful when Port is 0.
func (a *App) HTTPAddr() string { return a.httpSrv.Addr() }

// WSAddr returns the bound WebSocket address.
func (a *App) WSAddr() string { return a.wsSrv.Addr() }
