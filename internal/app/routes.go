package app

import (
	"errors"
	"net/http"

	"servlite/pkg/httpx"
	"servlite/pkg/middleware"
	"servlite/pkg/router"
	"servlite/pkg/static"
	"servlite/pkg/store"
	"servlite/pkg/templates"
	"servlite/pkg/wsserver"
)

// buildRoutes registers every HTTP route with its middleware chain. The
// registry is complete before any listener starts accepting.
func (a *App) buildRoutes() (*router.Registry, error) {
	reg := router.New()

	base := []httpx.Middleware{
		middleware.CORS(a.cfg.Security.CORS.AllowedOrigins),
		middleware.RateLimit(a.pool),
	}

	routes := []struct {
		method, pattern string
		h               httpx.Handler
	}{
		{"GET", "/", a.indexHandler},
		{"GET", "/healthz", healthzHandler},
		{"GET", "/static/:file", a.staticHandler},
		{"GET", "/v1/kv", a.kvListHandler},
		{"GET", "/v1/kv/:key", a.kvGetHandler},
		{"PUT", "/v1/kv/:key", a.kvPutHandler},
		{"DELETE", "/v1/kv/:key", a.kvDeleteHandler},
	}
	for _, rt := range routes {
		if err := reg.Register(rt.method, rt.pattern, rt.h, base...); err != nil {
			return nil, err
		}
	}
	// preflight for the KV API; CORS short-circuits before this handler
	if err := reg.Register("OPTIONS", "/v1/kv/:key", preflightHandler, base...); err != nil {
		return nil, err
	}
	return reg, nil
}

func preflightHandler(_ *httpx.Request) (*httpx.Response, error) {
	return httpx.NewResponse(http.StatusNoContent), nil
}

// indexHandler renders the index template when one exists, otherwise a
// built-in landing page.
func (a *App) indexHandler(r *httpx.Request) (*httpx.Response, error) {
	body, err := a.renderer.Render("index.html", map[string]string{
		"title": "servlite",
		"host":  a.cfg.Addr(),
	})
	if err != nil {
		if errors.Is(err, templates.ErrTemplateNotFound) {
			return httpx.HTML(http.StatusOK, "<html><body><h1>servlite</h1><p>It works.</p></body></html>"), nil
		}
		return nil, err
	}
	return httpx.HTML(http.StatusOK, body), nil
}

func healthzHandler(_ *httpx.Request) (*httpx.Response, error) {
	return httpx.JSON(http.StatusOK, map[string]string{"status": "ok"}), nil
}

func (a *App) staticHandler(r *httpx.Request) (*httpx.Response, error) {
	data, contentType, err := a.static.Resolve(r.Params["file"])
	if err != nil {
		switch {
		case errors.Is(err, static.ErrForbidden):
			return httpx.Error(http.StatusForbidden, "forbidden"), nil
		case errors.Is(err, static.ErrNotFound):
			return httpx.Error(http.StatusNotFound, "not found"), nil
		}
		return nil, err
	}
	resp := httpx.NewResponse(http.StatusOK)
	resp.SetHeader("Content-Type", contentType)
	resp.Body = data
	return resp, nil
}

func (a *App) kvListHandler(_ *httpx.Request) (*httpx.Response, error) {
	keys, err := a.store.ListKeys("")
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return httpx.JSON(http.StatusOK, map[string]any{"keys": keys}), nil
}

func (a *App) kvGetHandler(r *httpx.Request) (*httpx.Response, error) {
	val, err := a.store.Get(r.Params["key"])
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return httpx.Error(http.StatusNotFound, "key not found"), nil
		}
		return nil, err
	}
	resp := httpx.NewResponse(http.StatusOK)
	resp.SetHeader("Content-Type", "application/octet-stream")
	resp.Body = val
	return resp, nil
}

func (a *App) kvPutHandler(r *httpx.Request) (*httpx.Response, error) {
	if err := a.store.Set(r.Params["key"], r.Body); err != nil {
		return nil, err
	}
	return httpx.JSON(http.StatusOK, map[string]string{"status": "stored", "key": r.Params["key"]}), nil
}

func (a *App) kvDeleteHandler(r *httpx.Request) (*httpx.Response, error) {
	if err := a.store.Delete(r.Params["key"]); err != nil {
		return nil, err
	}
	return httpx.JSON(http.StatusOK, map[string]string{"status": "deleted", "key": r.Params["key"]}), nil
}

// wsHandler echoes every data message back on the same session.
func (a *App) wsHandler(s *wsserver.Session, m wsserver.Message) {
	_ = s.Send(m.Type, m.Data)
}
