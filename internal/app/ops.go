package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"servlite/pkg/logger"
)

// startOps starts the listener serving metrics, docs and health probes on
// a separate address, so the raw dispatcher never carries operational
// traffic. The returned channel carries a fatal server error; it stays
// silent when ops is disabled.
func (a *App) startOps() <-chan error {
	errCh := make(chan error, 1)
	if a.cfg.Ops.Addr == "" {
		return errCh
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", opsHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.opsReadyz).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))

	a.opsSrv = &http.Server{Addr: a.cfg.Ops.Addr, Handler: r}
	logger.Info("ops_listening", "addr", a.cfg.Ops.Addr)
	go func() {
		if err := a.opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

func (a *App) stopOps() {
	if a.opsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.opsSrv.Shutdown(ctx)
	a.opsSrv = nil
}

func opsHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// opsReadyz reports readiness: the store must be open and both surfaces
// bound.
func (a *App) opsReadyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !a.store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}
