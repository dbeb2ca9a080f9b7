package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"gopkg.in/op/go-logging.v1"

	"srrt/internal/metrics"
)

// App runs the background services shared by the sessions of a process:
// the relay health poller and the metrics endpoint.
type App struct {
	*Wire

	log     *logging.Logger
	metrics *http.Server
}

// New returns an App over w.
func New(w *Wire) *App {
	return &App{Wire: w, log: w.Log.GetLogger("app")}
}

// Start launches the background services.
func (a *App) Start() error {
	if a.Poller != nil {
		a.Poller.Start()
	}
	if addr := a.Config.Metrics.Address; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			a.Stop()
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(a.Registry))
		a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Errorf("metrics: %v", err)
			}
		}()
		a.log.Noticef("metrics on %s", ln.Addr())
	}
	return nil
}

// Stop halts the background services and closes the log.
func (a *App) Stop() {
	if a.Poller != nil {
		a.Poller.Stop()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = a.metrics.Shutdown(ctx)
		cancel()
		a.metrics = nil
	}
	_ = a.Log.Close()
}
