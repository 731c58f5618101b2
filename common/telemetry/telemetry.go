// Package telemetry exposes the Go profiling endpoints on a localhost-only
// listener, kept off the service port so profiles never ride the public
// surface.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/lyzr/flow/common/logger"
)

// Telemetry runs the pprof HTTP listener.
type Telemetry struct {
	server *http.Server
	log    *logger.Logger
}

// New creates the pprof listener on localhost:port. An explicit mux keeps
// the profiling handlers off http.DefaultServeMux.
func New(port int, log *logger.Logger) *Telemetry {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &Telemetry{
		server: &http.Server{
			Addr:              fmt.Sprintf("localhost:%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start launches the listener in the background.
func (t *Telemetry) Start() {
	go func() {
		t.log.Info("pprof listener starting", "addr", t.server.Addr)
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.log.Error("pprof listener error", "error", err)
		}
	}()
}

// Stop shuts the listener down.
func (t *Telemetry) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.server.Shutdown(shutdownCtx); err != nil {
		t.log.Warn("pprof listener shutdown failed", "error", err)
	}
}
