package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RishiKendai/dupcheck/internal/metrics"
	"github.com/rs/zerolog/log"
)

const readHeaderTimeout = 10 * time.Second

// StartServer serves handler on port in the background and returns the
// server for a later ShutdownServer.
func StartServer(handler http.Handler, port string) *http.Server {
	return serve("api", handler, port)
}

// StartMetricsServer exposes /metrics on its own port.
func StartMetricsServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return serve("metrics", mux, port)
}

func serve(name string, handler http.Handler, port string) *http.Server {
	addr := fmt.Sprintf(":%s", port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info().Str("server", name).Str("address", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("server", name).Msg("Failed to start server")
		}
	}()

	return srv
}

// ShutdownServer waits up to timeout for in-flight requests to finish.
func ShutdownServer(srv *http.Server, timeout time.Duration) error {
	log.Info().Str("address", srv.Addr).Msg("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Str("address", srv.Addr).Msg("HTTP server shutdown complete")
	return nil
}
