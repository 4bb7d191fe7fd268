package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// drainTimeout bounds how long in-flight requests may run after shutdown.
const drainTimeout = 10 * time.Second

// Serve runs an HTTP server until ctx is cancelled, then drains in-flight
// requests before returning.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	logger.Info().Str("addr", addr).Msg("draining")
	if err := srv.Shutdown(drainCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}
