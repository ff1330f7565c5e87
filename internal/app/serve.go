package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dlwpdl/eunsense-automation-sub000/observe"
)

// ListenAndServe listens on the configured address and calls Serve.
func (s *Substrate) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Config.Server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP endpoints and the cache sweeper until ctx is done, then
// shuts the server down within the configured timeout. A clean shutdown
// returns nil.
func (s *Substrate) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.Logger.Info(ctx, "http server listening", observe.Field{Key: "addr", Value: ln.Addr().String()})
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.Sweeper != nil {
		g.Go(func() error {
			if err := s.Sweeper.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
		defer cancel()
		s.Logger.Info(shutdownCtx, "http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
