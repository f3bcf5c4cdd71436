// Package api serves an imported schedule over HTTP as JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"tidbyt.dev/ztm"
)

// Provides the feed to serve. Called once per request, so a newly
// imported feed is picked up without a restart.
type FeedLoader interface {
	LoadLatest() (*ztm.Feed, error)
}

type Server struct {
	Logger      zerolog.Logger
	CORSOrigins []string

	loader FeedLoader
}

func NewServer(loader FeedLoader) *Server {
	return &Server{
		Logger:      zerolog.Nop(),
		CORSOrigins: []string{"*"},
		loader:      loader,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.Use(s.requestLogger)

	r.Get("/health", s.GetHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/groups", s.GetGroups)
		r.Get("/stops", s.GetStops)
		r.Get("/stops/nearby", s.GetNearbyStops)
		r.Get("/stops/{stopID}", s.GetStop)
		r.Get("/stops/{stopID}/departures", s.GetDepartures)
		r.Get("/edges", s.GetEdges)
		r.Get("/edges/simple", s.GetSimpleEdges)
	})

	return r
}

// Serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info().Str("addr", addr).Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
