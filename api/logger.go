package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}

		requestLogger := s.Logger.With().
			Int("status", code).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("latency", time.Since(startTime).String()).
			Logger()

		switch {
		case code >= http.StatusBadRequest && code < http.StatusInternalServerError:
			requestLogger.Warn().Msg("HTTP Request")
		case code >= http.StatusInternalServerError:
			requestLogger.Error().Msg("HTTP Request")
		default:
			requestLogger.Debug().Msg("HTTP Request")
		}
	})
}
