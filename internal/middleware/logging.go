// Package middleware holds the router-wide HTTP middleware that isn't tied
// to a handler: today, the request logger.
//
// Handler-facing gates (sessions, panics turned into JSON errors) live in
// internal/handler and internal/session, next to the response format they
// share.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Logger writes one line per request once the handler returns:
//
//	level=WARN msg="request completed" requestID=host/abc-000001 method=POST path=/login status=401 duration=1.2ms bytes=61
//
// 5xx responses log at Error and 4xx at Warn, so a LOG_LEVEL=warn
// deployment still sees failed requests. The record carries the request
// context, so a context-aware slog.Handler can read request-scoped values.
//
// Mount it after chi's RequestID; otherwise requestID is empty.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				// Nothing written: net/http sends 200 on return.
				status = http.StatusOK
			}

			logger.LogAttrs(r.Context(), levelFor(status), "request completed",
				slog.String("requestID", chimiddleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", ww.BytesWritten()),
			)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
