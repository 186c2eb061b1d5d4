// Package handler contains the HTTP request handlers.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements the http.Handler interface:
//
//	type Handler interface {
//	    ServeHTTP(ResponseWriter, *Request)
//	}
//
// Or more commonly, http.HandlerFunc: a function with the right signature
// that satisfies the interface. Chi's router accepts these directly.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, body, headers)
// 2. Call the service layer
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers should NOT contain business logic. They are the glue between
// HTTP and the services.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pGUPT4/news-app/internal/model"
	"github.com/pGUPT4/news-app/internal/service"
	"github.com/pGUPT4/news-app/internal/session"
)

// ArchiveErrorHeader is set on a /news-galore response that is serving the
// fresh batch because it could not be archived.
const ArchiveErrorHeader = "X-Archive-Error"

// NewsPipeline is the slice of service.NewsService the handlers use.
type NewsPipeline interface {
	Raw(ctx context.Context) (model.ArticleBatch, error)
	Curated(ctx context.Context, state session.State) (*service.NewsResult, error)
}

// NewsHandler serves the health check and the two news endpoints.
type NewsHandler struct {
	news   NewsPipeline
	logger *slog.Logger
}

// NewNewsHandler creates a NewsHandler.
func NewNewsHandler(news NewsPipeline, logger *slog.Logger) *NewsHandler {
	return &NewsHandler{news: news, logger: logger}
}

// HandleHealth is the liveness probe.
//
// HTTP: GET / → 200 {"status": "ok"}
func (h *NewsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleRaw returns the current batch straight from the news API.
//
// HTTP: GET /raw → 200 [articles], 502 if the news API fails
func (h *NewsHandler) HandleRaw(w http.ResponseWriter, r *http.Request) {
	batch, err := h.news.Raw(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// HandleCurated runs the archive pipeline for a logged-in client.
//
// HTTP: GET /news-galore
//
//	200 latest processed batch (verbatim)
//	200 {"message": "uploaded at <key>", "fetchError": "..."} if none yet
//	200 raw batch + X-Archive-Error if archiving failed
//	401 not logged in, 502 news API failure
func (h *NewsHandler) HandleCurated(w http.ResponseWriter, r *http.Request) {
	result, err := h.news.Curated(r.Context(), session.FromContext(r.Context()).State)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.ArchiveError != "" {
		w.Header().Set(ArchiveErrorHeader, result.ArchiveError)
	}

	h.logger.Debug("news served",
		slog.String("kind", string(result.Kind)),
		slog.String("archiveKey", result.ArchiveKey),
	)
	writeJSON(w, http.StatusOK, result.Payload)
}
