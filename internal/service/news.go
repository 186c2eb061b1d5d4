package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pGUPT4/news-app/internal/apperror"
	"github.com/pGUPT4/news-app/internal/archive"
	"github.com/pGUPT4/news-app/internal/model"
	"github.com/pGUPT4/news-app/internal/news"
	"github.com/pGUPT4/news-app/internal/session"
)

// ResultKind says which branch of the curated pipeline produced a result.
type ResultKind string

const (
	// ResultProcessed: the latest processed batch, returned verbatim.
	ResultProcessed ResultKind = "processed"
	// ResultComposite: the raw batch was archived but no processed batch
	// could be served.
	ResultComposite ResultKind = "composite"
	// ResultRaw: archiving failed, so the fresh batch itself is returned.
	ResultRaw ResultKind = "raw"
)

// Composite is the body returned when the raw batch was archived but no
// processed batch is available yet.
type Composite struct {
	Message    string `json:"message"`
	FetchError string `json:"fetchError"`
}

// NewsResult is what Curated hands the handler. Payload is always
// JSON-encodable and always answered with 200.
type NewsResult struct {
	Kind    ResultKind
	Payload any

	// ArchiveKey is the raw key written, empty if archiving failed.
	ArchiveKey string
	// ArchiveError is set when the raw batch could not be archived.
	ArchiveError string
}

// NewsService runs the news pipeline:
//
//	fetch → archive raw → find latest processed → respond
//
// Steps run strictly in order inside the request goroutine. Each
// collaborator bounds its own call with a timeout; nothing is retried.
type NewsService struct {
	source  news.Source
	archive archive.Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewNewsService creates a NewsService.
func NewNewsService(source news.Source, store archive.Store, logger *slog.Logger) *NewsService {
	return &NewsService{
		source:  source,
		archive: store,
		logger:  logger,
		now:     time.Now,
	}
}

// Raw fetches the current batch without archiving it. It is not gated.
func (s *NewsService) Raw(ctx context.Context) (model.ArticleBatch, error) {
	batch, err := s.source.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// Curated is the gated pipeline behind GET /news-galore.
//
//  1. unauthenticated state → Unauthorized; nothing else runs
//  2. fetch fails → the Transport error; nothing is archived
//  3. archive the batch under raw/news-<ts>.json
//  4. archive fails → the raw batch with ArchiveError set
//  5. latest processed/ object found, read and valid JSON → returned verbatim
//  6. otherwise → Composite{"uploaded at <key>", reason}
func (s *NewsService) Curated(ctx context.Context, state session.State) (*NewsResult, error) {
	if !state.Authenticated() {
		return nil, apperror.Unauthorized("Unauthorized")
	}

	batch, err := s.source.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("service/news: encoding batch: %w", err)
	}

	key := archive.NewsKey(archive.PrefixRaw, s.now())
	upload := s.archive.Put(ctx, key, data)
	if !upload.OK {
		s.logger.Warn("raw batch not archived; serving it directly",
			slog.String("key", key),
			slog.String("reason", upload.Message),
		)
		return &NewsResult{
			Kind:         ResultRaw,
			Payload:      batch,
			ArchiveError: upload.Message,
		}, nil
	}

	processed, reason := s.latestProcessed(ctx)
	if processed == nil {
		return &NewsResult{
			Kind: ResultComposite,
			Payload: Composite{
				Message:    "uploaded at " + upload.Key,
				FetchError: reason,
			},
			ArchiveKey: upload.Key,
		}, nil
	}

	return &NewsResult{
		Kind:       ResultProcessed,
		Payload:    processed,
		ArchiveKey: upload.Key,
	}, nil
}

// latestProcessed returns the newest processed batch, or nil and the
// reason it couldn't be served.
func (s *NewsService) latestProcessed(ctx context.Context) (json.RawMessage, string) {
	key, err := s.archive.LatestKey(ctx, archive.PrefixProcessed)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("listing processed batches", slog.String("error", err.Error()))
		}
		return nil, err.Error()
	}

	data, err := s.archive.Get(ctx, key)
	if err != nil {
		s.logger.Error("reading processed batch",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, err.Error()
	}

	if !json.Valid(data) {
		s.logger.Error("processed batch is not valid JSON", slog.String("key", key))
		return nil, fmt.Sprintf("processed file %s is not valid JSON", key)
	}

	return json.RawMessage(data), ""
}
