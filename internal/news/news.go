// Package news fetches article batches from the third-party wire API.
//
// The API is a NYT-style "top stories" endpoint:
//
//	GET {baseURL}/{section}.json?api-key=KEY
//	→ {"status":"OK","num_results":N,"results":[{...article...}, ...]}
//
// Only the "results" array is used. Each article is passed through as an
// opaque map; nothing downstream depends on its fields.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pGUPT4/news-app/internal/apperror"
	"github.com/pGUPT4/news-app/internal/model"
)

// Source is the contract the pipeline depends on.
type Source interface {
	FetchAll(ctx context.Context) (model.ArticleBatch, error)
}

// Config configures a Client.
type Config struct {
	BaseURL string // e.g. https://api.nytimes.com/svc/topstories/v2
	Section string // e.g. home, world, technology
	APIKey  string
	Timeout time.Duration // per-call bound; one attempt, no retry
}

// Client calls the wire API over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// compile-time check that *Client implements Source
var _ Source = (*Client)(nil)

// NewClient creates a Client. A zero Timeout means 10 seconds.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Section == "" {
		cfg.Section = "home"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// apiResponse is the part of the wire response we read.
type apiResponse struct {
	Status  string             `json:"status"`
	Results model.ArticleBatch `json:"results"`
}

// FetchAll performs one GET and returns the article batch.
//
// Every failure (unreachable host, timeout, non-2xx status, undecodable
// body) comes back as an apperror Transport error, so callers never see a
// raw net/http error.
func (c *Client) FetchAll(ctx context.Context) (model.ArticleBatch, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s.json?%s",
		c.cfg.BaseURL,
		url.PathEscape(c.cfg.Section),
		url.Values{"api-key": {c.cfg.APIKey}}.Encode(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperror.Transport("news source", fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Don't wrap the *url.Error directly: its message embeds the full
		// URL, and with it the API key.
		return nil, apperror.Transport("news source", fmt.Errorf("sending request: %w", unwrapURLError(err)))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a bounded snippet of the body for the log line; wire APIs
		// usually explain themselves ("Invalid ApiKey", rate limits, ...).
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperror.Transport("news source",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(snippet)))
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperror.Transport("news source", fmt.Errorf("decoding response: %w", err))
	}

	if body.Results == nil {
		body.Results = model.ArticleBatch{}
	}
	return body.Results, nil
}

// unwrapURLError strips the request URL from net/http client errors.
func unwrapURLError(err error) error {
	if uerr, ok := err.(*url.Error); ok {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}
