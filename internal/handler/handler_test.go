package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/pGUPT4/news-app/internal/apperror"
	"github.com/pGUPT4/news-app/internal/handler"
	"github.com/pGUPT4/news-app/internal/model"
	"github.com/pGUPT4/news-app/internal/service"
	"github.com/pGUPT4/news-app/internal/session"
)

const frontend = "http://localhost:3000"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestManager(t *testing.T) *session.Manager {
	t.Helper()
	tokens, err := session.NewTokenService("handler-test-secret-0123456789")
	require.NoError(t, err)
	return session.NewManager(session.NewMemoryStore(), tokens, time.Hour, false, testLogger())
}

// client replays cookies between requests the way a browser would.
type client struct {
	t       *testing.T
	mux     http.Handler
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, mux http.Handler) *client {
	return &client{t: t, mux: mux, cookies: make(map[string]*http.Cookie)}
}

func (c *client) do(method, target, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	rr := httptest.NewRecorder()
	c.mux.ServeHTTP(rr, req)

	for _, ck := range rr.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

// =========================================================================
// FAKE AUTHENTICATOR
// =========================================================================

type fakeAuth struct {
	passwords map[string]string // username → password
	ids       map[string]string // username → account id
	oauthUser *model.User
	oauthErr  error
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		passwords: map[string]string{"alice": "wonderland"},
		ids:       map[string]string{"alice": "user-1"},
		oauthUser: &model.User{ID: "user-g", Subject: "g-1", Email: "g@example.com"},
	}
}

func (f *fakeAuth) Register(_ context.Context, username, password string) (*model.User, error) {
	if username == "" || password == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if _, taken := f.passwords[username]; taken {
		return nil, apperror.Conflict("username", username)
	}
	f.passwords[username] = password
	f.ids[username] = "user-" + username
	return &model.User{ID: f.ids[username], Username: username, PasswordHash: "secret-hash"}, nil
}

func (f *fakeAuth) Login(_ context.Context, username, password string) (*model.User, error) {
	if pw, ok := f.passwords[username]; !ok || pw != password {
		return nil, apperror.InvalidCredentials()
	}
	return &model.User{ID: f.ids[username], Username: username}, nil
}

func (f *fakeAuth) AuthorizationURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (f *fakeAuth) CompleteOAuth(_ context.Context, code string) (*model.User, *oauth2.Token, error) {
	if f.oauthErr != nil {
		return nil, nil, f.oauthErr
	}
	return f.oauthUser, &oauth2.Token{AccessToken: "access-" + code}, nil
}

func (f *fakeAuth) Profile(_ context.Context, state session.State) (*model.User, error) {
	switch {
	case state.UserID != "":
		return f.oauthUser, nil
	case state.Username != "":
		return &model.User{ID: f.ids[state.Username], Username: state.Username}, nil
	}
	return nil, apperror.Unauthorized("Unauthorized")
}

// newAuthMux mounts the auth routes the way the server does.
func newAuthMux(t *testing.T, fake *fakeAuth) http.Handler {
	t.Helper()
	m := newTestManager(t)
	h := handler.NewAuthHandler(fake, m, frontend+"/", testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", h.HandleRegister)
	mux.HandleFunc("POST /login", h.HandleLogin)
	mux.HandleFunc("GET /logout", h.HandleLogout)
	mux.HandleFunc("GET /auth/google", h.HandleGoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", h.HandleGoogleCallback)
	mux.Handle("GET /me", handler.RequireSession(http.HandlerFunc(h.HandleMe)))
	return m.Middleware(mux)
}

// =========================================================================
// REGISTER / LOGIN / LOGOUT
// =========================================================================

func TestHandleRegister(t *testing.T) {
	c := newClient(t, newAuthMux(t, newFakeAuth()))

	rr := c.do(http.MethodPost, "/register", `{"username":"bob","password":"builder"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret-hash", "the hash never leaves the server")

	rr = c.do(http.MethodPost, "/register", `{"username":"bob","password":"other"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "conflict", decodeError(t, rr).Error)

	rr = c.do(http.MethodPost, "/register", `{"username":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = c.do(http.MethodPost, "/register", `{"username":"","password":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Registering doesn't log in.
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/me", "").Code)
}

func TestHandleLogin_ThenMe(t *testing.T) {
	c := newClient(t, newAuthMux(t, newFakeAuth()))

	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/me", "").Code)

	rr := c.do(http.MethodPost, "/login", `{"username":"alice","password":"wonderland"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, c.cookies, session.CookieName)

	rr = c.do(http.MethodGet, "/me", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var me model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&me))
	assert.Equal(t, "alice", me.Username)
}

func TestHandleLogin_BadCredentials(t *testing.T) {
	c := newClient(t, newAuthMux(t, newFakeAuth()))

	for _, body := range []string{
		`{"username":"alice","password":"wrong"}`,
		`{"username":"nobody","password":"wonderland"}`,
	} {
		rr := c.do(http.MethodPost, "/login", body)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "invalid username or password", decodeError(t, rr).Message)
	}
	assert.NotContains(t, c.cookies, session.CookieName)
}

func TestHandleLogin_RotatesSessionCookie(t *testing.T) {
	c := newClient(t, newAuthMux(t, newFakeAuth()))

	// An anonymous session exists before login (a pending OAuth nonce).
	c.do(http.MethodGet, "/auth/google", "")
	before := c.cookies[session.CookieName].Value

	c.do(http.MethodPost, "/login", `{"username":"alice","password":"wonderland"}`)
	assert.NotEqual(t, before, c.cookies[session.CookieName].Value)
}

func TestHandleLogout_Idempotent(t *testing.T) {
	c := newClient(t, newAuthMux(t, newFakeAuth()))
	c.do(http.MethodPost, "/login", `{"username":"alice","password":"wonderland"}`)

	for range 2 {
		rr := c.do(http.MethodGet, "/logout", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"message":"logged out"}`, rr.Body.String())
	}
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/me", "").Code)
}

// =========================================================================
// GOOGLE OAUTH
// =========================================================================

// startOAuth hits /auth/google and returns the nonce from the redirect.
func startOAuth(t *testing.T, c *client) string {
	t.Helper()
	rr := c.do(http.MethodGet, "/auth/google", "")
	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	nonce := loc.Query().Get("state")
	require.NotEmpty(t, nonce)
	return nonce
}

func TestGoogleCallback_Success(t *testing.T) {
	c := newClient(t, newAuthMux(t, newFakeAuth()))
	nonce := startOAuth(t, c)

	rr := c.do(http.MethodGet, "/auth/google/callback?code=abc&state="+nonce, "")
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, frontend+"/", rr.Header().Get("Location"))

	rr = c.do(http.MethodGet, "/me", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "g@example.com")
}

func TestGoogleCallback_StateChecks(t *testing.T) {
	tests := []struct {
		name  string
		query func(nonce string) string
	}{
		{"missing state", func(string) string { return "?code=abc" }},
		{"wrong state", func(string) string { return "?code=abc&state=forged" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, newAuthMux(t, newFakeAuth()))
			nonce := startOAuth(t, c)

			rr := c.do(http.MethodGet, "/auth/google/callback"+tt.query(nonce), "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			// The nonce was consumed by the failed attempt.
			rr = c.do(http.MethodGet, "/auth/google/callback?code=abc&state="+nonce, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestGoogleCallback_NoPendingFlow(t *testing.T) {
	c := newClient(t, newAuthMux(t, newFakeAuth()))

	rr := c.do(http.MethodGet, "/auth/google/callback?code=abc&state=anything", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGoogleCallback_ReplayRejected(t *testing.T) {
	c := newClient(t, newAuthMux(t, newFakeAuth()))
	nonce := startOAuth(t, c)

	first := c.do(http.MethodGet, "/auth/google/callback?code=abc&state="+nonce, "")
	require.Equal(t, http.StatusSeeOther, first.Code)

	replay := c.do(http.MethodGet, "/auth/google/callback?code=abc&state="+nonce, "")
	assert.Equal(t, http.StatusBadRequest, replay.Code)
}

func TestGoogleCallback_Denied(t *testing.T) {
	c := newClient(t, newAuthMux(t, newFakeAuth()))
	nonce := startOAuth(t, c)

	rr := c.do(http.MethodGet, "/auth/google/callback?error=access_denied&state="+nonce, "")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, frontend+"/?auth=denied", rr.Header().Get("Location"))
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/me", "").Code)
}

func TestGoogleCallback_ExchangeFailure(t *testing.T) {
	fake := newFakeAuth()
	fake.oauthErr = apperror.Transport("identity provider", errors.New("invalid_grant"))
	c := newClient(t, newAuthMux(t, fake))
	nonce := startOAuth(t, c)

	rr := c.do(http.MethodGet, "/auth/google/callback?code=abc&state="+nonce, "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

// =========================================================================
// NEWS
// =========================================================================

type fakePipeline struct {
	batch  model.ArticleBatch
	result *service.NewsResult
	err    error
}

func (f *fakePipeline) Raw(context.Context) (model.ArticleBatch, error) {
	return f.batch, f.err
}

func (f *fakePipeline) Curated(_ context.Context, state session.State) (*service.NewsResult, error) {
	if !state.Authenticated() {
		return nil, apperror.Unauthorized("Unauthorized")
	}
	return f.result, f.err
}

func serveNews(h http.HandlerFunc, state session.State) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(session.WithSession(req.Context(), &session.Session{ID: "s", State: state}))
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestHandleHealth(t *testing.T) {
	h := handler.NewNewsHandler(&fakePipeline{}, testLogger())

	rr := serveNews(h.HandleHealth, session.State{})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHandleRaw(t *testing.T) {
	h := handler.NewNewsHandler(&fakePipeline{batch: model.ArticleBatch{{"title": "A"}}}, testLogger())

	rr := serveNews(h.HandleRaw, session.State{})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"title":"A"}]`, rr.Body.String())
}

func TestHandleRaw_UpstreamFailureIs502(t *testing.T) {
	h := handler.NewNewsHandler(&fakePipeline{
		err: apperror.Transport("news API", errors.New("status 500")),
	}, testLogger())

	rr := serveNews(h.HandleRaw, session.State{})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "upstream_error", body.Error)
	assert.Equal(t, "news API request failed: status 500", body.Message)
}

func TestHandleCurated(t *testing.T) {
	alice := session.State{Username: "alice"}

	tests := []struct {
		name       string
		state      session.State
		pipeline   *fakePipeline
		wantStatus int
		wantBody   string
		wantHeader string
	}{
		{
			name:       "not logged in",
			state:      session.State{},
			pipeline:   &fakePipeline{},
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":"unauthorized","message":"Unauthorized"}`,
		},
		{
			name:  "processed batch",
			state: alice,
			pipeline: &fakePipeline{result: &service.NewsResult{
				Kind:    service.ResultProcessed,
				Payload: json.RawMessage(`{"summaries":[1,2]}`),
			}},
			wantStatus: http.StatusOK,
			wantBody:   `{"summaries":[1,2]}`,
		},
		{
			name:  "nothing processed yet",
			state: alice,
			pipeline: &fakePipeline{result: &service.NewsResult{
				Kind: service.ResultComposite,
				Payload: service.Composite{
					Message:    "uploaded at raw/news-2025-01-01-00-00-00.json",
					FetchError: "No processed files found",
				},
			}},
			wantStatus: http.StatusOK,
			wantBody:   `{"message":"uploaded at raw/news-2025-01-01-00-00-00.json","fetchError":"No processed files found"}`,
		},
		{
			name:  "archive failed",
			state: alice,
			pipeline: &fakePipeline{result: &service.NewsResult{
				Kind:         service.ResultRaw,
				Payload:      model.ArticleBatch{{"title": "A"}},
				ArchiveError: "upload failed: AccessDenied",
			}},
			wantStatus: http.StatusOK,
			wantBody:   `[{"title":"A"}]`,
			wantHeader: "upload failed: AccessDenied",
		},
		{
			name:       "news API down",
			state:      alice,
			pipeline:   &fakePipeline{err: apperror.Transport("news API", errors.New("timeout"))},
			wantStatus: http.StatusBadGateway,
			wantBody:   `{"error":"upstream_error","message":"news API request failed: timeout"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewNewsHandler(tt.pipeline, testLogger())

			rr := serveNews(h.HandleCurated, tt.state)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.JSONEq(t, tt.wantBody, rr.Body.String())
			assert.Equal(t, tt.wantHeader, rr.Header().Get(handler.ArchiveErrorHeader))
		})
	}
}
