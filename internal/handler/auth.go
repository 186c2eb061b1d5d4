package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/xid"
	"golang.org/x/oauth2"

	"github.com/pGUPT4/news-app/internal/apperror"
	"github.com/pGUPT4/news-app/internal/model"
	"github.com/pGUPT4/news-app/internal/session"
)

// Authenticator is the slice of service.AuthService the handlers use.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (*model.User, error)
	AuthorizationURL(state string) string
	CompleteOAuth(ctx context.Context, code string) (*model.User, *oauth2.Token, error)
	Profile(ctx context.Context, state session.State) (*model.User, error)
}

// AuthHandler serves account registration, local login, the Google OAuth
// flow, logout and the current user's profile.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister       → create a local account
//   - HandleLogin          → check credentials, mark the session logged in
//   - HandleLogout         → clear the session identity
//   - HandleGoogleLogin    → store a nonce, redirect to Google
//   - HandleGoogleCallback → check the nonce, finish the exchange, redirect
//   - HandleMe             → return the logged-in account
type AuthHandler struct {
	auth        Authenticator
	sessions    *session.Manager
	frontendURL string
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. frontendURL is where the browser
// lands after the OAuth callback.
func NewAuthHandler(auth Authenticator, sessions *session.Manager, frontendURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:        auth,
		sessions:    sessions,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// credentials is the body of POST /register and POST /login.
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AccountResponse confirms an auth action and echoes the account.
type AccountResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user"`
}

// HandleRegister creates a local account.
//
// HTTP: POST /register  {"username": "...", "password": "..."}
//
//	201 created, 400 invalid input, 409 username taken
//
// Registering does not log the client in.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), body.Username, body.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AccountResponse{
		Message: "User registered successfully",
		User:    user,
	})
}

// HandleLogin checks a username and password and records the login in the
// session.
//
// HTTP: POST /login  {"username": "...", "password": "..."}
//
//	200 logged in (session cookie set), 401 bad credentials
//
// SESSION FIXATION:
// The session id is rotated on login, so an id an attacker planted in the
// browser before login is worthless afterwards.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	sess := session.FromContext(r.Context())
	h.sessions.Renew(sess)
	sess.State.LoginLocal(user.Username)
	if err := h.sessions.Save(r.Context(), w, sess); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AccountResponse{
		Message: "Logged in successfully",
		User:    user,
	})
}

// HandleLogout clears the session identity.
//
// HTTP: GET /logout → 200 {"message": "logged out"}
//
// Logging out twice, or without ever logging in, is not an error.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	sess.State.Clear()
	if err := h.sessions.Save(r.Context(), w, sess); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// HandleGoogleLogin starts the OAuth flow.
//
// HTTP: GET /auth/google → 307 to Google's consent screen
//
// CSRF PROTECTION VIA STATE:
// A random nonce goes into the server-side session and into the
// authorization URL. Google echoes it back on the callback, and the
// callback only proceeds if the two match.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	nonce := xid.New().String()

	sess := session.FromContext(r.Context())
	sess.State.OAuthState = nonce
	if err := h.sessions.Save(r.Context(), w, sess); err != nil {
		writeError(w, err)
		return
	}

	http.Redirect(w, r, h.auth.AuthorizationURL(nonce), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the OAuth flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Consume the session's nonce and compare it with ?state (400 on mismatch)
//  2. ?error=... means the user declined: redirect to the frontend
//  3. Exchange the code and upsert the account
//  4. Rotate the session id, record the identity, redirect to the frontend
//
// The nonce is consumed before it is compared, so a replayed callback
// fails even if the first attempt did too.
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	sess := session.FromContext(ctx)

	expected := sess.State.ConsumeOAuthState()
	if err := h.sessions.Save(ctx, w, sess); err != nil {
		writeError(w, err)
		return
	}

	if expected == "" || query.Get("state") != expected {
		h.logger.Warn("oauth callback: state mismatch",
			slog.Bool("hadNonce", expected != ""),
		)
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("oauth callback: authorization declined", slog.String("error", errParam))
		http.Redirect(w, r, h.frontendURL+"/?auth=denied", http.StatusSeeOther)
		return
	}

	user, token, err := h.auth.CompleteOAuth(ctx, query.Get("code"))
	if err != nil {
		h.logger.Error("oauth callback: completing login", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.sessions.Renew(sess)
	sess.State.LoginOAuth(user.ID, token.AccessToken)
	if err := h.sessions.Save(ctx, w, sess); err != nil {
		writeError(w, err)
		return
	}

	http.Redirect(w, r, h.frontendURL+"/", http.StatusSeeOther)
}

// HandleMe returns the account behind the current session.
//
// HTTP: GET /me → 200 user, 401 if not logged in
//
// Mounted behind RequireSession.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Profile(r.Context(), session.FromContext(r.Context()).State)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
