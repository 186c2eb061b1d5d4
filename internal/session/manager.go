package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/pGUPT4/news-app/internal/apperror"
)

// CookieName is the name of the session cookie.
const CookieName = "session"

// Manager moves sessions between the cookie, the Store and the request
// context.
type Manager struct {
	store  Store
	tokens *TokenService
	ttl    time.Duration
	secure bool
	logger *slog.Logger
}

// NewManager creates a Manager. secure=true marks the cookie Secure and
// SameSite=None, which browsers require for a frontend on another origin
// sending credentials; secure=false uses SameSite=Lax for local HTTP.
func NewManager(store Store, tokens *TokenService, ttl time.Duration, secure bool, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		tokens: tokens,
		ttl:    ttl,
		secure: secure,
		logger: logger,
	}
}

// Middleware loads the request's session into the context. A missing,
// forged, expired or unknown cookie yields a fresh empty session; nothing
// is written until a handler calls Save.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.load(r)
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

func (m *Manager) load(r *http.Request) *Session {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return newSession()
	}

	id, err := m.tokens.Validate(cookie.Value)
	if err != nil {
		m.logger.Debug("session: rejecting cookie", slog.String("error", err.Error()))
		return newSession()
	}

	state, err := m.store.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			m.logger.Error("session: loading state",
				slog.String("error", err.Error()),
			)
		}
		return newSession()
	}

	return &Session{ID: id, State: state}
}

func newSession() *Session {
	return &Session{ID: xid.New().String()}
}

// Renew gives sess a new id, keeping its State. Call it when privilege
// changes (login) so a session id planted before login is useless after.
func (m *Manager) Renew(sess *Session) {
	if sess.previousID == "" {
		sess.previousID = sess.ID
	}
	sess.ID = xid.New().String()
}

// Save persists sess and refreshes the cookie. An empty State deletes the
// stored session and expires the cookie instead.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess.previousID != "" {
		if err := m.store.Delete(ctx, sess.previousID); err != nil {
			return fmt.Errorf("session: deleting rotated session: %w", err)
		}
		sess.previousID = ""
	}

	if sess.State.IsZero() {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			return fmt.Errorf("session: deleting session: %w", err)
		}
		http.SetCookie(w, m.cookie("", -1))
		return nil
	}

	if err := m.store.Save(ctx, sess.ID, sess.State, m.ttl); err != nil {
		return fmt.Errorf("session: saving session: %w", err)
	}

	token, err := m.tokens.Generate(sess.ID, m.ttl)
	if err != nil {
		return err
	}
	http.SetCookie(w, m.cookie(token, int(m.ttl.Seconds())))
	return nil
}

// cookie builds the session cookie. maxAge < 0 deletes it.
//
// HttpOnly = JavaScript cannot read this cookie (XSS protection).
func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if m.secure {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}
