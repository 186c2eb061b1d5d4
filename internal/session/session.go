// Package session keeps server-side, per-client state behind a signed cookie.
//
// FLOW:
//  1. Manager.Middleware reads the "session" cookie, verifies its signature
//     and loads the matching State from the Store.
//  2. Handlers read and modify the *Session found in the request context.
//  3. Handlers that changed something call Manager.Save, which writes the
//     State back and refreshes the cookie.
//
// The Store is pluggable: Redis in production, an in-process map for local
// development and tests.
package session

import "context"

// State is everything the server remembers about one client.
//
// A client is authenticated through a local account (Username) or through
// Google (UserID + OAuthToken), never both. OAuthState holds the one-time
// nonce of an OAuth handshake in progress.
type State struct {
	Username   string `json:"username,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	OAuthToken string `json:"oauth_token,omitempty"`
	OAuthState string `json:"oauth_state,omitempty"`
}

// Authenticated is the session gate: a non-empty Username or UserID means
// the client has logged in. The OAuth token itself is not inspected.
func (s State) Authenticated() bool {
	return s.Username != "" || s.UserID != ""
}

// IsZero reports whether nothing is stored.
func (s State) IsZero() bool {
	return s == State{}
}

// Clear drops the identity fields. Clearing an already-empty state is a
// no-op, so logout is idempotent. An in-flight OAuth nonce is left alone.
func (s *State) Clear() {
	s.Username = ""
	s.UserID = ""
	s.OAuthToken = ""
}

// LoginLocal records a username/password login, replacing any OAuth identity.
func (s *State) LoginLocal(username string) {
	s.Clear()
	s.Username = username
}

// LoginOAuth records a completed OAuth login, replacing any local identity.
func (s *State) LoginOAuth(userID, token string) {
	s.Clear()
	s.UserID = userID
	s.OAuthToken = token
}

// ConsumeOAuthState returns the pending nonce and removes it, so each
// nonce can be checked at most once.
func (s *State) ConsumeOAuthState() string {
	nonce := s.OAuthState
	s.OAuthState = ""
	return nonce
}

// Session pairs a State with the id it is stored under.
type Session struct {
	ID    string
	State State

	previousID string // set by Renew; deleted from the store on Save
}

type contextKey string

const sessionKey contextKey = "session"

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// FromContext returns the request's session. Outside Manager.Middleware it
// returns a detached empty session, so callers never need a nil check.
func FromContext(ctx context.Context) *Session {
	if sess, ok := ctx.Value(sessionKey).(*Session); ok && sess != nil {
		return sess
	}
	return &Session{}
}
