// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository / adapters    → accounts, object storage, the news API
//
// Services take interfaces (repository.AccountStore, news.Source,
// archive.Store), never concrete stores, so tests pass in-memory fakes.
//
// AuthService sits between the HTTP handlers and the account store:
//
//	AuthHandler (HTTP) → AuthService (business rules) → AccountStore (DB)
//	                   ↘ PasswordService (bcrypt)
//	                   ↘ IdentityProvider (Google OAuth)
//
// WHAT THIS LAYER DOES NOT DO:
//   - It does NOT touch sessions or cookies (that's the handler's job)
//   - It does NOT read HTTP requests
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"

	"github.com/pGUPT4/news-app/internal/apperror"
	"github.com/pGUPT4/news-app/internal/auth"
	"github.com/pGUPT4/news-app/internal/model"
	"github.com/pGUPT4/news-app/internal/repository"
	"github.com/pGUPT4/news-app/internal/session"
)

// MaxUsernameLength bounds registered usernames.
const MaxUsernameLength = 64

// IdentityProvider is the OAuth provider as AuthService sees it.
// *auth.GoogleProvider satisfies it; tests use a fake.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleUser, *oauth2.Token, error)
}

// AuthService handles registration, local login and OAuth completion.
//
// DEPENDENCIES (injected via NewAuthService):
//   - accounts   repository.AccountStore  → read/write account records
//   - passwords  *auth.PasswordService    → bcrypt hashing
//   - provider   IdentityProvider         → Google authorization code flow
//   - logger     *slog.Logger             → structured logging
type AuthService struct {
	accounts  repository.AccountStore
	passwords *auth.PasswordService
	provider  IdentityProvider
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	accounts repository.AccountStore,
	passwords *auth.PasswordService,
	provider IdentityProvider,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		accounts:  accounts,
		passwords: passwords,
		provider:  provider,
		logger:    logger,
	}
}

// Register creates a local account.
//
// There is deliberately no "does this username exist?" query first. The
// store's unique index decides, so two simultaneous registrations of the
// same name produce exactly one account and one Conflict.
func (s *AuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.accounts.Insert(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: registering %q: %w", username, err)
	}

	s.logger.Info("account registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

func validateCredentials(username, password string) error {
	switch {
	case username == "":
		return apperror.ValidationFailed("username", "username is required")
	case len(username) > MaxUsernameLength:
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or fewer", MaxUsernameLength))
	case password == "":
		return apperror.ValidationFailed("password", "password is required")
	case len(password) > auth.MaxPasswordBytes:
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	return nil
}

// Login checks a username and password.
//
// An unknown username and a wrong password return the same
// InvalidCredentials error, so the response doesn't reveal which
// usernames exist.
func (s *AuthService) Login(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperror.InvalidCredentials()
	}

	user, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up %q: %w", username, err)
	}

	// OAuth-only records have no hash; they can't log in with a password.
	if user.PasswordHash == "" {
		return nil, apperror.InvalidCredentials()
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: verifying password for %q: %w", username, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return user, nil
}

// AuthorizationURL returns the provider URL that starts the OAuth flow.
// state is the nonce the callback must echo back.
func (s *AuthService) AuthorizationURL(state string) string {
	return s.provider.AuthURL(state)
}

// CompleteOAuth exchanges the callback code, then creates or refreshes the
// account keyed by the provider's subject id.
//
// A failed exchange is a TransportError: the identity provider is an
// external collaborator, same as the news API.
func (s *AuthService) CompleteOAuth(ctx context.Context, code string) (*model.User, *oauth2.Token, error) {
	if code == "" {
		return nil, nil, apperror.ValidationFailed("code", "authorization code is required")
	}

	profile, token, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, nil, apperror.Transport("identity provider", err)
	}

	user := &model.User{
		Subject: profile.Subject,
		Email:   profile.Email,
		Name:    profile.Name,
	}
	if err := s.accounts.UpsertBySubject(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("service/auth: upserting sub=%s: %w", profile.Subject, err)
	}

	s.logger.Info("user authenticated via Google",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)
	return user, token, nil
}

// Profile returns the account behind an authenticated session: by account
// id for OAuth sessions, by username for local ones.
func (s *AuthService) Profile(ctx context.Context, state session.State) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	switch {
	case state.UserID != "":
		user, err = s.accounts.GetByID(ctx, state.UserID)
	case state.Username != "":
		user, err = s.accounts.FindByUsername(ctx, state.Username)
	default:
		return nil, apperror.Unauthorized("Unauthorized")
	}

	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// The session outlived its account.
			return nil, apperror.Unauthorized("account no longer exists")
		}
		return nil, fmt.Errorf("service/auth: loading profile: %w", err)
	}
	return user, nil
}
