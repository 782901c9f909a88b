package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/sakif/bananagen/internal/auth"
)

// IdentityProvider is the browser-facing side of the identity provider.
// *auth.Supabase implements it.
type IdentityProvider interface {
	AuthURL(redirectTo, verifier string) string
	ExchangeCode(ctx context.Context, code, verifier string) (*auth.Session, error)
	Logout(ctx context.Context, accessToken string) error
}

// AuthService runs the sign-in flow. Identities live with the provider;
// this service only brokers sessions and never stores users.
//
// FLOW:
//  1. Login mints a PKCE verifier and returns the provider URL. The
//     handler keeps the verifier in a short-lived cookie.
//  2. The provider sends the browser to /auth/callback with a code.
//  3. Callback trades code + verifier for a session.
type AuthService struct {
	provider IdentityProvider
	siteURL  string
	logger   *slog.Logger
}

func NewAuthService(provider IdentityProvider, siteURL string, logger *slog.Logger) *AuthService {
	return &AuthService{
		provider: provider,
		siteURL:  siteURL,
		logger:   logger,
	}
}

// LoginResult carries what the handler needs to start a login.
type LoginResult struct {
	RedirectURL string
	Verifier    string
}

// Login returns the provider authorization URL. next is where the browser
// lands after the callback; anything that is not a local path is dropped.
func (s *AuthService) Login(next string) (*LoginResult, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("service/auth: identity provider not configured")
	}

	callback := s.siteURL + "/auth/callback"
	if isLocalPath(next) {
		callback += "?next=" + url.QueryEscape(next)
	}

	verifier := oauth2.GenerateVerifier()
	return &LoginResult{
		RedirectURL: s.provider.AuthURL(callback, verifier),
		Verifier:    verifier,
	}, nil
}

// Callback completes the login started by Login.
func (s *AuthService) Callback(ctx context.Context, code, verifier string) (*auth.Session, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("service/auth: identity provider not configured")
	}
	if verifier == "" {
		return nil, fmt.Errorf("service/auth: login verifier missing or expired")
	}

	sess, err := s.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("service/auth: exchanging auth code: %w", err)
	}

	s.logger.Info("user signed in",
		slog.String("userID", sess.Identity.ID),
		slog.String("email", sess.Identity.Email),
	)
	return sess, nil
}

// Logout revokes the session at the provider. Failures are logged only:
// the caller clears the cookies either way.
func (s *AuthService) Logout(ctx context.Context, accessToken string) {
	if s.provider == nil || accessToken == "" {
		return
	}
	if err := s.provider.Logout(ctx, accessToken); err != nil {
		s.logger.Warn("provider logout failed", slog.String("error", err.Error()))
	}
}

// SafeNext returns next when it is a path on this site and "/" otherwise.
func SafeNext(next string) string {
	if isLocalPath(next) {
		return next
	}
	return "/"
}
