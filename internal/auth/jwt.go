// Package auth resolves the caller's identity from session cookies.
//
// SESSION FLOW:
//  1. /auth/login redirects to Supabase Auth, which runs the provider login.
//  2. /auth/callback exchanges the returned code for a session and stores
//     the access and refresh tokens in HttpOnly cookies.
//  3. On every request, Sessions.Resolve verifies the access token once and
//     puts the resulting model.Identity into the request context.
//
// Access tokens are verified either locally (TokenService, when the
// project's JWT secret is configured) or by asking Supabase (Supabase.Verify).
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/bananagen/internal/model"
)

// audience carried by every Supabase access token of a signed-in user.
const audience = "authenticated"

// SessionVerifier turns an access token into an identity.
type SessionVerifier interface {
	Verify(ctx context.Context, accessToken string) (*model.Identity, error)
}

// SessionRefresher re-issues a session from a refresh token.
type SessionRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// TokenService verifies Supabase access tokens offline with the project's
// HS256 JWT secret.
type TokenService struct {
	secret []byte
	issuer string
}

// NewTokenService creates a TokenService. issuer may be empty to skip the
// issuer check; Supabase issues tokens as "<project url>/auth/v1".
func NewTokenService(secret, issuer string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), issuer: issuer}, nil
}

// claims mirrors the payload of a Supabase access token.
type claims struct {
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// Generate signs a token shaped like a Supabase access token. Used by
// tests and local tooling; production tokens come from Supabase.
func (s *TokenService) Generate(id model.Identity, ttl time.Duration) (string, error) {
	now := time.Now()

	meta := map[string]any{}
	if id.Name != "" {
		meta["full_name"] = id.Name
	}
	if id.AvatarURL != "" {
		meta["avatar_url"] = id.AvatarURL
	}

	c := claims{
		Email:        id.Email,
		Role:         audience,
		UserMetadata: meta,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and checks tokenStr and returns the identity in its claims.
//
// Checks: HS256 only, signature, expiry present and in the future,
// audience "authenticated", and the issuer when one is configured.
func (s *TokenService) Verify(_ context.Context, tokenStr string) (*model.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", ErrInvalidSession)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token claims", ErrInvalidSession)
	}

	return &model.Identity{
		ID:          c.Subject,
		Email:       c.Email,
		Name:        firstString(c.UserMetadata, "full_name", "name"),
		AvatarURL:   firstString(c.UserMetadata, "avatar_url", "picture"),
		AccessToken: tokenStr,
	}, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
