package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/sakif/bananagen/internal/model"
)

// ErrInvalidSession is returned when the identity provider rejects a token.
// Transport failures and unexpected statuses are reported as other errors.
var ErrInvalidSession = errors.New("auth: invalid session")

// Session is a token pair issued by the identity provider together with
// the identity it belongs to.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds
	Identity     model.Identity
}

// gotrueUser is the portion of the GoTrue user object we care about.
type gotrueUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		FullName  string `json:"full_name"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
		Picture   string `json:"picture"`
	} `json:"user_metadata"`
}

func (u gotrueUser) identity() model.Identity {
	name := u.UserMetadata.FullName
	if name == "" {
		name = u.UserMetadata.Name
	}
	avatar := u.UserMetadata.AvatarURL
	if avatar == "" {
		avatar = u.UserMetadata.Picture
	}
	return model.Identity{
		ID:        u.ID,
		Email:     u.Email,
		Name:      name,
		AvatarURL: avatar,
	}
}

type gotrueSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         gotrueUser `json:"user"`
}

// Supabase talks to the Supabase Auth (GoTrue) REST API.
//
// The browser login uses the OAuth 2.0 authorization code flow with PKCE:
//  1. AuthURL sends the browser to GoTrue, which forwards to the upstream
//     provider (Google by default).
//  2. GoTrue redirects back with a short-lived auth code.
//  3. ExchangeCode trades code + verifier for a session.
//
// The same client verifies access tokens (Verify) and refreshes sessions.
type Supabase struct {
	baseURL  string
	anonKey  string
	provider string
	client   *http.Client
}

// NewSupabase creates a GoTrue client. client may be nil, in which case
// http.DefaultClient is used.
func NewSupabase(baseURL, anonKey, provider string, client *http.Client) *Supabase {
	if client == nil {
		client = http.DefaultClient
	}
	if provider == "" {
		provider = "google"
	}
	return &Supabase{
		baseURL:  baseURL,
		anonKey:  anonKey,
		provider: provider,
		client:   client,
	}
}

// AuthURL returns the GoTrue authorize URL for the configured provider.
// verifier must be the PKCE verifier later passed to ExchangeCode.
func (s *Supabase) AuthURL(redirectTo, verifier string) string {
	cfg := oauth2.Config{
		Endpoint:    oauth2.Endpoint{AuthURL: s.baseURL + "/auth/v1/authorize"},
		RedirectURL: redirectTo,
	}
	// GoTrue carries its own state towards the upstream provider, so no
	// state is sent here; the verifier cookie binds the flow to the browser.
	return cfg.AuthCodeURL("",
		oauth2.S256ChallengeOption(verifier),
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("provider", s.provider),
		oauth2.SetAuthURLParam("redirect_to", redirectTo),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode completes the PKCE flow.
func (s *Supabase) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	if code == "" {
		return nil, errors.New("auth: missing auth code")
	}
	return s.token(ctx, "pkce", map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	})
}

// Refresh trades a refresh token for a new session.
func (s *Supabase) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return s.token(ctx, "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
}

// Verify asks GoTrue who owns accessToken.
func (s *Supabase) Verify(ctx context.Context, accessToken string) (*model.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building user request: %w", err)
	}

	body, status, err := s.do(req, accessToken)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, ErrInvalidSession
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("auth: /user returned status %d: %s", status, body)
	}

	var u gotrueUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("auth: decoding /user response: %w", err)
	}
	if u.ID == "" {
		return nil, ErrInvalidSession
	}

	id := u.identity()
	id.AccessToken = accessToken
	return &id, nil
}

// Logout revokes the session server-side.
func (s *Supabase) Logout(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("auth: building logout request: %w", err)
	}
	body, status, err := s.do(req, accessToken)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("auth: /logout returned status %d: %s", status, body)
	}
	return nil
}

func (s *Supabase) token(ctx context.Context, grantType string, payload map[string]string) (*Session, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("auth: encoding token request: %w", err)
	}

	endpoint := s.baseURL + "/auth/v1/token?grant_type=" + grantType
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("auth: building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := s.do(req, "")
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: token grant %s returned status %d: %s", ErrInvalidSession, grantType, status, body)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("auth: token grant %s returned status %d: %s", grantType, status, body)
	}

	var gs gotrueSession
	if err := json.Unmarshal(body, &gs); err != nil {
		return nil, fmt.Errorf("auth: decoding token response: %w", err)
	}
	if gs.AccessToken == "" {
		return nil, fmt.Errorf("auth: token grant %s returned no access token", grantType)
	}

	id := gs.User.identity()
	id.AccessToken = gs.AccessToken
	return &Session{
		AccessToken:  gs.AccessToken,
		RefreshToken: gs.RefreshToken,
		ExpiresIn:    gs.ExpiresIn,
		Identity:     id,
	}, nil
}

// do sends req with the project key and, when bearer is empty, the anon key
// as bearer token.
func (s *Supabase) do(req *http.Request, bearer string) ([]byte, int, error) {
	if bearer == "" {
		bearer = s.anonKey
	}
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("auth: calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("auth: reading %s response: %w", req.URL.Path, err)
	}
	return body, resp.StatusCode, nil
}
