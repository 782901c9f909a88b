package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/bananagen/internal/model"
)

// Cookie names shared with the web frontend.
const (
	AccessCookie   = "sb-access-token"
	RefreshCookie  = "sb-refresh-token"
	VerifierCookie = "sb-code-verifier"
)

const (
	defaultAccessTTL = time.Hour
	refreshTTL       = 30 * 24 * time.Hour
	verifierTTL      = 10 * time.Minute
)

// contextKey is an unexported type used for context keys in this package.
//
// A package-private key type means only this package can read or write the
// identity stored in a request context.
type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity resolved for this request.
//
// Returns (nil, false) for anonymous requests.
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*model.Identity)
	return id, ok && id != nil && id.ID != ""
}

// Sessions resolves the caller's identity from the session cookies and
// keeps those cookies in sync with the identity provider.
type Sessions struct {
	verifier  SessionVerifier
	refresher SessionRefresher
	secure    bool
	logger    *slog.Logger
}

// NewSessions creates a Sessions. verifier may be nil when no identity
// provider is configured, in which case every request is anonymous.
// refresher may be nil to disable transparent refresh.
func NewSessions(verifier SessionVerifier, refresher SessionRefresher, secure bool, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		verifier:  verifier,
		refresher: refresher,
		secure:    secure,
		logger:    logger,
	}
}

// Resolve is a middleware that attaches the caller's identity to the
// request context. It never rejects a request; use RequireAuth for that.
//
// RESOLUTION ORDER:
//  1. Verify the access token cookie.
//  2. If that fails and a refresh token cookie exists, refresh once,
//     rewrite both cookies and use the new session.
//  3. Otherwise continue anonymously.
//
// Cookies are cleared only when the provider rejects the refresh token.
// When it cannot be reached the request is anonymous and the cookies stay.
//
// Verification happens once per request; handlers read the result with
// IdentityFromContext.
func (s *Sessions) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}

		if id := s.resolve(w, r); id != nil {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Sessions) resolve(w http.ResponseWriter, r *http.Request) *model.Identity {
	ctx := r.Context()

	if access := cookieValue(r, AccessCookie); access != "" {
		id, err := s.verifier.Verify(ctx, access)
		if err == nil {
			return id
		}
		if !errors.Is(err, ErrInvalidSession) {
			// provider unreachable: anonymous for now, cookies untouched
			s.logger.Warn("session verification failed", slog.String("error", err.Error()))
			return nil
		}
		s.logger.Debug("access token rejected", slog.String("error", err.Error()))
	}

	refresh := cookieValue(r, RefreshCookie)
	if refresh == "" || s.refresher == nil {
		return nil
	}

	sess, err := s.refresher.Refresh(ctx, refresh)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			s.logger.Info("session refresh rejected", slog.String("error", err.Error()))
			s.Clear(w)
			return nil
		}
		s.logger.Warn("session refresh failed", slog.String("error", err.Error()))
		return nil
	}
	s.Set(w, sess)

	if sess.Identity.ID != "" {
		id := sess.Identity
		id.AccessToken = sess.AccessToken
		return &id
	}
	id, err := s.verifier.Verify(ctx, sess.AccessToken)
	if err != nil {
		s.logger.Warn("refreshed token rejected", slog.String("error", err.Error()))
		return nil
	}
	return id
}

// Set writes the session cookies.
//
// Both cookies are HttpOnly so page scripts cannot read the tokens.
func (s *Sessions) Set(w http.ResponseWriter, sess *Session) {
	accessTTL := defaultAccessTTL
	if sess.ExpiresIn > 0 {
		accessTTL = time.Duration(sess.ExpiresIn) * time.Second
	}
	http.SetCookie(w, s.cookie(AccessCookie, sess.AccessToken, accessTTL))
	if sess.RefreshToken != "" {
		http.SetCookie(w, s.cookie(RefreshCookie, sess.RefreshToken, refreshTTL))
	}
}

// Clear expires the session cookies.
func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(AccessCookie, "", -1))
	http.SetCookie(w, s.cookie(RefreshCookie, "", -1))
}

// SetVerifier stores the PKCE verifier for the duration of a login.
func (s *Sessions) SetVerifier(w http.ResponseWriter, verifier string) {
	http.SetCookie(w, s.cookie(VerifierCookie, verifier, verifierTTL))
}

// TakeVerifier reads the PKCE verifier and expires its cookie.
func (s *Sessions) TakeVerifier(w http.ResponseWriter, r *http.Request) string {
	v := cookieValue(r, VerifierCookie)
	http.SetCookie(w, s.cookie(VerifierCookie, "", -1))
	return v
}

// cookie builds a session cookie. A negative ttl deletes the cookie.
func (s *Sessions) cookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}

// RequireAuth is a middleware that rejects anonymous requests with 401.
// It must run after Sessions.Resolve.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":"Not authenticated","code":"unauthorized"}`+"\n")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		// http.ErrNoCookie: anonymous, not a failure
		return ""
	}
	return c.Value
}
