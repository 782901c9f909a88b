package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sakif/bananagen/internal/auth"
	"github.com/sakif/bananagen/internal/service"
)

// AuthHandler runs the browser sign-in flow and session endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin    → send the browser to the identity provider
//   - HandleCallback → finish the login, set the session cookies
//   - HandleLogout   → revoke the session and clear the cookies
//   - HandleMe       → return the signed-in identity
type AuthHandler struct {
	svc      *service.AuthService
	sessions *auth.Sessions
	logger   *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, sessions *auth.Sessions, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:      svc,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleLogin redirects to the identity provider.
//
// HTTP: GET /auth/login?next=/pricing
//
// The PKCE verifier is kept in a short-lived HttpOnly cookie; only this
// browser can complete the flow it started.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Login(r.URL.Query().Get("next"))
	if err != nil {
		h.logger.Error("login: cannot start", slog.String("error", err.Error()))
		http.Redirect(w, r, "/?auth_error=1", http.StatusSeeOther)
		return
	}

	h.sessions.SetVerifier(w, res.Verifier)
	http.Redirect(w, r, res.RedirectURL, http.StatusSeeOther)
}

// HandleCallback completes the login.
//
// HTTP: GET /auth/callback?code=xxx&next=/pricing
//
// The browser always lands on next (or "/"); a failed exchange adds
// auth_error=1 to it.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	next := service.SafeNext(q.Get("next"))
	verifier := h.sessions.TakeVerifier(w, r)

	sess, err := h.svc.Callback(r.Context(), q.Get("code"), verifier)
	if err != nil {
		h.logger.Warn("login callback failed", slog.String("error", err.Error()))
		http.Redirect(w, r, withAuthError(next), http.StatusSeeOther)
		return
	}

	h.sessions.Set(w, sess)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// HandleLogout signs the caller out.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if who, ok := auth.IdentityFromContext(r.Context()); ok {
		h.svc.Logout(r.Context(), who.AccessToken)
	}
	h.sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleMe returns the signed-in identity.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	who, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Not authenticated", Code: "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, who)
}

// withAuthError appends auth_error=1 to a local path.
func withAuthError(next string) string {
	u, err := url.Parse(next)
	if err != nil {
		return "/?auth_error=1"
	}
	q := u.Query()
	q.Set("auth_error", "1")
	u.RawQuery = q.Encode()
	return u.String()
}
