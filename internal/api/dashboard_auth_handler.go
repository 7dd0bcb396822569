package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentpay/agentpay/internal/auth"
	"github.com/agentpay/agentpay/internal/coord"
	"github.com/agentpay/agentpay/internal/notify"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	loginTokenKeyPrefix = "agentpay:login_token:"
	loginCodeKeyPrefix  = "agentpay:login_code:"

	loginTokenTTL = 30 * time.Minute
	loginCodeTTL  = time.Minute
)

type dashboardAuthHandler struct {
	orgs            OrganizationStore
	sessions        *auth.SessionManager
	store           coord.Store
	mailer          notify.Mailer
	baseURL         string
	dashboardOrigin string
}

func newDashboardAuthHandler(orgs OrganizationStore, sessions *auth.SessionManager, store coord.Store, mailer notify.Mailer, baseURL, dashboardOrigin string) *dashboardAuthHandler {
	return &dashboardAuthHandler{
		orgs:            orgs,
		sessions:        sessions,
		store:           store,
		mailer:          mailer,
		baseURL:         strings.TrimRight(baseURL, "/"),
		dashboardOrigin: strings.TrimRight(dashboardOrigin, "/"),
	}
}

type loginLinkRequest struct {
	Email string `json:"email"`
}

// LoginLink mails a magic login link to an organization admin. The response
// is identical whether or not the address is known, and send failures are
// only logged, so the endpoint never confirms account existence.
func (h *dashboardAuthHandler) LoginLink(w http.ResponseWriter, r *http.Request) {
	var req loginLinkRequest
	if err := readJSON(r, &req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "email is required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	genericOK := func() {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"message": "If an account exists, you will receive an email.",
		})
	}

	o, err := h.orgs.GetByAdminEmail(r.Context(), email)
	if errors.Is(err, pgx.ErrNoRows) {
		genericOK()
		return
	}
	if err != nil {
		slog.Error("organization lookup failed", "error", err)
		genericOK()
		return
	}

	token, jti, err := h.sessions.IssueLoginToken(o.ID, email, loginTokenTTL)
	if err != nil {
		slog.Error("login token issue failed", "organization_id", o.ID, "error", err)
		genericOK()
		return
	}
	if err := h.store.SetEx(r.Context(), loginTokenKeyPrefix+jti, "unused", loginTokenTTL); err != nil {
		slog.Error("login token state write failed", "organization_id", o.ID, "error", err)
		genericOK()
		return
	}

	magicURL := h.baseURL + "/v1/dashboard/magic-login?token=" + url.QueryEscape(token)
	subject, body := notify.LoginEmail(o.Name, magicURL)
	if err := h.mailer.Send(r.Context(), email, subject, body); err != nil {
		slog.Error("login email send failed", "organization_id", o.ID, "error", err)
	}

	genericOK()
}

// MagicLogin exchanges a clicked login link for a short-lived one-time code
// and bounces the browser to the dashboard. The session token itself never
// appears in a URL; the dashboard trades the code for it server-side.
func (h *dashboardAuthHandler) MagicLogin(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "token is required")
		return
	}

	session, jti, err := h.sessions.VerifyLoginToken(token)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_token", "invalid or expired token")
		return
	}

	key := loginTokenKeyPrefix + jti
	val, found, err := h.store.Get(r.Context(), key)
	if err != nil {
		slog.Error("login token state read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to log in")
		return
	}
	if !found || val != "unused" {
		writeError(w, http.StatusBadRequest, "link_used", "link already used or expired")
		return
	}
	if err := h.store.SetEx(r.Context(), key, "used", loginCodeTTL); err != nil {
		slog.Error("login token state write failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to log in")
		return
	}

	sessionToken, err := h.sessions.IssueSession(session.OrganizationID, session.Email)
	if err != nil {
		slog.Error("session issue failed", "organization_id", session.OrganizationID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to log in")
		return
	}

	code := uuid.NewString()
	if err := h.store.SetEx(r.Context(), loginCodeKeyPrefix+code, sessionToken, loginCodeTTL); err != nil {
		slog.Error("login code write failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to log in")
		return
	}

	http.Redirect(w, r, h.dashboardOrigin+"/auth/callback?code="+url.QueryEscape(code), http.StatusFound)
}

// ExchangeCode trades a one-time login code for the session token.
func (h *dashboardAuthHandler) ExchangeCode(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "code is required")
		return
	}

	key := loginCodeKeyPrefix + code
	sessionToken, found, err := h.store.Get(r.Context(), key)
	if err != nil {
		slog.Error("login code read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to exchange code")
		return
	}
	if !found {
		writeError(w, http.StatusBadRequest, "invalid_code", "invalid or expired code")
		return
	}
	if err := h.store.Del(r.Context(), key); err != nil {
		slog.Error("login code delete failed", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"sessionToken": sessionToken})
}
