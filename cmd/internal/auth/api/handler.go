package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth/guard"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/security/password"
	"sessiond/cmd/security/token"
)

// Handler wires the session endpoints to the session service.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions  *session.Service
	accounts  identity.Store
	passwords password.Config
	auditor   Auditor

	now func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithAuditor overrides the default in-memory auditor.
func WithAuditor(a Auditor) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.auditor = a
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, accounts identity.Store, passwords password.Config, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil || accounts == nil {
		return nil, errors.New("authapi: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:       log,
		cfg:       cfg.Normalize(),
		sessions:  sessions,
		accounts:  accounts,
		passwords: passwords,
		auditor:   NewMemoryAuditor(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("POST /refresh", h.handleRefresh)
	mux.HandleFunc("POST /logout", h.handleLogout)
	mux.HandleFunc("GET /sessions", h.handleListSessions)
	mux.HandleFunc("POST /sessions/revoke-others", h.handleRevokeOthers)
	mux.HandleFunc("POST /sessions/{id}/revoke", h.handleRevokeOne)
	mux.HandleFunc("POST /admin/sessions/{user_id}/revoke", h.handleAdminRevoke)
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	username := identity.NormalizeUsername(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	rc := h.newRequestContext(r)

	if blocked, retryAfter, err := h.checkLoginIPThrottle(ctx, rc.meta.IPAddress, rc.now); err != nil {
		h.log.Error("auth.login.throttle_ip.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		writeRateLimited(w, retryAfter)
		return
	}

	acc, err := h.accounts.GetByUsername(ctx, username)
	if err != nil && !identity.IsNotFound(err) {
		h.log.Error("auth.login.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	// Unknown accounts still pay for a full hash so timing does not enumerate usernames.
	if err := h.passwords.Confirm(acc.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			h.log.Error("auth.login.verify.fail", "err", err)
		}
		h.audit(ctx, rc, AuditEvent{Action: auditLoginFailed, SubjectID: acc.ID, Meta: map[string]any{"username": username}})
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	issued, err := h.sessions.IssueSession(ctx, rc.now, acc.ID, req.Remember, rc.meta)
	if err != nil {
		if errors.Is(err, guard.ErrAccountBlocked) {
			h.audit(ctx, rc, AuditEvent{Action: auditLoginBlocked, SubjectID: acc.ID, Meta: map[string]any{"reason": err.Error()}})
			writeBlocked(w, err)
			return
		}
		h.log.Error("auth.login.issue_session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	h.audit(ctx, rc, AuditEvent{Action: auditLoginSuccess, SubjectID: acc.ID, SessionID: issued.SessionID})
	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExp, issued.Persistent)
	writeJSON(w, http.StatusOK, toTokenResponse(issued))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptionalJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	silent := silentRequested(r, req.Silent)
	refreshToken := h.presentedRefreshToken(r, req.RefreshToken)

	ctx := r.Context()
	rc := h.newRequestContext(r)

	res, err := h.sessions.Refresh(ctx, session.RefreshRequest{
		Token:    refreshToken,
		Now:      rc.now,
		Silent:   silent,
		Metadata: rc.meta,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	if !res.Outcome.OK() {
		if res.Outcome != session.OutcomeMissing {
			h.audit(ctx, rc, AuditEvent{Action: auditRefreshReject, Meta: map[string]any{"outcome": res.Outcome.String()}})
		}
		// A blocked session is still on record and resumes once the block clears.
		if res.Silent || res.Outcome != session.OutcomeBlocked {
			h.clearRefreshCookie(w)
		}
		if res.Silent {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		switch res.Outcome {
		case session.OutcomeMissing:
			writeError(w, http.StatusUnauthorized, "missing_credential", "refresh token required")
		case session.OutcomeBlocked:
			writeBlocked(w, res.Block.Err())
		default:
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "invalid refresh token")
		}
		return
	}

	if res.Outcome == session.OutcomeRotated {
		h.audit(ctx, rc, AuditEvent{Action: auditRefreshRotate, SubjectID: res.Issued.SubjectID, SessionID: res.Issued.SessionID})
	}
	h.setRefreshCookie(w, res.Issued.RefreshToken, res.Issued.RefreshExp, res.Issued.Persistent)
	writeJSON(w, http.StatusOK, toTokenResponse(res.Issued))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeOptionalJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		// A malformed body still logs out the cookie session.
		req = logoutRequest{}
	}
	refreshToken := h.presentedRefreshToken(r, req.RefreshToken)

	ctx := r.Context()
	rc := h.newRequestContext(r)

	res, err := h.sessions.Logout(ctx, refreshToken, rc.now)
	if err != nil {
		h.log.Error("auth.logout.fail", "err", err)
	} else if res.Revoked {
		h.audit(ctx, rc, AuditEvent{Action: auditLogout, SubjectID: res.SubjectID, SessionID: res.SessionID})
	}

	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	now := h.now().UTC()

	current := h.currentJTI(r, "", claims, now)
	views, err := h.sessions.ListSessions(ctx, claims.Subject, current, now)
	if err != nil {
		h.log.Error("auth.sessions.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: toSessionViews(views)})
}

func (h *Handler) handleRevokeOthers(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req revokeOthersRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "password is required")
		return
	}

	ctx := r.Context()
	rc := h.newRequestContext(r)

	acc, err := h.accounts.GetByID(ctx, claims.Subject)
	if err != nil && !identity.IsNotFound(err) {
		h.log.Error("auth.sessions.revoke_others.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if err := h.passwords.Confirm(acc.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusForbidden, "invalid_password", "password confirmation failed")
		return
	}

	current := h.currentJTI(r, req.RefreshToken, claims, rc.now)
	n, err := h.sessions.RevokeOthers(ctx, claims.Subject, current, rc.now)
	if err != nil {
		h.log.Error("auth.sessions.revoke_others.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	h.audit(ctx, rc, AuditEvent{Action: auditRevokeOthers, SubjectID: claims.Subject, ActorID: claims.Subject, Meta: map[string]any{"revoked": n}})
	writeJSON(w, http.StatusOK, revokeOthersResponse{Revoked: n})
}

func (h *Handler) handleRevokeOne(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	sessionID := strings.TrimSpace(r.PathValue("id"))

	ctx := r.Context()
	rc := h.newRequestContext(r)

	if err := h.sessions.RevokeOne(ctx, claims.Subject, sessionID, session.ActorUser, rc.now); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		h.log.Error("auth.sessions.revoke_one.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	h.audit(ctx, rc, AuditEvent{Action: auditRevokeOne, SubjectID: claims.Subject, SessionID: sessionID, ActorID: claims.Subject})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdminRevoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	caller, err := h.accounts.GetByID(ctx, claims.Subject)
	if err != nil || !caller.IsAdmin() || caller.DeletedAt != nil {
		if err != nil && !identity.IsNotFound(err) {
			h.log.Error("auth.admin.lookup.fail", "err", err)
		}
		writeError(w, http.StatusForbidden, "forbidden", "admin role required")
		return
	}

	var req adminRevokeRequest
	if err := decodeOptionalJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	userID := strings.TrimSpace(r.PathValue("user_id"))
	rc := h.newRequestContext(r)
	ev := AuditEvent{Action: auditAdminRevoke, SubjectID: userID, ActorID: caller.ID}

	if sid := strings.TrimSpace(req.SessionID); sid != "" {
		if err := h.sessions.RevokeOne(ctx, userID, sid, session.ActorAdmin, rc.now); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "session not found")
				return
			}
			h.log.Error("auth.admin.revoke_one.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		ev.SessionID = sid
	} else {
		n, err := h.sessions.RevokeAll(ctx, userID, rc.now)
		if err != nil {
			h.log.Error("auth.admin.revoke_all.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		ev.Meta = map[string]any{"revoked": n}
	}

	h.audit(ctx, rc, ev)
	w.WriteHeader(http.StatusNoContent)
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (token.Claims, bool) {
	raw := bearerToken(r)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return token.Claims{}, false
	}
	claims, err := h.sessions.AuthenticateAccess(raw, h.now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return token.Claims{}, false
	}
	return claims, true
}

// currentJTI picks the caller's session: a presented refresh token (body, then
// cookie) wins over the access token's sid.
func (h *Handler) currentJTI(r *http.Request, fromBody string, claims token.Claims, now time.Time) string {
	if raw := h.presentedRefreshToken(r, fromBody); raw != "" {
		if jti, ok := h.sessions.PresentedJTI(raw, claims.Subject, now); ok {
			return jti
		}
	}
	return claims.SessionJTI
}

func writeBlocked(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, guard.ErrAccountDeleted):
		writeError(w, http.StatusForbidden, "account_deleted", "account deleted")
	case errors.Is(err, guard.ErrAccountLocked):
		writeError(w, http.StatusForbidden, "account_locked", "account locked")
	case errors.Is(err, guard.ErrPasswordResetRequired):
		writeError(w, http.StatusForbidden, "password_reset_required", "password reset required")
	default:
		writeError(w, http.StatusForbidden, "account_blocked", "account blocked")
	}
}
