package httpapi

import (
	"errors"
	"net/http"
	"time"

	"nashra.news/internal/audit"
	"nashra.news/internal/auth"
	"nashra.news/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Language string `json:"language"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenBodyRequest struct {
	Token string `json:"token"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	pair, user, err := a.svc.Login(r.Context(), req.Email, req.Password, clientMeta(r))
	if err != nil {
		obs.ObserveLogin(loginOutcome(err))
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveLogin("success")

	a.cookies.setSession(w, user.Role, pair, time.Now().UTC())
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
		"role":    string(user.Role),
		"ip":      clientIP(r),
	})
	writeJSON(w, http.StatusOK, map[string]any{"user": user.Safe()})
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrAccountDeactivated):
		return "deactivated"
	default:
		return "error"
	}
}

// refreshCookieOrder mirrors the access-cookie priority: when several role
// sessions coexist, the most privileged refresh cookie is rotated.
var refreshCookieOrder = []struct {
	name string
	role auth.Role
}{
	{adminRefreshCookie, auth.RoleAdmin},
	{writerRefreshCookie, auth.RoleWriter},
	{userRefreshCookie, auth.RoleUser},
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// Rotation responses carry tokens in Set-Cookie and must never be
	// cached, success or failure.
	w.Header().Set("Cache-Control", "no-store")

	raw, role, ok := refreshTokenFromRequest(r)
	if !ok {
		obs.ObserveRefresh("invalid")
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	pair, _, err := a.svc.Refresh(r.Context(), raw, clientMeta(r))
	if err != nil {
		obs.ObserveRefresh(refreshOutcome(err))
		if errors.Is(err, auth.ErrTokenRevoked) {
			_ = audit.LogEvent(r.Context(), "auth.refresh.reuse_detected", map[string]any{
				"ip": clientIP(r),
			})
		}
		a.cookies.clearSession(w, role)
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveRefresh("success")

	// Cookies are re-issued under the namespace the refresh cookie arrived
	// in, so the arriving pair is always overwritten. Issuing under the
	// live role instead would strand the old refresh cookie when the
	// account's role changed mid-session; the next rotation would pick the
	// stale cookie and trip reuse detection against the user's own session.
	a.cookies.setSession(w, role, pair, time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func refreshOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	case errors.Is(err, auth.ErrTokenMalformed):
		return "invalid"
	default:
		return "error"
	}
}

func refreshTokenFromRequest(r *http.Request) (token string, role auth.Role, ok bool) {
	for _, c := range refreshCookieOrder {
		if cookie, err := r.Cookie(c.name); err == nil && cookie.Value != "" {
			return cookie.Value, c.role, true
		}
	}
	return "", auth.RoleUser, false
}

// handleLogout revokes the presented refresh token and clears that role's
// cookie pair. Always 200, even with no session present.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if raw, role, ok := refreshTokenFromRequest(r); ok {
		_ = a.svc.Logout(r.Context(), raw)
		a.cookies.clearSession(w, role)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleLogoutAll is the "logout everywhere on this device" variant: every
// known cookie name is cleared, and if a refresh token identifies the user,
// all of their sessions are revoked server-side too.
func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if raw, _, ok := refreshTokenFromRequest(r); ok {
		if tokenID, _, err := auth.SplitRefreshToken(raw); err == nil {
			if userID, err := a.svc.RefreshTokenOwner(r.Context(), tokenID); err == nil {
				_ = a.svc.LogoutAll(r.Context(), userID)
			}
		}
	}
	a.cookies.clearAllKnownSessions(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.svc.Register(r.Context(), req.Email, req.Username, req.Password, req.Language)
	if err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			// Registration must not become an email oracle.
			writeError(w, r, http.StatusConflict, "unable to register with these details")
			return
		}
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"user": user.Safe()})
}

// handleForgotPassword always answers with the same generic body so the
// endpoint cannot be used to probe which emails are registered.
func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "if the email is registered, a reset link has been sent",
	})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" {
		writeError(w, r, http.StatusBadRequest, "token is required")
		return
	}

	if err := a.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_reset", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenBodyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" {
		writeError(w, r, http.StatusBadRequest, "token is required")
		return
	}

	if err := a.svc.VerifyEmail(r.Context(), req.Token); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": identity.User.Safe()})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.svc.ChangePassword(r.Context(), identity.User.ID, req.CurrentPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}

	// The password change ended every session, including this one.
	a.cookies.clearAllKnownSessions(w)
	_ = audit.LogEvent(r.Context(), "auth.password_changed", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleWriterApply(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := a.svc.ApplyForWriter(r.Context(), identity.User.ID); err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			writeError(w, r, http.StatusConflict, "application already submitted")
			return
		}
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "writer.applied", nil)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "pending"})
}

func clientMeta(r *http.Request) auth.ClientMeta {
	return auth.ClientMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}
