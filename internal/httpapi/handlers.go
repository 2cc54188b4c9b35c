package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"nashra.news/internal/auth"
	"nashra.news/internal/obs"
)

// ReadyProbe reports whether downstream dependencies answer.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	readyProbe ReadyProbe
	version    string
	cookies    cookiePolicy
}

// Options tunes the HTTP layer.
type Options struct {
	Version       string
	SecureCookies bool
}

func New(svc *auth.Service, rp ReadyProbe, opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		readyProbe: rp,
		version:    opts.Version,
		cookies:    cookiePolicy{secure: opts.SecureCookies},
	}
	a.routes()
	return a
}

func (a *API) routes() {
	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	// public auth surface
	a.mux.HandleFunc("POST /auth/register", a.handleRegister)
	a.mux.HandleFunc("POST /auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /auth/logout", a.handleLogout)
	a.mux.HandleFunc("POST /auth/logout-all", a.handleLogoutAll)
	a.mux.HandleFunc("POST /auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("POST /auth/reset-password", a.handleResetPassword)
	a.mux.HandleFunc("POST /auth/verify-email", a.handleVerifyEmail)

	// authenticated surface
	a.mux.Handle("GET /auth/me", a.requireCapability(auth.CapAuthenticated, a.handleMe))
	a.mux.Handle("POST /auth/change-password", a.requireCapability(auth.CapAuthenticated, a.handleChangePassword))
	a.mux.Handle("POST /writer/apply", a.requireCapability(auth.CapAuthenticated, a.handleWriterApply))

	// admin back-office
	a.mux.Handle("GET /admin/users", a.requireCapability(auth.CapAdmin, a.handleListUsers))
	a.mux.Handle("PATCH /admin/users/{id}/role", a.requireCapability(auth.CapAdmin, a.handleUpdateRole))
	a.mux.Handle("PATCH /admin/users/{id}/status", a.requireCapability(auth.CapAdmin, a.handleUpdateStatus))
	a.mux.Handle("DELETE /admin/users/{id}", a.requireCapability(auth.CapAdmin, a.handleDeleteUser))
	a.mux.Handle("POST /admin/users/{id}/writer-review", a.requireCapability(auth.CapAdmin, a.handleWriterReview))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
}

// Handler wraps the mux with metrics instrumentation.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.mux)
}

// --- health handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "nashra-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "nashra-auth",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleAuthError maps the domain error taxonomy onto HTTP statuses. 401
// means "log in again", 403 means "you lack permission"; clients route their
// recovery UX off that distinction.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var weak *auth.WeakPasswordError
	switch {
	case errors.As(err, &weak):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "password too weak",
			"reasons": weak.Reasons,
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, auth.ErrRateLimited):
		writeError(w, r, http.StatusTooManyRequests, "too many login attempts, try again in a few minutes")
	case errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrAccountDeactivated):
		writeError(w, r, http.StatusForbidden, "account is deactivated")
	case errors.Is(err, auth.ErrSelfAction):
		writeError(w, r, http.StatusForbidden, "cannot perform this action on your own account")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, auth.ErrResetTokenInvalid),
		errors.Is(err, auth.ErrVerificationTokenInvalid),
		errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, auth.ErrHasContent):
		writeError(w, r, http.StatusConflict, "account still owns published content")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrUnavailable):
		writeError(w, r, http.StatusInternalServerError, "authentication service unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
