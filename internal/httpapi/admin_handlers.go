package httpapi

import (
	"net/http"

	"nashra.news/internal/audit"
	"nashra.news/internal/auth"
)

type updateRoleRequest struct {
	Role string `json:"role"`
}

type updateStatusRequest struct {
	Active *bool `json:"active"`
}

type writerReviewRequest struct {
	Approve *bool `json:"approve"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.svc.ListUsers(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	out := make([]auth.SafeUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Safe())
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFromContext(r.Context())
	targetID := r.PathValue("id")

	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}

	if err := a.svc.UpdateUserRole(r.Context(), actor.User.ID, targetID, role); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.user.role_changed", map[string]any{
		"target_id": targetID,
		"role":      string(role),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFromContext(r.Context())
	targetID := r.PathValue("id")

	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, r, http.StatusBadRequest, "active is required")
		return
	}

	if err := a.svc.SetUserActive(r.Context(), actor.User.ID, targetID, *req.Active); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.user.status_changed", map[string]any{
		"target_id": targetID,
		"active":    *req.Active,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFromContext(r.Context())
	targetID := r.PathValue("id")

	if err := a.svc.DeleteUser(r.Context(), actor.User.ID, targetID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.user.deleted", map[string]any{
		"target_id": targetID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleWriterReview(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")

	var req writerReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Approve == nil {
		writeError(w, r, http.StatusBadRequest, "approve is required")
		return
	}

	if err := a.svc.ReviewWriterApplication(r.Context(), targetID, *req.Approve); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.writer.reviewed", map[string]any{
		"target_id": targetID,
		"approved":  *req.Approve,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
