package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
	"github.com/larscolombia/kapa/internal/service"
)

// AdminHandler serves user management, role permissions and the
// notification log.
type AdminHandler struct {
	access *service.AccessService
	notify *service.NotificationService
}

func NewAdminHandler(access *service.AccessService, notify *service.NotificationService) *AdminHandler {
	return &AdminHandler{access: access, notify: notify}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := pageOf(r)
	users, total, err := h.access.ListUsers(r.Context(), models.Role(r.URL.Query().Get("role")), page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, page, users, total)
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in service.UserInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	user, err := h.access.CreateUser(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.access.GetUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var in service.UserUpdate
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	user, err := h.access.UpdateUser(r.Context(), chi.URLParam(r, "userId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userId")
	if err := h.access.Deactivate(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deactivated": id})
}

type passwordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.access.ResetPassword(r.Context(), chi.URLParam(r, "userId"), req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) Roles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.access.Roles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

func (h *AdminHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	role := models.Role(chi.URLParam(r, "role"))
	perms, err := h.access.Permissions(r.Context(), role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role": role, "permissions": perms})
}

type grantRequest struct {
	Permission string `json:"permission" validate:"required"`
}

func (h *AdminHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	role := models.Role(chi.URLParam(r, "role"))
	if err := h.access.Grant(r.Context(), role, req.Permission); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.Permissions(w, r)
}

func (h *AdminHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	role := models.Role(chi.URLParam(r, "role"))
	if err := h.access.Revoke(r.Context(), role, chi.URLParam(r, "permission")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.Permissions(w, r)
}

func (h *AdminHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := pageOf(r)
	rows, total, err := h.notify.List(r.Context(), repository.NotificationFilter{
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
		Status:     models.NotificationStatus(q.Get("status")),
	}, page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, page, rows, total)
}
