package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/larscolombia/kapa/internal/service"
)

type MaestroHandler struct {
	svc *service.MaestroService
}

func NewMaestroHandler(svc *service.MaestroService) *MaestroHandler {
	return &MaestroHandler{svc: svc}
}

func (h *MaestroHandler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Categories(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// List returns a category's entries. Inactive ones only with ?all=true.
func (h *MaestroHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), chi.URLParam(r, "category"), !queryBool(r, "all"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *MaestroHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.MaestroInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	m, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MaestroHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.MaestroInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	m, err := h.svc.Update(r.Context(), chi.URLParam(r, "maestroId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MaestroHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Deactivate(r.Context(), chi.URLParam(r, "maestroId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
