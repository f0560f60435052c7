package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/larscolombia/kapa/internal/repository"
	"github.com/larscolombia/kapa/internal/service"
)

type FormHandler struct {
	svc *service.FormService
}

func NewFormHandler(svc *service.FormService) *FormHandler {
	return &FormHandler{svc: svc}
}

func (h *FormHandler) List(w http.ResponseWriter, r *http.Request) {
	forms, err := h.svc.List(r.Context(), repository.FormFilter{
		Tipo:       r.URL.Query().Get("tipo"),
		ActiveOnly: queryBool(r, "active"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forms)
}

func (h *FormHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.FormInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	form, err := h.svc.Create(r.Context(), scopeOf(r).UserID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, form)
}

// Get accepts an id or a slug. ?version=N returns that snapshot instead of
// the current definition.
func (h *FormHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "formId")
	if v := r.URL.Query().Get("version"); v != "" {
		version, err := pathInt(v)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		form, err := h.svc.GetVersion(r.Context(), id, version)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, form)
		return
	}
	form, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *FormHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.FormInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	form, err := h.svc.Update(r.Context(), chi.URLParam(r, "formId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *FormHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "formId")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *FormHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *FormHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *FormHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	form, err := h.svc.SetActive(r.Context(), chi.URLParam(r, "formId"), active)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *FormHandler) Versions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.Versions(r.Context(), chi.URLParam(r, "formId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// Render resolves labels for ?lang and strips the translation tables.
func (h *FormHandler) Render(w http.ResponseWriter, r *http.Request) {
	var version int
	if v := r.URL.Query().Get("version"); v != "" {
		var err error
		if version, err = pathInt(v); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	form, err := h.svc.Render(r.Context(), chi.URLParam(r, "formId"), version, r.URL.Query().Get("lang"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}
