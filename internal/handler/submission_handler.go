package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
	"github.com/larscolombia/kapa/internal/service"
)

type SubmissionHandler struct {
	svc    *service.SubmissionService
	search *service.SearchService
}

func NewSubmissionHandler(svc *service.SubmissionService, search *service.SearchService) *SubmissionHandler {
	return &SubmissionHandler{svc: svc, search: search}
}

func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	page := pageOf(r)
	subs, total, err := h.svc.List(r.Context(), scopeOf(r), repository.SubmissionFilter{
		TemplateID: chi.URLParam(r, "formId"),
		ReportID:   r.URL.Query().Get("reportId"),
		Status:     models.SubmissionStatus(r.URL.Query().Get("status")),
	}, page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, page, subs, total)
}

func (h *SubmissionHandler) GetForReport(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.GetByReport(r.Context(), scopeOf(r), chi.URLParam(r, "formId"), chi.URLParam(r, "reportId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Submit creates or replaces the report's submission.
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in service.SubmitInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sub, err := h.svc.Submit(r.Context(), scopeOf(r), chi.URLParam(r, "formId"), chi.URLParam(r, "reportId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubmissionHandler) Draft(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Draft(r.Context(), scopeOf(r), chi.URLParam(r, "formId"), chi.URLParam(r, "reportId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type draftRequest struct {
	Data map[string]any `json:"data" validate:"required"`
}

func (h *SubmissionHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var in draftRequest
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	d, err := h.svc.SaveDraft(r.Context(), scopeOf(r), chi.URLParam(r, "formId"), chi.URLParam(r, "reportId"), in.Data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *SubmissionHandler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DiscardDraft(r.Context(), scopeOf(r), chi.URLParam(r, "formId"), chi.URLParam(r, "reportId")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Get(r.Context(), scopeOf(r), chi.URLParam(r, "submissionId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubmissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "submissionId")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *SubmissionHandler) History(w http.ResponseWriter, r *http.Request) {
	hist, err := h.svc.History(r.Context(), scopeOf(r), chi.URLParam(r, "submissionId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (h *SubmissionHandler) HistoryEntry(w http.ResponseWriter, r *http.Request) {
	version, err := pathInt(chi.URLParam(r, "version"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	entry, err := h.svc.HistoryEntry(r.Context(), scopeOf(r), chi.URLParam(r, "submissionId"), version)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *SubmissionHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req service.SearchRequest
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := h.search.Search(r.Context(), scopeOf(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
