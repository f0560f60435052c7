package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
	"github.com/larscolombia/kapa/internal/service"
)

// ComplianceHandler serves criteria, subcriteria and checklist documents.
type ComplianceHandler struct {
	svc *service.ComplianceService
}

func NewComplianceHandler(svc *service.ComplianceService) *ComplianceHandler {
	return &ComplianceHandler{svc: svc}
}

func (h *ComplianceHandler) ListCriteria(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListCriteria(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ComplianceHandler) CreateCriterion(w http.ResponseWriter, r *http.Request) {
	var in service.CriterionInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := h.svc.CreateCriterion(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ComplianceHandler) UpdateCriterion(w http.ResponseWriter, r *http.Request) {
	var in service.CriterionInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := h.svc.UpdateCriterion(r.Context(), chi.URLParam(r, "criterionId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ComplianceHandler) DeleteCriterion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "criterionId")
	if err := h.svc.DeleteCriterion(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *ComplianceHandler) ListSubcriteria(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.svc.ListSubcriteria(r.Context(), q.Get("criterionId"), models.SubcriterionScope(q.Get("scope")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ComplianceHandler) CreateSubcriterion(w http.ResponseWriter, r *http.Request) {
	var in service.SubcriterionInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s, err := h.svc.CreateSubcriterion(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *ComplianceHandler) UpdateSubcriterion(w http.ResponseWriter, r *http.Request) {
	var in service.SubcriterionInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s, err := h.svc.UpdateSubcriterion(r.Context(), chi.URLParam(r, "subcriterionId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *ComplianceHandler) DeleteSubcriterion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subcriterionId")
	if err := h.svc.DeleteSubcriterion(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *ComplianceHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	docs, err := h.svc.ListDocuments(r.Context(), scopeOf(r), chi.URLParam(r, "pcId"), repository.DocumentFilter{
		State:      models.DocumentState(q.Get("state")),
		EmployeeID: q.Get("employeeId"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *ComplianceHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetDocument(r.Context(), scopeOf(r), chi.URLParam(r, "documentId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Upload takes a multipart body with the file plus optional validFrom and
// validUntil form values.
func (h *ComplianceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	file, err := readUpload(w, r, service.MaxFileSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	in := service.DocumentUpload{File: file}
	if in.ValidFrom, err = formTime(r, "validFrom"); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if in.ValidUntil, err = formTime(r, "validUntil"); err != nil {
		writeServiceError(w, r, err)
		return
	}
	d, err := h.svc.Upload(r.Context(), scopeOf(r), chi.URLParam(r, "documentId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *ComplianceHandler) Download(w http.ResponseWriter, r *http.Request) {
	d, body, err := h.svc.Download(r.Context(), scopeOf(r), chi.URLParam(r, "documentId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer body.Close()
	writeFile(w, d.FileName, d.ContentType, d.Size, body)
}

func (h *ComplianceHandler) Review(w http.ResponseWriter, r *http.Request) {
	var in service.ReviewInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	d, err := h.svc.Review(r.Context(), scopeOf(r), chi.URLParam(r, "documentId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type commentRequest struct {
	Comment string `json:"comment"`
}

func (h *ComplianceHandler) MarkNotApplicable(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	d, err := h.svc.MarkNotApplicable(r.Context(), scopeOf(r), chi.URLParam(r, "documentId"), req.Comment)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *ComplianceHandler) Reset(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Reset(r.Context(), scopeOf(r), chi.URLParam(r, "documentId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
