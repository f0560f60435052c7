package handler

import (
	"bytes"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
	"github.com/larscolombia/kapa/internal/service"
)

type IlvHandler struct {
	svc *service.IlvService
}

func NewIlvHandler(svc *service.IlvService) *IlvHandler {
	return &IlvHandler{svc: svc}
}

func reportFilter(r *http.Request) (repository.ReportFilter, error) {
	q := r.URL.Query()
	f := repository.ReportFilter{
		Tipo:         models.IlvTipo(q.Get("tipo")),
		Estado:       models.IlvEstado(q.Get("estado")),
		ProjectID:    q.Get("projectId"),
		ContractorID: q.Get("contractorId"),
	}
	var err error
	if f.From, err = queryTime(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryTime(r, "to"); err != nil {
		return f, err
	}
	return f, nil
}

func (h *IlvHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := reportFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	page := pageOf(r)
	reports, total, err := h.svc.List(r.Context(), scopeOf(r), f, page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, page, reports, total)
}

func (h *IlvHandler) Stats(w http.ResponseWriter, r *http.Request) {
	f, err := reportFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	stats, err := h.svc.Stats(r.Context(), scopeOf(r), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *IlvHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.ReportInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	rep, err := h.svc.Create(r.Context(), scopeOf(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (h *IlvHandler) Get(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Get(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *IlvHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.ReportInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	rep, err := h.svc.Update(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *IlvHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reportId")
	if err := h.svc.Delete(r.Context(), scopeOf(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *IlvHandler) Fields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.svc.Fields(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (h *IlvHandler) SetFields(w http.ResponseWriter, r *http.Request) {
	var in map[string]string
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	fields, err := h.svc.SetFields(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (h *IlvHandler) Attachments(w http.ResponseWriter, r *http.Request) {
	atts, err := h.svc.Attachments(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, atts)
}

// AddAttachment answers 201 for a new file and 200 when the same content
// was already attached.
func (h *IlvHandler) AddAttachment(w http.ResponseWriter, r *http.Request) {
	file, err := readUpload(w, r, models.MaxAttachmentSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	att, created, err := h.svc.AddAttachment(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"), file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, att)
}

func (h *IlvHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	att, body, err := h.svc.DownloadAttachment(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"), chi.URLParam(r, "attachmentId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer body.Close()
	writeFile(w, att.FileName, att.ContentType, att.Size, body)
}

func (h *IlvHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAttachment(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"), chi.URLParam(r, "attachmentId")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IlvHandler) IssueCloseToken(w http.ResponseWriter, r *http.Request) {
	issued, err := h.svc.IssueCloseToken(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

func (h *IlvHandler) CloseTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.svc.CloseTokens(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *IlvHandler) Close(w http.ResponseWriter, r *http.Request) {
	// name and email default to the caller, so the body is optional here
	var in service.CloseInput
	if err := readOptionalJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	rep, err := h.svc.Close(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *IlvHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Reopen(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *IlvHandler) PDF(w http.ResponseWriter, r *http.Request) {
	data, rep, err := h.svc.PDF(r.Context(), scopeOf(r), chi.URLParam(r, "reportId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeFile(w, fmt.Sprintf("%s.pdf", rep.Number), "application/pdf", int64(len(data)), bytes.NewReader(data))
}

// Public close link endpoints. No session; the token is the credential.

func (h *IlvHandler) PreviewByToken(w http.ResponseWriter, r *http.Request) {
	preview, err := h.svc.PreviewByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *IlvHandler) CloseByToken(w http.ResponseWriter, r *http.Request) {
	var in service.CloseInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	rep, err := h.svc.CloseByToken(r.Context(), chi.URLParam(r, "token"), in, clientIP(r), r.UserAgent())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"number":   rep.Number,
		"estado":   rep.Estado,
		"closedAt": rep.ClosedAt,
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
