package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/larscolombia/kapa/internal/repository"
	"github.com/larscolombia/kapa/internal/service"
)

// FileHandler serves the general document repository under /files.
type FileHandler struct {
	svc *service.FileService
}

func NewFileHandler(svc *service.FileService) *FileHandler {
	return &FileHandler{svc: svc}
}

func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	file, err := readUpload(w, r, service.MaxFileSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	f, err := h.svc.Upload(r.Context(), scopeOf(r), file, r.FormValue("projectId"), r.FormValue("submissionId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	page := pageOf(r)
	files, total, err := h.svc.List(r.Context(), scopeOf(r), repository.FileFilter{
		ProjectID:    r.URL.Query().Get("projectId"),
		SubmissionID: r.URL.Query().Get("submissionId"),
	}, page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, page, files, total)
}

func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	f, body, err := h.svc.Download(r.Context(), scopeOf(r), chi.URLParam(r, "fileId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer body.Close()
	writeFile(w, f.FileName, f.ContentType, f.Size, body)
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileId")
	if err := h.svc.Delete(r.Context(), scopeOf(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
