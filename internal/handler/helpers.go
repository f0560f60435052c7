package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/auth"
	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
	"github.com/larscolombia/kapa/internal/service"
)

const maxJSONBody = 2 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report field names the way clients send them
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// readJSON decodes the body into dst and runs its validate tags.
func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return &service.ValidationError{Message: "invalid request body: " + err.Error()}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]map[string]string, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, map[string]string{
					"field":   fe.Field(),
					"message": fmt.Sprintf("failed %s", fe.Tag()),
				})
			}
			return &service.ValidationError{Message: "invalid request", Details: details}
		}
		var invalidArg *validator.InvalidValidationError
		if !errors.As(err, &invalidArg) {
			return err
		}
	}
	return nil
}

// readOptionalJSON decodes a body when one was sent, skipping validation.
func readOptionalJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &service.ValidationError{Message: "invalid request body: " + err.Error()}
}

// writeServiceError maps service sentinels onto HTTP statuses. Anything
// unrecognised is logged and hidden behind a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Message, Details: ve.Details})
		return
	}
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrInactiveUser):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTokenExpired), errors.Is(err, service.ErrTokenRevoked):
		return http.StatusGone
	case errors.Is(err, service.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, service.ErrPDFUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrReportClosed),
		errors.Is(err, service.ErrReportOpen),
		errors.Is(err, service.ErrTokenUsed),
		errors.Is(err, service.ErrAttachmentLimit),
		errors.Is(err, service.ErrTemplateInactive),
		errors.Is(err, service.ErrTemplateInUse):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func scopeOf(r *http.Request) models.Scope {
	if c := auth.GetUser(r.Context()); c != nil {
		return c.Scope()
	}
	return models.Scope{}
}

// pageOf reads skip/limit the way the list endpoints have always taken them.
func pageOf(r *http.Request) repository.Page {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return repository.Page{Offset: skip, Limit: limit}
}

type listResponse struct {
	Docs  any `json:"docs"`
	Total int `json:"total"`
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

func writeList(w http.ResponseWriter, page repository.Page, docs any, total int) {
	if page.Limit <= 0 {
		page.Limit = 20
	}
	if page.Limit > 200 {
		page.Limit = 200
	}
	writeJSON(w, http.StatusOK, listResponse{Docs: docs, Total: total, Skip: page.Offset, Limit: page.Limit})
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	return parseTime(key, r.URL.Query().Get(key))
}

func formTime(r *http.Request, key string) (*time.Time, error) {
	return parseTime(key, r.FormValue(key))
}

func parseTime(key, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, &service.ValidationError{Message: fmt.Sprintf("%s: expected RFC 3339 or YYYY-MM-DD", key)}
}

func pathInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, &service.ValidationError{Message: fmt.Sprintf("invalid version %q", v)}
	}
	return n, nil
}

// readUpload pulls the "file" part out of a multipart request.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (service.FileUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return service.FileUpload{}, service.ErrAttachmentTooLarge
		}
		return service.FileUpload{}, &service.ValidationError{Message: "invalid multipart body"}
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return service.FileUpload{}, &service.ValidationError{Message: "file is required"}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return service.FileUpload{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return service.FileUpload{}, service.ErrAttachmentTooLarge
	}
	return service.FileUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func writeFile(w http.ResponseWriter, name, contentType string, size int64, body io.Reader) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename=%q`, name))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logrus.WithError(err).WithField("file", name).Warn("stream file")
	}
}
