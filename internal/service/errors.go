package service

import (
	"errors"
	"fmt"

	"github.com/larscolombia/kapa/internal/repository"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrInvalidTransition  = errors.New("invalid state transition")

	ErrReportClosed = errors.New("report is closed")
	ErrReportOpen   = errors.New("report is open")
	ErrTokenUsed    = errors.New("token already used")
	ErrTokenRevoked = errors.New("token revoked")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")

	ErrAttachmentLimit    = errors.New("attachment limit reached")
	ErrAttachmentTooLarge = errors.New("attachment too large")
	ErrUnsupportedType    = errors.New("unsupported file type")

	ErrTemplateInactive = errors.New("form template is inactive")
	ErrTemplateInUse    = errors.New("form template has submissions")
	ErrPDFUnavailable   = errors.New("pdf export unavailable")
)

// ValidationError carries the offending input. It matches ErrValidation
// with errors.Is; Details is rendered in the response body.
type ValidationError struct {
	Message string
	Details any
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func invalidWith(details any, format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Details: details}
}

// storeErr maps repository sentinels onto service ones and keeps the
// original text for logs.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
