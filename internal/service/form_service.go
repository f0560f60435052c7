package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/larscolombia/kapa/internal/formschema"
	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
)

type FormService struct {
	forms FormStore
	subs  SubmissionStore
}

func NewFormService(forms FormStore, subs SubmissionStore) *FormService {
	return &FormService{forms: forms, subs: subs}
}

type FormInput struct {
	Name        string              `json:"name" validate:"required,max=200"`
	Slug        string              `json:"slug"`
	Description string              `json:"description"`
	Tipo        string              `json:"tipo"`
	Schema      formschema.Schema   `json:"schema"`
	Settings    formschema.Settings `json:"settings"`
}

func (s *FormService) check(in *FormInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return invalid("form name is required")
	}
	if in.Tipo != "" && !models.IlvTipo(in.Tipo).Valid() {
		return invalid("unknown tipo %q", in.Tipo)
	}
	if len(in.Schema.Fields) == 0 {
		return invalid("at least one field is required")
	}
	var details formschema.ValidationErrors
	for _, err := range []error{in.Schema.Validate(), in.Settings.Validate()} {
		var ve formschema.ValidationErrors
		if errors.As(err, &ve) {
			details = append(details, ve...)
		} else if err != nil {
			return invalid("%v", err)
		}
	}
	if len(details) > 0 {
		return invalidWith(details, "invalid form definition")
	}
	return nil
}

func (s *FormService) Create(ctx context.Context, createdBy string, in FormInput) (*models.FormTemplate, error) {
	if err := s.check(&in); err != nil {
		return nil, err
	}
	slug := in.Slug
	if slug == "" {
		slug = in.Name
	}
	slug = generateSlug(slug)

	t := &models.FormTemplate{
		Name:        in.Name,
		Slug:        slug,
		Description: in.Description,
		Tipo:        in.Tipo,
		Version:     1,
		Schema:      in.Schema,
		Settings:    in.Settings,
		Active:      true,
		CreatedBy:   createdBy,
	}
	if err := s.forms.Create(ctx, t); err != nil {
		return nil, storeErr(err, "form slug "+slug)
	}
	logrus.WithFields(logrus.Fields{"template_id": t.ID, "slug": t.Slug}).Info("form template created")
	return t, nil
}

func (s *FormService) List(ctx context.Context, f repository.FormFilter) ([]models.FormTemplate, error) {
	return s.forms.List(ctx, f)
}

// Get accepts either the template id or its slug.
func (s *FormService) Get(ctx context.Context, idOrSlug string) (*models.FormTemplate, error) {
	t, err := s.forms.Get(ctx, idOrSlug)
	if errors.Is(err, repository.ErrNotFound) {
		t, err = s.forms.GetBySlug(ctx, idOrSlug)
	}
	if err != nil {
		return nil, storeErr(err, "form")
	}
	return t, nil
}

// GetVersion returns the template as it was at version.
func (s *FormService) GetVersion(ctx context.Context, id string, version int) (*models.FormTemplate, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if version == t.Version {
		return t, nil
	}
	v, err := s.forms.Version(ctx, t.ID, version)
	if err != nil {
		return nil, storeErr(err, "form version")
	}
	old := *t
	old.Version = v.Version
	old.Schema = v.Schema
	old.Settings = v.Settings
	return &old, nil
}

func (s *FormService) Versions(ctx context.Context, id string) ([]models.FormTemplateVersion, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.forms.Versions(ctx, t.ID)
}

func sameJSON(a, b any) bool {
	ja, err1 := json.Marshal(a)
	jb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && bytes.Equal(ja, jb)
}

// Update bumps the version and snapshots it only when schema or settings
// changed. Name, slug and description edits keep the version.
func (s *FormService) Update(ctx context.Context, id string, in FormInput) (*models.FormTemplate, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(&in); err != nil {
		return nil, err
	}
	changed := !sameJSON(t.Schema, in.Schema) || !sameJSON(t.Settings, in.Settings)

	t.Name = in.Name
	if in.Slug != "" {
		t.Slug = generateSlug(in.Slug)
	}
	t.Description = in.Description
	t.Tipo = in.Tipo
	t.Schema = in.Schema
	t.Settings = in.Settings
	if changed {
		t.Version++
	}
	if err := s.forms.Update(ctx, t, changed); err != nil {
		return nil, storeErr(err, "form")
	}
	logrus.WithFields(logrus.Fields{"template_id": t.ID, "version": t.Version, "bumped": changed}).Info("form template updated")
	return t, nil
}

func (s *FormService) SetActive(ctx context.Context, id string, active bool) (*models.FormTemplate, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Active == active {
		return t, nil
	}
	t.Active = active
	if err := s.forms.Update(ctx, t, false); err != nil {
		return nil, storeErr(err, "form")
	}
	return t, nil
}

// Delete refuses templates that already have submissions; deactivate
// those instead.
func (s *FormService) Delete(ctx context.Context, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.subs.CountByTemplate(ctx, t.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrTemplateInUse
	}
	if err := s.forms.Delete(ctx, t.ID); err != nil {
		return storeErr(err, "form")
	}
	logrus.WithField("template_id", t.ID).Info("form template deleted")
	return nil
}

// Render resolves labels for lang, falling back to the default language
// of the template. version 0 means current.
func (s *FormService) Render(ctx context.Context, id string, version int, lang string) (*models.FormTemplate, error) {
	var t *models.FormTemplate
	var err error
	if version > 0 {
		t, err = s.GetVersion(ctx, id, version)
	} else {
		t, err = s.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if lang == "" {
		lang = t.Settings.DefaultLanguage
	}
	out := *t
	out.Schema = t.Schema.Render(lang, t.Settings.DefaultLanguage)
	return &out, nil
}

var nonAlphaNum = regexp.MustCompile(`[^a-z0-9]+`)

// generateSlug folds accents ("Inspección" becomes "inspeccion") before
// collapsing everything else into dashes.
func generateSlug(name string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(strings.TrimSpace(name))) {
		if !unicode.Is(unicode.Mn, r) {
			b.WriteRune(r)
		}
	}
	slug := nonAlphaNum.ReplaceAllString(b.String(), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "form"
	}
	return slug
}
