package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/larscolombia/kapa/internal/models"
)

var codePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type MaestroService struct {
	store MaestroStore
}

func NewMaestroService(store MaestroStore) *MaestroService {
	return &MaestroService{store: store}
}

type MaestroInput struct {
	Category  string `json:"category" validate:"required"`
	Code      string `json:"code" validate:"required"`
	Label     string `json:"label" validate:"required"`
	SortOrder int    `json:"sortOrder"`
	Active    *bool  `json:"active"`
}

func (s *MaestroService) List(ctx context.Context, category string, activeOnly bool) ([]models.Maestro, error) {
	return s.store.List(ctx, category, activeOnly)
}

func (s *MaestroService) Categories(ctx context.Context) ([]string, error) {
	return s.store.Categories(ctx)
}

func (s *MaestroService) Create(ctx context.Context, in MaestroInput) (*models.Maestro, error) {
	if !codePattern.MatchString(in.Category) || !codePattern.MatchString(in.Code) {
		return nil, invalid("category and code must match %s", codePattern)
	}
	if strings.TrimSpace(in.Label) == "" {
		return nil, invalid("label is required")
	}
	m := &models.Maestro{
		Category:  in.Category,
		Code:      in.Code,
		Label:     strings.TrimSpace(in.Label),
		SortOrder: in.SortOrder,
		Active:    true,
	}
	if in.Active != nil {
		m.Active = *in.Active
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, storeErr(err, "maestro")
	}
	return m, nil
}

// Update changes label, order and active flag. Category and code are the
// identity referenced by other records and stay fixed.
func (s *MaestroService) Update(ctx context.Context, id string, in MaestroInput) (*models.Maestro, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "maestro")
	}
	if strings.TrimSpace(in.Label) != "" {
		m.Label = strings.TrimSpace(in.Label)
	}
	m.SortOrder = in.SortOrder
	if in.Active != nil {
		m.Active = *in.Active
	}
	if err := s.store.Update(ctx, m); err != nil {
		return nil, storeErr(err, "maestro")
	}
	return m, nil
}

func (s *MaestroService) Deactivate(ctx context.Context, id string) (*models.Maestro, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "maestro")
	}
	m.Active = false
	if err := s.store.Update(ctx, m); err != nil {
		return nil, storeErr(err, "maestro")
	}
	return m, nil
}

// ValidCode reports whether code is an active value of the category.
func (s *MaestroService) ValidCode(ctx context.Context, category, code string) (bool, error) {
	return s.store.ActiveCode(ctx, category, code)
}
