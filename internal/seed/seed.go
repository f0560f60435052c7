// Package seed loads reference data (roles, permissions, maestros,
// compliance criteria and starter form templates) from YAML fixtures.
// Every step is idempotent so the command can run on each deploy.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/service"
)

//go:embed fixtures/default.yaml
var defaultFixtures []byte

type Fixtures struct {
	Roles    []Role            `yaml:"roles"`
	Maestros []MaestroCategory `yaml:"maestros"`
	Criteria []Criterion       `yaml:"criteria"`
	Forms    []map[string]any  `yaml:"forms"`
}

type Role struct {
	Name        models.Role `yaml:"name"`
	Description string      `yaml:"description"`
	Permissions []string    `yaml:"permissions"`
}

type MaestroCategory struct {
	Category string `yaml:"category"`
	Items    []struct {
		Code  string `yaml:"code"`
		Label string `yaml:"label"`
	} `yaml:"items"`
}

type Criterion struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Subcriteria []struct {
		Name             string                   `yaml:"name"`
		Scope            models.SubcriterionScope `yaml:"scope"`
		RequiresValidity bool                     `yaml:"requiresValidity"`
	} `yaml:"subcriteria"`
}

// Parse decodes a fixtures document.
func Parse(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed: parse fixtures: %w", err)
	}
	return &f, nil
}

// Load reads fixtures from path, or the built-in set when path is empty.
func Load(path string) (*Fixtures, error) {
	if path == "" {
		return Parse(defaultFixtures)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return Parse(data)
}

type RoleStore interface {
	EnsureRole(ctx context.Context, role models.RoleInfo) error
	Grant(ctx context.Context, role models.Role, perm string) error
}

type MaestroStore interface {
	Upsert(ctx context.Context, m *models.Maestro) error
}

type CriteriaService interface {
	ListCriteria(ctx context.Context) ([]models.Criterion, error)
	CreateCriterion(ctx context.Context, in service.CriterionInput) (*models.Criterion, error)
	ListSubcriteria(ctx context.Context, criterionID string, scope models.SubcriterionScope) ([]models.Subcriterion, error)
	CreateSubcriterion(ctx context.Context, in service.SubcriterionInput) (*models.Subcriterion, error)
}

type FormCreator interface {
	Get(ctx context.Context, idOrSlug string) (*models.FormTemplate, error)
	Create(ctx context.Context, createdBy string, in service.FormInput) (*models.FormTemplate, error)
}

type Seeder struct {
	Roles    RoleStore
	Maestros MaestroStore
	Criteria CriteriaService
	Forms    FormCreator
}

// Apply writes the fixtures. Existing criteria and forms are matched by
// name and slug and left untouched.
func (s *Seeder) Apply(ctx context.Context, f *Fixtures) error {
	if err := s.roles(ctx, f.Roles); err != nil {
		return err
	}
	if err := s.maestros(ctx, f.Maestros); err != nil {
		return err
	}
	if err := s.criteria(ctx, f.Criteria); err != nil {
		return err
	}
	return s.forms(ctx, f.Forms)
}

func (s *Seeder) roles(ctx context.Context, roles []Role) error {
	for _, r := range roles {
		if err := s.Roles.EnsureRole(ctx, models.RoleInfo{Name: r.Name, Description: r.Description}); err != nil {
			return fmt.Errorf("seed role %s: %w", r.Name, err)
		}
		for _, p := range r.Permissions {
			if err := s.Roles.Grant(ctx, r.Name, p); err != nil {
				return fmt.Errorf("seed grant %s to %s: %w", p, r.Name, err)
			}
		}
	}
	logrus.WithField("count", len(roles)).Info("roles seeded")
	return nil
}

func (s *Seeder) maestros(ctx context.Context, cats []MaestroCategory) error {
	n := 0
	for _, c := range cats {
		for i, it := range c.Items {
			m := &models.Maestro{Category: c.Category, Code: it.Code, Label: it.Label, SortOrder: i + 1, Active: true}
			if err := s.Maestros.Upsert(ctx, m); err != nil {
				return fmt.Errorf("seed maestro %s/%s: %w", c.Category, it.Code, err)
			}
			n++
		}
	}
	logrus.WithField("count", n).Info("maestros seeded")
	return nil
}

func (s *Seeder) criteria(ctx context.Context, criteria []Criterion) error {
	existing, err := s.Criteria.ListCriteria(ctx)
	if err != nil {
		return fmt.Errorf("seed criteria: %w", err)
	}
	byName := make(map[string]string, len(existing))
	for _, c := range existing {
		byName[c.Name] = c.ID
	}

	for i, c := range criteria {
		id, ok := byName[c.Name]
		if !ok {
			created, err := s.Criteria.CreateCriterion(ctx, service.CriterionInput{
				Name: c.Name, Description: c.Description, SortOrder: i + 1,
			})
			if err != nil {
				return fmt.Errorf("seed criterion %q: %w", c.Name, err)
			}
			id = created.ID
		}

		subs, err := s.Criteria.ListSubcriteria(ctx, id, "")
		if err != nil {
			return fmt.Errorf("seed subcriteria of %q: %w", c.Name, err)
		}
		have := make(map[string]bool, len(subs))
		for _, sc := range subs {
			have[sc.Name] = true
		}
		for j, sc := range c.Subcriteria {
			if have[sc.Name] {
				continue
			}
			if _, err := s.Criteria.CreateSubcriterion(ctx, service.SubcriterionInput{
				CriterionID:      id,
				Name:             sc.Name,
				Scope:            sc.Scope,
				RequiresValidity: sc.RequiresValidity,
				SortOrder:        j + 1,
			}); err != nil {
				return fmt.Errorf("seed subcriterion %q: %w", sc.Name, err)
			}
		}
	}
	logrus.WithField("count", len(criteria)).Info("criteria seeded")
	return nil
}

// forms round-trips each YAML document through JSON so the schema types
// only need their json tags.
func (s *Seeder) forms(ctx context.Context, forms []map[string]any) error {
	for _, raw := range forms {
		data, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("seed form: %w", err)
		}
		var in service.FormInput
		if err := json.Unmarshal(data, &in); err != nil {
			return fmt.Errorf("seed form: %w", err)
		}
		if in.Slug != "" {
			if _, err := s.Forms.Get(ctx, in.Slug); err == nil {
				continue
			} else if !errors.Is(err, service.ErrNotFound) {
				return fmt.Errorf("seed form %s: %w", in.Slug, err)
			}
		}
		t, err := s.Forms.Create(ctx, "seed", in)
		if err != nil {
			return fmt.Errorf("seed form %q: %w", in.Name, err)
		}
		logrus.WithFields(logrus.Fields{"template_id": t.ID, "slug": t.Slug}).Info("form template seeded")
	}
	return nil
}
