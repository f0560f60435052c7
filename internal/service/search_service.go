package service

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
)

// SearchService filters the submissions of one form by their data.
type SearchService struct {
	subs *SubmissionService
}

func NewSearchService(subs *SubmissionService) *SearchService {
	return &SearchService{subs: subs}
}

type SearchRequest struct {
	FormID   string                      `json:"formId" validate:"required"`
	ReportID string                      `json:"reportId,omitempty"`
	Status   models.SubmissionStatus     `json:"status,omitempty"`
	Filters  map[string]FilterDescriptor `json:"filters,omitempty"`
	Skip     int                         `json:"skip"`
	Limit    int                         `json:"limit"`
}

// FilterDescriptor matches a data path either exactly (Value) or within a
// numeric range (Min, Max).
type FilterDescriptor struct {
	Value any `json:"value,omitempty"`
	Min   any `json:"min,omitempty"`
	Max   any `json:"max,omitempty"`
}

type SearchResult struct {
	Docs  []models.FormSubmission `json:"docs"`
	Total int                     `json:"total"`
	Skip  int                     `json:"skip"`
	Limit int                     `json:"limit"`
}

var searchPath = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)*$`)

func (s *SearchService) Search(ctx context.Context, scope models.Scope, req SearchRequest) (*SearchResult, error) {
	if req.FormID == "" {
		return nil, invalid("formId is required")
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, invalid("unknown status %q", req.Status)
	}
	f, err := buildFilter(req)
	if err != nil {
		return nil, err
	}
	page := repository.Page{Offset: req.Skip, Limit: req.Limit}
	docs, total, err := s.subs.List(ctx, scope, f, page)
	if err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}
	return &SearchResult{Docs: docs, Total: total, Skip: req.Skip, Limit: req.Limit}, nil
}

func buildFilter(req SearchRequest) (repository.SubmissionFilter, error) {
	f := repository.SubmissionFilter{
		TemplateID: req.FormID,
		ReportID:   req.ReportID,
		Status:     req.Status,
		Equals:     map[string]any{},
		Min:        map[string]float64{},
		Max:        map[string]float64{},
	}
	for path, d := range req.Filters {
		if !searchPath.MatchString(path) {
			return f, invalid("invalid filter path %q", path)
		}
		if d.Value != nil {
			f.Equals[path] = d.Value
		}
		if d.Min != nil {
			n, ok := number(d.Min)
			if !ok {
				return f, invalid("filter %s: min must be numeric", path)
			}
			f.Min[path] = n
		}
		if d.Max != nil {
			n, ok := number(d.Max)
			if !ok {
				return f, invalid("filter %s: max must be numeric", path)
			}
			f.Max[path] = n
		}
		if d.Value == nil && d.Min == nil && d.Max == nil {
			return f, invalid("filter %s is empty", path)
		}
	}
	return f, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
