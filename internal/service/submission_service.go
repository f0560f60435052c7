package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/diff"
	"github.com/larscolombia/kapa/internal/metrics"
	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
)

// ReportLookup resolves a report visible to the scope.
type ReportLookup interface {
	Get(ctx context.Context, scope models.Scope, id string) (*models.IlvReport, error)
}

type SubmissionService struct {
	subs     SubmissionStore
	forms    *FormService
	reports  ReportLookup
	draftTTL time.Duration
	now      Clock
}

func NewSubmissionService(subs SubmissionStore, forms *FormService, reports ReportLookup, draftTTL time.Duration, now Clock) *SubmissionService {
	if draftTTL <= 0 {
		draftTTL = models.DefaultDraftTTL
	}
	return &SubmissionService{subs: subs, forms: forms, reports: reports, draftTTL: draftTTL, now: now}
}

type SubmitInput struct {
	Data   map[string]any          `json:"data"`
	Status models.SubmissionStatus `json:"status"`
}

func (s *SubmissionService) activeTemplate(ctx context.Context, id string) (*models.FormTemplate, error) {
	t, err := s.forms.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, ErrTemplateInactive
	}
	return t, nil
}

// Submit stores the single submission of a template for a report, creating
// it on first call and updating it afterwards. Every effective change is
// recorded as a history version.
func (s *SubmissionService) Submit(ctx context.Context, scope models.Scope, templateID, reportID string, in SubmitInput) (*models.FormSubmission, error) {
	t, err := s.activeTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if _, err := s.reports.Get(ctx, scope, reportID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalid("report %s not found", reportID)
		}
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = models.StatusCompleted
	}
	if !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}
	if status == models.StatusPartial && !t.Settings.AllowPartial {
		return nil, invalid("form %s does not accept partial submissions", t.Slug)
	}

	res := t.Schema.Evaluate(ctx, in.Data)
	if err := t.Schema.ValidateData(res, status == models.StatusCompleted); err != nil {
		return nil, invalidWith(err, "submission data is invalid")
	}
	score := t.Schema.Score(res, t.Settings)
	now := s.now.now()

	sub, err := s.subs.Upsert(ctx, t.ID, reportID, func(existing *models.FormSubmission) (*models.FormSubmission, *models.FormSubmissionHistory, error) {
		next := &models.FormSubmission{
			TemplateID:      t.ID,
			TemplateVersion: t.Version,
			ReportID:        reportID,
			Data:            models.JSONMap(res.Data),
			Computed:        models.JSONMap(res.Computed),
			Status:          status,
			Version:         1,
			SubmittedBy:     scope.UserID,
			SubmittedAt:     now,
		}
		if score != nil {
			next.Score = &score.Score
			next.MaxScore = &score.MaxScore
			next.Passed = score.Passed
		}

		before := models.JSONMap{}
		if existing != nil {
			before = existing.Data
			next.Version = existing.Version
		}
		changes := diff.Compare(map[string]any(before), res.Data)
		if existing != nil {
			if len(changes) == 0 {
				if existing.Status == status {
					return existing, nil, nil
				}
				// status-only change: store it without a history row
				return next, nil, nil
			}
			next.Version = existing.Version + 1
		}
		hist := &models.FormSubmissionHistory{
			Version:   next.Version,
			Status:    status,
			Changes:   models.Changes(changes),
			Before:    before,
			After:     next.Data,
			ChangedBy: scope.UserID,
			ChangedAt: now,
		}
		return next, hist, nil
	})
	if err != nil {
		return nil, storeErr(err, "submission")
	}

	if err := s.subs.DeleteDraft(ctx, t.ID, reportID, scope.UserID); err != nil {
		logrus.WithError(err).WithField("template_id", t.ID).Warn("delete draft after submit")
	}
	metrics.SubmissionSaved(string(status))
	logrus.WithFields(logrus.Fields{
		"template_id":   t.ID,
		"report_id":     reportID,
		"submission_id": sub.ID,
		"version":       sub.Version,
		"status":        sub.Status,
	}).Info("submission saved")
	return sub, nil
}

// visible loads a submission and checks its report against the scope.
func (s *SubmissionService) visible(ctx context.Context, scope models.Scope, sub *models.FormSubmission) error {
	if _, err := s.reports.Get(ctx, scope, sub.ReportID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *SubmissionService) Get(ctx context.Context, scope models.Scope, id string) (*models.FormSubmission, error) {
	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "submission")
	}
	if err := s.visible(ctx, scope, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubmissionService) GetByReport(ctx context.Context, scope models.Scope, templateID, reportID string) (*models.FormSubmission, error) {
	t, err := s.forms.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if _, err := s.reports.Get(ctx, scope, reportID); err != nil {
		return nil, err
	}
	sub, err := s.subs.GetByReport(ctx, t.ID, reportID)
	if err != nil {
		return nil, storeErr(err, "submission")
	}
	return sub, nil
}

func (s *SubmissionService) List(ctx context.Context, scope models.Scope, f repository.SubmissionFilter, page repository.Page) ([]models.FormSubmission, int, error) {
	if f.TemplateID != "" {
		t, err := s.forms.Get(ctx, f.TemplateID)
		if err != nil {
			return nil, 0, err
		}
		f.TemplateID = t.ID
	}
	return s.subs.List(ctx, f, scope, page)
}

func (s *SubmissionService) History(ctx context.Context, scope models.Scope, id string) ([]models.FormSubmissionHistory, error) {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return nil, err
	}
	return s.subs.History(ctx, id)
}

func (s *SubmissionService) HistoryEntry(ctx context.Context, scope models.Scope, id string, version int) (*models.FormSubmissionHistory, error) {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return nil, err
	}
	h, err := s.subs.HistoryEntry(ctx, id, version)
	if err != nil {
		return nil, storeErr(err, "history version")
	}
	return h, nil
}

func (s *SubmissionService) Delete(ctx context.Context, id string) error {
	if err := s.subs.Delete(ctx, id); err != nil {
		return storeErr(err, "submission")
	}
	logrus.WithField("submission_id", id).Info("submission deleted")
	return nil
}

// SaveDraft stores the caller's work in progress unvalidated. Each save
// pushes the expiry forward.
func (s *SubmissionService) SaveDraft(ctx context.Context, scope models.Scope, templateID, reportID string, data map[string]any) (*models.FormDraft, error) {
	t, err := s.activeTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if _, err := s.reports.Get(ctx, scope, reportID); err != nil {
		return nil, err
	}
	now := s.now.now()
	d := &models.FormDraft{
		TemplateID: t.ID,
		ReportID:   reportID,
		UserID:     scope.UserID,
		Data:       models.JSONMap(data),
		SavedAt:    now,
		ExpiresAt:  now.Add(s.draftTTL),
	}
	if err := s.subs.SaveDraft(ctx, d); err != nil {
		return nil, storeErr(err, "draft")
	}
	metrics.SubmissionSaved("autosave")
	return d, nil
}

// Draft returns the caller's draft. An expired draft that the cleanup job
// has not removed yet is reported as missing.
func (s *SubmissionService) Draft(ctx context.Context, scope models.Scope, templateID, reportID string) (*models.FormDraft, error) {
	t, err := s.forms.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	d, err := s.subs.Draft(ctx, t.ID, reportID, scope.UserID)
	if err != nil {
		return nil, storeErr(err, "draft")
	}
	if d.Expired(s.now.now()) {
		return nil, ErrNotFound
	}
	return d, nil
}

func (s *SubmissionService) DiscardDraft(ctx context.Context, scope models.Scope, templateID, reportID string) error {
	t, err := s.forms.Get(ctx, templateID)
	if err != nil {
		return err
	}
	return s.subs.DeleteDraft(ctx, t.ID, reportID, scope.UserID)
}
