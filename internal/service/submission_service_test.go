package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
)

// stubReports treats every listed report as visible to every scope.
type stubReports map[string]bool

func (s stubReports) Get(_ context.Context, _ models.Scope, id string) (*models.IlvReport, error) {
	if !s[id] {
		return nil, ErrNotFound
	}
	return &models.IlvReport{ID: id, Estado: models.EstadoAbierto}, nil
}

type submissionFixture struct {
	svc   *SubmissionService
	forms *FormService
	subs  *fakeSubs
	clock *fixedClock
	tpl   *models.FormTemplate
}

func newSubmissionFixture(t *testing.T) *submissionFixture {
	t.Helper()
	f := &submissionFixture{
		subs:  newFakeSubs(),
		clock: &fixedClock{t: time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)},
	}
	f.forms = NewFormService(newFakeForms(), f.subs)
	tpl, err := f.forms.Create(context.Background(), "u-admin", checklistInput())
	require.NoError(t, err)
	f.tpl = tpl
	f.svc = NewSubmissionService(f.subs, f.forms, stubReports{"r-1": true}, 0, f.clock.now)
	return f
}

func TestSubmitFirstVersion(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: map[string]any{
		"area":     "bodega",
		"ok":       "si",
		"detalle":  "hidden because ok is si",
		"cantidad": 3,
		"extra":    "unknown keys are dropped",
	}})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, sub.Status)
	assert.Equal(t, 1, sub.Version)
	assert.Equal(t, f.tpl.Version, sub.TemplateVersion)
	assert.NotContains(t, sub.Data, "detalle")
	assert.NotContains(t, sub.Data, "extra")
	assert.EqualValues(t, 6, sub.Computed["doble"])
	require.NotNil(t, sub.Score)
	assert.Equal(t, 10.0, *sub.Score)
	require.NotNil(t, sub.Passed)
	assert.True(t, *sub.Passed)

	hist, err := f.svc.History(ctx, adminScope, sub.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 1, hist[0].Version)
	for _, c := range hist[0].Changes {
		assert.Nil(t, c.Before, c.Path)
	}
	assert.NotEmpty(t, hist[0].Changes)
}

func TestSubmitUpdateRecordsDiff(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()
	data := map[string]any{"area": "bodega", "ok": "si"}

	first, err := f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: data})
	require.NoError(t, err)

	// identical resubmission writes nothing
	same, err := f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: data})
	require.NoError(t, err)
	assert.Equal(t, first.ID, same.ID)
	assert.Equal(t, 1, same.Version)

	f.clock.advance(time.Hour)
	upd, err := f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: map[string]any{
		"area": "patio", "ok": "no", "detalle": "falta baranda",
	}})
	require.NoError(t, err)
	assert.Equal(t, first.ID, upd.ID)
	assert.Equal(t, 2, upd.Version)
	assert.Equal(t, 0.0, *upd.Score)

	entry, err := f.svc.HistoryEntry(ctx, adminScope, upd.ID, 2)
	require.NoError(t, err)
	paths := map[string]bool{}
	for _, c := range entry.Changes {
		paths[c.Path] = true
	}
	assert.Equal(t, map[string]bool{"area": true, "ok": true, "detalle": true}, paths)
	assert.Equal(t, "bodega", entry.Before["area"])
	assert.Equal(t, "patio", entry.After["area"])

	_, err = f.svc.HistoryEntry(ctx, adminScope, upd.ID, 7)
	assert.ErrorIs(t, err, ErrNotFound)

	byReport, err := f.svc.GetByReport(ctx, adminScope, f.tpl.Slug, "r-1")
	require.NoError(t, err)
	assert.Equal(t, upd.ID, byReport.ID)
}

func TestSubmitStatusRules(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()
	partial := map[string]any{"area": "bodega"}

	_, err := f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: partial})
	assert.ErrorIs(t, err, ErrValidation, "completed needs every visible required field")

	_, err = f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: partial, Status: models.StatusPartial})
	assert.ErrorIs(t, err, ErrValidation, "partial is off by default")

	sub, err := f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: partial, Status: models.StatusDraft})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, sub.Status)

	// completing the draft bumps the version
	sub, err = f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: map[string]any{"area": "bodega", "ok": "si"}})
	require.NoError(t, err)
	assert.Equal(t, 2, sub.Version)

	_, err = f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: partial, Status: "archived"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-404", SubmitInput{Data: partial, Status: models.StatusDraft})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.forms.SetActive(ctx, f.tpl.ID, false)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: partial, Status: models.StatusDraft})
	assert.ErrorIs(t, err, ErrTemplateInactive)
}

func TestSubmitStatusOnlyChangeWritesNoHistory(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()
	data := map[string]any{"area": "bodega", "ok": "si"}

	draft, err := f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: data, Status: models.StatusDraft})
	require.NoError(t, err)
	require.Equal(t, models.StatusDraft, draft.Status)

	done, err := f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: data})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, done.ID)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, 1, done.Version)

	stored, err := f.svc.Get(ctx, adminScope, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)

	hist, err := f.svc.History(ctx, adminScope, done.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	for _, h := range hist {
		assert.NotEmpty(t, h.Changes, "version %d", h.Version)
	}
}

func TestDrafts(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	d, err := f.svc.SaveDraft(ctx, contractorScope, f.tpl.ID, "r-1", map[string]any{"area": "bo"})
	require.NoError(t, err)
	assert.Equal(t, f.clock.t.Add(models.DefaultDraftTTL), d.ExpiresAt)

	got, err := f.svc.Draft(ctx, contractorScope, f.tpl.ID, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "bo", got.Data["area"])

	_, err = f.svc.Draft(ctx, adminScope, f.tpl.ID, "r-1")
	assert.ErrorIs(t, err, ErrNotFound, "drafts are per user")

	f.clock.advance(models.DefaultDraftTTL + time.Second)
	_, err = f.svc.Draft(ctx, contractorScope, f.tpl.ID, "r-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.SaveDraft(ctx, contractorScope, f.tpl.ID, "r-1", map[string]any{"area": "bodega"})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, contractorScope, f.tpl.ID, "r-1", SubmitInput{Data: map[string]any{"area": "bodega", "ok": "si"}})
	require.NoError(t, err)
	_, err = f.svc.Draft(ctx, contractorScope, f.tpl.ID, "r-1")
	assert.ErrorIs(t, err, ErrNotFound, "submit removes the caller's draft")

	_, err = f.svc.SaveDraft(ctx, contractorScope, f.tpl.ID, "r-1", map[string]any{"area": "x"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DiscardDraft(ctx, contractorScope, f.tpl.ID, "r-1"))
	_, err = f.svc.Draft(ctx, contractorScope, f.tpl.ID, "r-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearch(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, adminScope, f.tpl.ID, "r-1", SubmitInput{Data: map[string]any{"area": "bodega", "ok": "si"}})
	require.NoError(t, err)
	search := NewSearchService(f.svc)

	res, err := search.Search(ctx, adminScope, SearchRequest{FormID: f.tpl.Slug})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 20, res.Limit)

	res, err = search.Search(ctx, adminScope, SearchRequest{FormID: f.tpl.ID, Status: models.StatusDraft})
	require.NoError(t, err)
	assert.Zero(t, res.Total)

	_, err = search.Search(ctx, adminScope, SearchRequest{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = search.Search(ctx, adminScope, SearchRequest{FormID: f.tpl.ID, Filters: map[string]FilterDescriptor{"a;drop": {Value: 1}}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBuildFilter(t *testing.T) {
	f, err := buildFilter(SearchRequest{FormID: "t", Filters: map[string]FilterDescriptor{
		"area":          {Value: "bodega"},
		"costs.total":   {Min: 10.0, Max: "99.5"},
		"incident.hurt": {Value: true},
	}})
	require.NoError(t, err)
	assert.Equal(t, repository.SubmissionFilter{
		TemplateID: "t",
		Equals:     map[string]any{"area": "bodega", "incident.hurt": true},
		Min:        map[string]float64{"costs.total": 10},
		Max:        map[string]float64{"costs.total": 99.5},
	}, f)

	_, err = buildFilter(SearchRequest{FormID: "t", Filters: map[string]FilterDescriptor{"x": {Min: "lots"}}})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = buildFilter(SearchRequest{FormID: "t", Filters: map[string]FilterDescriptor{"x": {}}})
	assert.ErrorIs(t, err, ErrValidation)
}
