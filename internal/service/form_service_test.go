package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larscolombia/kapa/internal/formschema"
	"github.com/larscolombia/kapa/internal/models"
)

func scorePtr(f float64) *float64 { return &f }

func checklistInput() FormInput {
	return FormInput{
		Name: "Inspección de Andamios",
		Tipo: string(models.TipoHazardID),
		Schema: formschema.Schema{Fields: []formschema.Field{
			{Key: "area", Type: formschema.TypeText, Label: "Area", Labels: map[string]string{"es": "Área"}, Required: true},
			{Key: "ok", Type: formschema.TypeRadio, Required: true, Options: []formschema.Option{
				{Value: "si", Label: "Yes", Labels: map[string]string{"es": "Sí"}, Score: scorePtr(10)},
				{Value: "no", Label: "No", Score: scorePtr(0)},
			}},
			{Key: "detalle", Type: formschema.TypeTextarea, Required: true,
				VisibleWhen: &formschema.Condition{Field: "ok", Operator: formschema.OpEq, Value: "no"}},
			{Key: "cantidad", Type: formschema.TypeNumber},
			{Key: "doble", Type: formschema.TypeFormula, Formula: "cantidad * 2"},
		}},
		Settings: formschema.Settings{
			Scoring:         formschema.ScoringSettings{Enabled: true, MaxScore: 10, PassScore: 5},
			Languages:       []string{"es", "en"},
			DefaultLanguage: "es",
		},
	}
}

func TestFormCreate(t *testing.T) {
	svc := NewFormService(newFakeForms(), newFakeSubs())
	ctx := context.Background()

	tpl, err := svc.Create(ctx, "u-admin", checklistInput())
	require.NoError(t, err)
	assert.Equal(t, "inspeccion-de-andamios", tpl.Slug)
	assert.Equal(t, 1, tpl.Version)
	assert.True(t, tpl.Active)

	bySlug, err := svc.Get(ctx, tpl.Slug)
	require.NoError(t, err)
	assert.Equal(t, tpl.ID, bySlug.ID)

	_, err = svc.Create(ctx, "u-admin", checklistInput())
	assert.ErrorIs(t, err, ErrConflict)

	versions, err := svc.Versions(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"Inspección de andamios", "inspeccion-de-andamios"},
		{"  Señalización / Áreas críticas ", "senalizacion-areas-criticas"},
		{"ÜBER Prüfung 2026", "uber-prufung-2026"},
		{"Permiso_de_trabajo", "permiso-de-trabajo"},
		{"¿?", "form"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, generateSlug(tt.name), tt.name)
	}
}

func TestFormCreateRejectsBadSchema(t *testing.T) {
	svc := NewFormService(newFakeForms(), newFakeSubs())
	in := checklistInput()
	in.Schema.Fields = append(in.Schema.Fields, formschema.Field{Key: "area", Type: formschema.TypeText})
	in.Settings.DefaultLanguage = "pt"

	_, err := svc.Create(context.Background(), "u-admin", in)
	require.ErrorIs(t, err, ErrValidation)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	details, ok := ve.Details.(formschema.ValidationErrors)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(details), 2)

	in = checklistInput()
	in.Tipo = "audit"
	_, err = svc.Create(context.Background(), "u-admin", in)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFormUpdateVersioning(t *testing.T) {
	forms := newFakeForms()
	svc := NewFormService(forms, newFakeSubs())
	ctx := context.Background()
	tpl, err := svc.Create(ctx, "u-admin", checklistInput())
	require.NoError(t, err)

	in := checklistInput()
	in.Name = "Andamios v2"
	in.Description = "solo texto"
	same, err := svc.Update(ctx, tpl.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 1, same.Version, "metadata edits keep the version")

	in.Schema.Fields[0].Label = "Zona"
	bumped, err := svc.Update(ctx, tpl.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 2, bumped.Version)

	in.Settings.AllowPartial = true
	bumped, err = svc.Update(ctx, tpl.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 3, bumped.Version)

	v1, err := svc.GetVersion(ctx, tpl.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Area", v1.Schema.Fields[0].Label)
	assert.False(t, v1.Settings.AllowPartial)

	_, err = svc.GetVersion(ctx, tpl.ID, 9)
	assert.ErrorIs(t, err, ErrNotFound)

	versions, err := svc.Versions(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 3)
}

func TestFormDeleteInUse(t *testing.T) {
	subs := newFakeSubs()
	svc := NewFormService(newFakeForms(), subs)
	ctx := context.Background()
	tpl, err := svc.Create(ctx, "u-admin", checklistInput())
	require.NoError(t, err)

	subs.subs["s-1"] = &models.FormSubmission{ID: "s-1", TemplateID: tpl.ID, ReportID: "r-1"}
	assert.ErrorIs(t, svc.Delete(ctx, tpl.ID), ErrTemplateInUse)

	off, err := svc.SetActive(ctx, tpl.ID, false)
	require.NoError(t, err)
	assert.False(t, off.Active)

	delete(subs.subs, "s-1")
	require.NoError(t, svc.Delete(ctx, tpl.ID))
	_, err = svc.Get(ctx, tpl.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFormRender(t *testing.T) {
	svc := NewFormService(newFakeForms(), newFakeSubs())
	ctx := context.Background()
	tpl, err := svc.Create(ctx, "u-admin", checklistInput())
	require.NoError(t, err)

	es, err := svc.Render(ctx, tpl.ID, 0, "")
	require.NoError(t, err)
	assert.Equal(t, "Área", es.Schema.Fields[0].Label)
	assert.Equal(t, "Sí", es.Schema.Fields[1].Options[0].Label)

	// no english label: falls back to the default language, then the base
	en, err := svc.Render(ctx, tpl.ID, 0, "en")
	require.NoError(t, err)
	assert.Equal(t, "Área", en.Schema.Fields[0].Label)
	assert.Equal(t, "No", en.Schema.Fields[1].Options[1].Label)

	stored, err := svc.Get(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Area", stored.Schema.Fields[0].Label)
}
