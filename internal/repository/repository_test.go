package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larscolombia/kapa/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func TestWhereBuilder(t *testing.T) {
	w := &where{}
	w.add("a = ?", 1)
	w.add("active")
	w.add("b BETWEEN ? AND ?", 2, 3)
	limit := w.next(10)

	assert.Equal(t, " WHERE a = $1 AND active AND b BETWEEN $2 AND $3", w.String())
	assert.Equal(t, "$4", limit)
	assert.Equal(t, []any{1, 2, 3, 10}, w.args)
}

func TestProjectScope(t *testing.T) {
	clause, args := projectScope("p", models.Scope{Role: models.RoleAdmin})
	assert.Empty(t, clause)
	assert.Nil(t, args)

	clause, args = projectScope("p", models.Scope{Role: models.RoleClient, ClientID: "c1"})
	assert.Equal(t, "p.client_id = ?", clause)
	assert.Equal(t, []any{"c1"}, args)

	clause, _ = projectScope("p", models.Scope{Role: models.RoleContractor, ContractorID: "k1"})
	assert.Contains(t, clause, "spc.contractor_id = ?")

	clause, _ = projectScope("p", models.Scope{Role: "ghost"})
	assert.Equal(t, "FALSE", clause)
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Limit: 20}, Page{}.normalize())
	assert.Equal(t, Page{Limit: 200, Offset: 0}, Page{Limit: 1000, Offset: -5}.normalize())
}

func TestMapErr(t *testing.T) {
	other := errors.New("x")
	assert.Same(t, other, mapErr(other))
	assert.Nil(t, mapErr(nil))
	assert.ErrorIs(t, mapErr(&pq.Error{Code: "23505", Constraint: "users_email_key"}), ErrDuplicate)
}

func TestUserFindByEmailNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("admin@kapa.local").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByEmail(context.Background(), "  Admin@Kapa.local ")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err := repo.Create(context.Background(), &models.User{Email: "a@b.c", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseWithTokenConsumed(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIlvRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE ilv_close_tokens SET used_at").
		WithArgs("tok-1", sqlmock.AnyArg(), "10.0.0.1", "curl").
		WillReturnRows(sqlmock.NewRows([]string{"report_id"}))
	mock.ExpectRollback()

	err := repo.CloseWithToken(context.Background(), "tok-1", "10.0.0.1", "curl", CloseInfo{ClosedAt: time.Now()})
	assert.ErrorIs(t, err, ErrTokenConsumed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseWithTokenClosesReport(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIlvRepo(db)
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE ilv_close_tokens SET used_at").
		WithArgs("tok-1", now, "10.0.0.1", "curl").
		WillReturnRows(sqlmock.NewRows([]string{"report_id"}).AddRow("rep-1"))
	mock.ExpectExec("UPDATE ilv_reports SET estado = 'cerrado'").
		WithArgs("rep-1", now, "Ana", "ana@example.com", "done").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CloseWithToken(context.Background(), "tok-1", "10.0.0.1", "curl",
		CloseInfo{ClosedAt: now, Name: "Ana", Email: "ana@example.com", Notes: "done"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseWithTokenReportAlreadyClosed(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIlvRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE ilv_close_tokens SET used_at").
		WillReturnRows(sqlmock.NewRows([]string{"report_id"}).AddRow("rep-1"))
	mock.ExpectExec("UPDATE ilv_reports SET estado = 'cerrado'").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CloseWithToken(context.Background(), "tok-1", "", "", CloseInfo{ClosedAt: time.Now()})
	assert.ErrorIs(t, err, ErrReportNotOpen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAttachmentLocksReport(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIlvRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT estado FROM ilv_reports WHERE id = $1 FOR UPDATE")).
		WithArgs("rep-1").
		WillReturnRows(sqlmock.NewRows([]string{"estado"}).AddRow("abierto"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM ilv_attachments WHERE report_id = $1")).
		WithArgs("rep-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec("INSERT INTO ilv_attachments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a := &models.IlvAttachment{ReportID: "rep-1", BlobKey: "ilv/rep-1/x.png", SHA256: "ab"}
	require.NoError(t, repo.CreateAttachment(context.Background(), a, 5))
	assert.NotEmpty(t, a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAttachmentRejects(t *testing.T) {
	tests := []struct {
		name   string
		estado string
		count  int
		want   error
	}{
		{"closed report", "cerrado", 0, ErrReportNotOpen},
		{"limit reached", "abierto", 5, ErrAttachmentLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewIlvRepo(db)

			mock.ExpectBegin()
			mock.ExpectQuery("SELECT estado FROM ilv_reports").
				WillReturnRows(sqlmock.NewRows([]string{"estado"}).AddRow(tt.estado))
			if tt.estado == "abierto" {
				mock.ExpectQuery("SELECT count").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.count))
			}
			mock.ExpectRollback()

			err := repo.CreateAttachment(context.Background(), &models.IlvAttachment{ReportID: "rep-1"}, 5)
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteAttachmentOnClosedReport(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIlvRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT estado FROM ilv_reports").
		WillReturnRows(sqlmock.NewRows([]string{"estado"}).AddRow("cerrado"))
	mock.ExpectRollback()

	err := repo.DeleteAttachment(context.Background(), "rep-1", "att-1")
	assert.ErrorIs(t, err, ErrReportNotOpen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionUpsertFirstInsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubmissionRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM form_submissions WHERE template_id = $1 AND report_id = $2 FOR UPDATE")).
		WithArgs("tpl", "rep").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO form_submissions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO form_submission_history").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var sawExisting bool
	sub, err := repo.Upsert(context.Background(), "tpl", "rep", func(existing *models.FormSubmission) (*models.FormSubmission, *models.FormSubmissionHistory, error) {
		sawExisting = existing != nil
		return &models.FormSubmission{TemplateID: "tpl", ReportID: "rep", Version: 1, Status: models.StatusCompleted},
			&models.FormSubmissionHistory{Version: 1, Status: models.StatusCompleted}, nil
	})
	require.NoError(t, err)
	assert.False(t, sawExisting)
	assert.NotEmpty(t, sub.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionUpsertCallbackError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubmissionRepo(db)
	boom := errors.New("invalid data")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM form_submissions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.Upsert(context.Background(), "tpl", "rep", func(*models.FormSubmission) (*models.FormSubmission, *models.FormSubmissionHistory, error) {
		return nil, nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionFilterWhere(t *testing.T) {
	w, err := SubmissionFilter{
		TemplateID: "tpl",
		Equals:     map[string]any{"site.zone": "north"},
		Min:        map[string]float64{"score": 3},
	}.where()
	require.NoError(t, err)
	s := w.String()
	assert.Contains(t, s, "s.template_id = $1")
	assert.Contains(t, s, "s.data @> $2::jsonb")
	assert.Equal(t, `{"site":{"zone":"north"}}`, w.args[1])
	assert.Contains(t, s, "(s.data #>> $4)::numeric >= $5")
}

func TestDeleteExpiredDrafts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubmissionRepo(db)
	now := time.Now()

	mock.ExpectExec("DELETE FROM form_drafts WHERE expires_at < \\$1").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpiredDrafts(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
