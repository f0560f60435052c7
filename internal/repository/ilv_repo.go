package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

var (
	// ErrTokenConsumed is returned when a close token was used or revoked
	// between the check and the update.
	ErrTokenConsumed = errors.New("close token already consumed")
	// ErrReportNotOpen is returned when changing a report that is not abierto.
	ErrReportNotOpen = errors.New("report is not open")
	// ErrAttachmentLimit is returned when a report already holds the maximum
	// number of attachments.
	ErrAttachmentLimit = errors.New("attachment limit reached")
)

type IlvRepo struct {
	db *sqlx.DB
}

func NewIlvRepo(db *sqlx.DB) *IlvRepo {
	return &IlvRepo{db: db}
}

const reportSelect = `SELECT r.*, p.client_id FROM ilv_reports r JOIN projects p ON p.id = r.project_id`

// Create assigns the next sequential number for the tipo and inserts the
// report in one transaction.
func (r *IlvRepo) Create(ctx context.Context, rep *models.IlvReport) error {
	rep.ID = newID()
	now := time.Now().UTC()
	rep.CreatedAt, rep.UpdatedAt = now, now
	rep.Estado = models.EstadoAbierto
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var seq int64
		err := tx.GetContext(ctx, &seq, `
			INSERT INTO ilv_sequences (tipo, last) VALUES ($1, 1)
			ON CONFLICT (tipo) DO UPDATE SET last = ilv_sequences.last + 1
			RETURNING last`, rep.Tipo)
		if err != nil {
			return err
		}
		rep.Number = models.FormatReportNumber(rep.Tipo, seq)
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO ilv_reports (id, number, tipo, estado, project_id, contractor_id, reporter_id, title,
				description, event_date, location, severity, responsible_email, created_at, updated_at)
			VALUES (:id, :number, :tipo, :estado, :project_id, :contractor_id, :reporter_id, :title,
				:description, :event_date, :location, :severity, :responsible_email, :created_at, :updated_at)`, rep)
		return mapErr(err)
	})
}

func (r *IlvRepo) Get(ctx context.Context, id string) (*models.IlvReport, error) {
	var rep models.IlvReport
	if err := r.db.GetContext(ctx, &rep, reportSelect+` WHERE r.id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &rep, nil
}

type ReportFilter struct {
	Tipo         models.IlvTipo
	Estado       models.IlvEstado
	ProjectID    string
	ContractorID string
	From         *time.Time
	To           *time.Time
}

func (f ReportFilter) apply(w *where, scope models.Scope) {
	scopeProjects(w, "p", scope)
	if f.Tipo != "" {
		w.add("r.tipo = ?", f.Tipo)
	}
	if f.Estado != "" {
		w.add("r.estado = ?", f.Estado)
	}
	if f.ProjectID != "" {
		w.add("r.project_id = ?", f.ProjectID)
	}
	if f.ContractorID != "" {
		w.add("r.contractor_id = ?", f.ContractorID)
	}
	if f.From != nil {
		w.add("r.event_date >= ?", *f.From)
	}
	if f.To != nil {
		w.add("r.event_date < ?", *f.To)
	}
}

func (r *IlvRepo) List(ctx context.Context, f ReportFilter, scope models.Scope, page Page) ([]models.IlvReport, int, error) {
	page = page.normalize()
	w := &where{}
	f.apply(w, scope)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM ilv_reports r JOIN projects p ON p.id = r.project_id`+w.String(), w.args...); err != nil {
		return nil, 0, err
	}
	q := reportSelect + w.String() + ` ORDER BY r.event_date DESC, r.number DESC LIMIT ` + w.next(page.Limit) + ` OFFSET ` + w.next(page.Offset)
	out := []models.IlvReport{}
	if err := r.db.SelectContext(ctx, &out, q, w.args...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Update rewrites the editable fields of an open report.
func (r *IlvRepo) Update(ctx context.Context, rep *models.IlvReport) error {
	rep.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE ilv_reports SET contractor_id = :contractor_id, title = :title, description = :description,
			event_date = :event_date, location = :location, severity = :severity,
			responsible_email = :responsible_email, updated_at = :updated_at
		WHERE id = :id AND estado = 'abierto'`, rep)
	if err := expectOne(res, err); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrReportNotOpen
		}
		return err
	}
	return nil
}

type CloseInfo struct {
	ClosedAt time.Time
	Name     string
	Email    string
	Notes    string
}

// Close marks an open report as cerrado and revokes any close link still
// outstanding for it.
func (r *IlvRepo) Close(ctx context.Context, id string, info CloseInfo) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := closeReport(ctx, tx, id, info); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE ilv_close_tokens SET revoked_at = $2
			WHERE report_id = $1 AND used_at IS NULL AND revoked_at IS NULL`, id, info.ClosedAt)
		return err
	})
}

// CloseWithToken consumes the close token and closes its report
// atomically. The token update only matches rows that are still unused
// and unrevoked, so concurrent uses of the same token yield exactly one
// success.
func (r *IlvRepo) CloseWithToken(ctx context.Context, tokenID, ip, userAgent string, info CloseInfo) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var reportID string
		err := tx.GetContext(ctx, &reportID, `
			UPDATE ilv_close_tokens SET used_at = $2, used_ip = $3, used_user_agent = $4
			WHERE id = $1 AND used_at IS NULL AND revoked_at IS NULL
			RETURNING report_id`, tokenID, info.ClosedAt, ip, userAgent)
		if err != nil {
			if errors.Is(mapErr(err), ErrNotFound) {
				return ErrTokenConsumed
			}
			return err
		}
		return closeReport(ctx, tx, reportID, info)
	})
}

func closeReport(ctx context.Context, ex sqlx.ExecerContext, id string, info CloseInfo) error {
	res, err := ex.ExecContext(ctx, `
		UPDATE ilv_reports SET estado = 'cerrado', closed_at = $2, closed_by_name = $3,
			closed_by_email = $4, close_notes = $5, updated_at = $2
		WHERE id = $1 AND estado = 'abierto'`, id, info.ClosedAt, info.Name, info.Email, info.Notes)
	if err := expectOne(res, err); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrReportNotOpen
		}
		return err
	}
	return nil
}

// Reopen clears the closing data of a cerrado report.
func (r *IlvRepo) Reopen(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ilv_reports SET estado = 'abierto', closed_at = NULL, closed_by_name = '',
			closed_by_email = '', close_notes = '', updated_at = now()
		WHERE id = $1 AND estado = 'cerrado'`, id)
	return expectOne(res, err)
}

func (r *IlvRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ilv_reports WHERE id = $1`, id)
	return expectOne(res, err)
}

func (r *IlvRepo) Stats(ctx context.Context, f ReportFilter, scope models.Scope) ([]models.IlvStat, error) {
	w := &where{}
	f.apply(w, scope)
	out := []models.IlvStat{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT r.tipo, r.estado, count(*) AS count
		FROM ilv_reports r JOIN projects p ON p.id = r.project_id`+w.String()+`
		GROUP BY r.tipo, r.estado ORDER BY r.tipo, r.estado`, w.args...)
	return out, err
}

func (r *IlvRepo) Fields(ctx context.Context, reportID string) ([]models.IlvReportField, error) {
	out := []models.IlvReportField{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM ilv_report_fields WHERE report_id = $1 ORDER BY key`, reportID)
	return out, err
}

// SetFields upserts the given keys; an empty value deletes the key.
func (r *IlvRepo) SetFields(ctx context.Context, reportID string, fields map[string]string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for k, v := range fields {
			var err error
			if v == "" {
				_, err = tx.ExecContext(ctx, `DELETE FROM ilv_report_fields WHERE report_id = $1 AND key = $2`, reportID, k)
			} else {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO ilv_report_fields (report_id, key, value, updated_at) VALUES ($1, $2, $3, now())
					ON CONFLICT (report_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
					reportID, k, v)
			}
			if err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE ilv_reports SET updated_at = now() WHERE id = $1`, reportID)
		return err
	})
}

// lockOpen locks the report row and fails unless it is abierto.
func lockOpen(ctx context.Context, tx *sqlx.Tx, reportID string) error {
	var estado models.IlvEstado
	if err := tx.GetContext(ctx, &estado, `SELECT estado FROM ilv_reports WHERE id = $1 FOR UPDATE`, reportID); err != nil {
		return mapErr(err)
	}
	if estado != models.EstadoAbierto {
		return ErrReportNotOpen
	}
	return nil
}

// CreateAttachment inserts an attachment while the report row is locked, so
// the open check and the per-report limit hold under concurrent uploads.
func (r *IlvRepo) CreateAttachment(ctx context.Context, a *models.IlvAttachment, limit int) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockOpen(ctx, tx, a.ReportID); err != nil {
			return err
		}
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT count(*) FROM ilv_attachments WHERE report_id = $1`, a.ReportID); err != nil {
			return err
		}
		if n >= limit {
			return ErrAttachmentLimit
		}
		a.ID = newID()
		a.CreatedAt = time.Now().UTC()
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO ilv_attachments (id, report_id, blob_key, file_name, content_type, size, sha256, uploaded_by, created_at)
			VALUES (:id, :report_id, :blob_key, :file_name, :content_type, :size, :sha256, :uploaded_by, :created_at)`, a)
		return mapErr(err)
	})
}

func (r *IlvRepo) Attachments(ctx context.Context, reportID string) ([]models.IlvAttachment, error) {
	out := []models.IlvAttachment{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM ilv_attachments WHERE report_id = $1 ORDER BY created_at`, reportID)
	return out, err
}

func (r *IlvRepo) Attachment(ctx context.Context, reportID, id string) (*models.IlvAttachment, error) {
	var a models.IlvAttachment
	if err := r.db.GetContext(ctx, &a, `SELECT * FROM ilv_attachments WHERE report_id = $1 AND id = $2`, reportID, id); err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (r *IlvRepo) AttachmentByHash(ctx context.Context, reportID, sha string) (*models.IlvAttachment, error) {
	var a models.IlvAttachment
	if err := r.db.GetContext(ctx, &a, `SELECT * FROM ilv_attachments WHERE report_id = $1 AND sha256 = $2`, reportID, sha); err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (r *IlvRepo) DeleteAttachment(ctx context.Context, reportID, id string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockOpen(ctx, tx, reportID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM ilv_attachments WHERE report_id = $1 AND id = $2`, reportID, id)
		return expectOne(res, err)
	})
}

// CreateCloseToken revokes every outstanding token of the report and
// stores the new one.
func (r *IlvRepo) CreateCloseToken(ctx context.Context, t *models.IlvCloseToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE ilv_close_tokens SET revoked_at = $2
			WHERE report_id = $1 AND used_at IS NULL AND revoked_at IS NULL`, t.ReportID, t.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO ilv_close_tokens (id, report_id, expires_at, created_by, created_at)
			VALUES (:id, :report_id, :expires_at, :created_by, :created_at)`, t)
		return mapErr(err)
	})
}

func (r *IlvRepo) CloseToken(ctx context.Context, id string) (*models.IlvCloseToken, error) {
	var t models.IlvCloseToken
	if err := r.db.GetContext(ctx, &t, `SELECT * FROM ilv_close_tokens WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *IlvRepo) CloseTokens(ctx context.Context, reportID string) ([]models.IlvCloseToken, error) {
	out := []models.IlvCloseToken{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM ilv_close_tokens WHERE report_id = $1 ORDER BY created_at DESC`, reportID)
	return out, err
}

// PurgeCloseTokens deletes tokens that expired before the cutoff.
func (r *IlvRepo) PurgeCloseTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ilv_close_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
