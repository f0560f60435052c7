package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/larscolombia/kapa/internal/models"
)

type SubmissionRepo struct {
	db *sqlx.DB
}

func NewSubmissionRepo(db *sqlx.DB) *SubmissionRepo {
	return &SubmissionRepo{db: db}
}

// UpsertFunc receives the locked current row, or nil when the template has
// no submission for the report yet, and returns the row to store plus an
// optional history entry.
type UpsertFunc func(existing *models.FormSubmission) (*models.FormSubmission, *models.FormSubmissionHistory, error)

// Upsert serialises writers of one (template, report) pair: the current
// row is read with FOR UPDATE and fn runs inside the same transaction.
// A concurrent first insert makes the loser retry against the winner's row.
func (r *SubmissionRepo) Upsert(ctx context.Context, templateID, reportID string, fn UpsertFunc) (*models.FormSubmission, error) {
	for attempt := 0; ; attempt++ {
		var out *models.FormSubmission
		err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
			var cur models.FormSubmission
			var existing *models.FormSubmission
			err := tx.GetContext(ctx, &cur, `
				SELECT * FROM form_submissions WHERE template_id = $1 AND report_id = $2 FOR UPDATE`,
				templateID, reportID)
			switch {
			case err == nil:
				existing = &cur
			case errors.Is(mapErr(err), ErrNotFound):
			default:
				return err
			}

			sub, hist, err := fn(existing)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			sub.UpdatedAt = now
			if existing == nil {
				sub.ID = newID()
				sub.CreatedAt = now
				res, err := tx.NamedExecContext(ctx, `
					INSERT INTO form_submissions (id, template_id, template_version, report_id, data, computed, score,
						max_score, passed, status, version, submitted_by, submitted_at, created_at, updated_at)
					VALUES (:id, :template_id, :template_version, :report_id, :data, :computed, :score,
						:max_score, :passed, :status, :version, :submitted_by, :submitted_at, :created_at, :updated_at)
					ON CONFLICT (template_id, report_id) DO NOTHING`, sub)
				if err != nil {
					return mapErr(err)
				}
				if n, _ := res.RowsAffected(); n == 0 {
					return ErrDuplicate
				}
			} else {
				sub.ID = existing.ID
				sub.CreatedAt = existing.CreatedAt
				_, err := tx.NamedExecContext(ctx, `
					UPDATE form_submissions SET template_version = :template_version, data = :data, computed = :computed,
						score = :score, max_score = :max_score, passed = :passed, status = :status, version = :version,
						submitted_by = :submitted_by, submitted_at = :submitted_at, updated_at = :updated_at
					WHERE id = :id`, sub)
				if err != nil {
					return err
				}
			}

			if hist != nil {
				hist.ID = newID()
				hist.SubmissionID = sub.ID
				_, err := tx.NamedExecContext(ctx, `
					INSERT INTO form_submission_history (id, submission_id, version, status, changes, before, after, changed_by, changed_at)
					VALUES (:id, :submission_id, :version, :status, :changes, :before, :after, :changed_by, :changed_at)`, hist)
				if err != nil {
					return mapErr(err)
				}
			}
			out = sub
			return nil
		})
		if errors.Is(err, ErrDuplicate) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (r *SubmissionRepo) Get(ctx context.Context, id string) (*models.FormSubmission, error) {
	var s models.FormSubmission
	if err := r.db.GetContext(ctx, &s, `SELECT * FROM form_submissions WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *SubmissionRepo) GetByReport(ctx context.Context, templateID, reportID string) (*models.FormSubmission, error) {
	var s models.FormSubmission
	err := r.db.GetContext(ctx, &s, `SELECT * FROM form_submissions WHERE template_id = $1 AND report_id = $2`, templateID, reportID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

// SubmissionFilter narrows a template's submissions. Equals matches data
// paths exactly; Min and Max bound numeric data paths. Paths are dotted.
type SubmissionFilter struct {
	TemplateID string
	ReportID   string
	Status     models.SubmissionStatus
	Equals     map[string]any
	Min        map[string]float64
	Max        map[string]float64
}

func (f SubmissionFilter) where() (*where, error) {
	w := &where{}
	if f.TemplateID != "" {
		w.add("s.template_id = ?", f.TemplateID)
	}
	if f.ReportID != "" {
		w.add("s.report_id = ?", f.ReportID)
	}
	if f.Status != "" {
		w.add("s.status = ?", f.Status)
	}
	for path, v := range f.Equals {
		doc := map[string]any{}
		nest(doc, strings.Split(path, "."), v)
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		w.add("s.data @> ?::jsonb", string(raw))
	}
	for path, v := range f.Min {
		p := pq.Array(strings.Split(path, "."))
		w.add("jsonb_typeof(s.data #> ?) = 'number' AND (s.data #>> ?)::numeric >= ?", p, p, v)
	}
	for path, v := range f.Max {
		p := pq.Array(strings.Split(path, "."))
		w.add("jsonb_typeof(s.data #> ?) = 'number' AND (s.data #>> ?)::numeric <= ?", p, p, v)
	}
	return w, nil
}

func nest(doc map[string]any, parts []string, v any) {
	if len(parts) == 1 {
		doc[parts[0]] = v
		return
	}
	child := map[string]any{}
	doc[parts[0]] = child
	nest(child, parts[1:], v)
}

// Submissions are scoped through their report's project.
const submissionFrom = ` FROM form_submissions s
	JOIN ilv_reports r ON r.id = s.report_id
	JOIN projects p ON p.id = r.project_id`

func (r *SubmissionRepo) List(ctx context.Context, f SubmissionFilter, scope models.Scope, page Page) ([]models.FormSubmission, int, error) {
	page = page.normalize()
	w, err := f.where()
	if err != nil {
		return nil, 0, err
	}
	scopeProjects(w, "p", scope)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT count(*)`+submissionFrom+w.String(), w.args...); err != nil {
		return nil, 0, err
	}
	q := `SELECT s.*` + submissionFrom + w.String() + ` ORDER BY s.submitted_at DESC LIMIT ` + w.next(page.Limit) + ` OFFSET ` + w.next(page.Offset)
	out := []models.FormSubmission{}
	if err := r.db.SelectContext(ctx, &out, q, w.args...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *SubmissionRepo) History(ctx context.Context, submissionID string) ([]models.FormSubmissionHistory, error) {
	out := []models.FormSubmissionHistory{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM form_submission_history WHERE submission_id = $1 ORDER BY version DESC`, submissionID)
	return out, err
}

func (r *SubmissionRepo) HistoryEntry(ctx context.Context, submissionID string, version int) (*models.FormSubmissionHistory, error) {
	var h models.FormSubmissionHistory
	err := r.db.GetContext(ctx, &h, `SELECT * FROM form_submission_history WHERE submission_id = $1 AND version = $2`, submissionID, version)
	if err != nil {
		return nil, mapErr(err)
	}
	return &h, nil
}

func (r *SubmissionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM form_submissions WHERE id = $1`, id)
	return expectOne(res, err)
}

func (r *SubmissionRepo) CountByTemplate(ctx context.Context, templateID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM form_submissions WHERE template_id = $1`, templateID)
	return n, err
}

// SaveDraft creates or refreshes the caller's draft.
func (r *SubmissionRepo) SaveDraft(ctx context.Context, d *models.FormDraft) error {
	if d.ID == "" {
		d.ID = newID()
	}
	return mapErr(r.db.GetContext(ctx, &d.ID, `
		INSERT INTO form_drafts (id, template_id, report_id, user_id, data, saved_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (template_id, report_id, user_id)
		DO UPDATE SET data = EXCLUDED.data, saved_at = EXCLUDED.saved_at, expires_at = EXCLUDED.expires_at
		RETURNING id`, d.ID, d.TemplateID, d.ReportID, d.UserID, d.Data, d.SavedAt, d.ExpiresAt))
}

func (r *SubmissionRepo) Draft(ctx context.Context, templateID, reportID, userID string) (*models.FormDraft, error) {
	var d models.FormDraft
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM form_drafts WHERE template_id = $1 AND report_id = $2 AND user_id = $3`,
		templateID, reportID, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (r *SubmissionRepo) DeleteDraft(ctx context.Context, templateID, reportID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM form_drafts WHERE template_id = $1 AND report_id = $2 AND user_id = $3`,
		templateID, reportID, userID)
	return err
}

// DeleteExpiredDrafts removes drafts whose expiry is before now.
func (r *SubmissionRepo) DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM form_drafts WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
