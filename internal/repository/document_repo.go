package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

// DocumentRepo stores compliance checklist documents.
type DocumentRepo struct {
	db *sqlx.DB
}

func NewDocumentRepo(db *sqlx.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentSelect = `SELECT d.*, s.name AS subcriterion_name
	FROM documents d JOIN subcriteria s ON s.id = d.subcriterion_id`

// EnsureChecklist creates a not_submitted document for every subcriterion
// that does not have one yet for the assignment (and employee). It
// returns the number of rows created.
func (r *DocumentRepo) EnsureChecklist(ctx context.Context, projectContractorID string, employeeID *string, subcriterionIDs []string) (int, error) {
	created := 0
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, subID := range subcriterionIDs {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO documents (id, project_contractor_id, subcriterion_id, employee_id, state)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT DO NOTHING`,
				newID(), projectContractorID, subID, employeeID, models.DocNotSubmitted)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			created += int(n)
		}
		return nil
	})
	return created, err
}

func (r *DocumentRepo) Get(ctx context.Context, id string) (*models.Document, error) {
	var d models.Document
	if err := r.db.GetContext(ctx, &d, documentSelect+` WHERE d.id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

type DocumentFilter struct {
	State      models.DocumentState
	EmployeeID string
}

func (r *DocumentRepo) ListByAssignment(ctx context.Context, projectContractorID string, f DocumentFilter) ([]models.Document, error) {
	w := &where{}
	w.add("d.project_contractor_id = ?", projectContractorID)
	if f.State != "" {
		w.add("d.state = ?", f.State)
	}
	if f.EmployeeID != "" {
		w.add("d.employee_id = ?", f.EmployeeID)
	}
	out := []models.Document{}
	err := r.db.SelectContext(ctx, &out, documentSelect+w.String()+` ORDER BY s.sort_order, s.name, d.employee_id NULLS FIRST`, w.args...)
	return out, err
}

// Save writes the mutable columns of a document.
func (r *DocumentRepo) Save(ctx context.Context, d *models.Document) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE documents SET state = :state, blob_key = :blob_key, file_name = :file_name,
			content_type = :content_type, size = :size, valid_from = :valid_from,
			valid_until = :valid_until, review_comment = :review_comment,
			reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, updated_at = :updated_at
		WHERE id = :id`, d)
	return expectOne(res, err)
}

// Progress counts completed (approved or not applicable) and total
// documents of an assignment.
func (r *DocumentRepo) Progress(ctx context.Context, projectContractorID string) (done, total int, err error) {
	var row struct {
		Done  int `db:"done"`
		Total int `db:"total"`
	}
	err = r.db.GetContext(ctx, &row, `
		SELECT count(*) FILTER (WHERE state IN ($2, $3)) AS done, count(*) AS total
		FROM documents WHERE project_contractor_id = $1`,
		projectContractorID, models.DocApproved, models.DocNotApplicable)
	return row.Done, row.Total, err
}

type StateCount struct {
	State models.DocumentState `db:"state" json:"state"`
	Count int                  `db:"count" json:"count"`
}

func (r *DocumentRepo) CountByState(ctx context.Context, scope models.Scope) ([]StateCount, error) {
	w := &where{}
	scopeProjects(w, "p", scope)
	if scope.Role == models.RoleContractor {
		w.add("pc.contractor_id = ?", scope.ContractorID)
	}
	out := []StateCount{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT d.state, count(*) AS count FROM documents d
		JOIN project_contractors pc ON pc.id = d.project_contractor_id
		JOIN projects p ON p.id = pc.project_id`+w.String()+`
		GROUP BY d.state ORDER BY d.state`, w.args...)
	return out, err
}
