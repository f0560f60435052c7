package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

// FileRepo backs the general document repository.
type FileRepo struct {
	db *sqlx.DB
}

func NewFileRepo(db *sqlx.DB) *FileRepo {
	return &FileRepo{db: db}
}

func (r *FileRepo) Create(ctx context.Context, f *models.File) error {
	if f.ID == "" {
		f.ID = newID()
	}
	f.CreatedAt = time.Now().UTC()
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO files (id, file_name, content_type, size, blob_key, project_id, submission_id, uploaded_by, created_at)
		VALUES (:id, :file_name, :content_type, :size, :blob_key, :project_id, :submission_id, :uploaded_by, :created_at)`, f)
	return mapErr(err)
}

func (r *FileRepo) Get(ctx context.Context, id string) (*models.File, error) {
	var f models.File
	if err := r.db.GetContext(ctx, &f, `SELECT * FROM files WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &f, nil
}

type FileFilter struct {
	ProjectID    string
	SubmissionID string
}

// List returns files visible to the scope. Files without a project are
// visible to admins and to their uploader.
func (r *FileRepo) List(ctx context.Context, f FileFilter, scope models.Scope, page Page) ([]models.File, int, error) {
	page = page.normalize()
	w := &where{}
	if f.ProjectID != "" {
		w.add("f.project_id = ?", f.ProjectID)
	}
	if f.SubmissionID != "" {
		w.add("f.submission_id = ?", f.SubmissionID)
	}
	if clause, args := projectScope("p", scope); clause != "" {
		w.add("(f.uploaded_by = ? OR EXISTS (SELECT 1 FROM projects p WHERE p.id = f.project_id AND "+clause+"))",
			append([]any{scope.UserID}, args...)...)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM files f`+w.String(), w.args...); err != nil {
		return nil, 0, err
	}
	q := `SELECT f.* FROM files f` + w.String() + ` ORDER BY f.created_at DESC LIMIT ` + w.next(page.Limit) + ` OFFSET ` + w.next(page.Offset)
	out := []models.File{}
	if err := r.db.SelectContext(ctx, &out, q, w.args...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *FileRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	return expectOne(res, err)
}
