package models

import "time"

// File is an entry of the general document repository, independent of the
// compliance checklist.
type File struct {
	ID           string    `db:"id" json:"id"`
	FileName     string    `db:"file_name" json:"fileName"`
	ContentType  string    `db:"content_type" json:"contentType"`
	Size         int64     `db:"size" json:"size"`
	BlobKey      string    `db:"blob_key" json:"-"`
	ProjectID    *string   `db:"project_id" json:"projectId,omitempty"`
	SubmissionID *string   `db:"submission_id" json:"submissionId,omitempty"`
	UploadedBy   string    `db:"uploaded_by" json:"uploadedBy"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
