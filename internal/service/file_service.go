package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
)

// MaxFileSize bounds uploads to the document repository.
const MaxFileSize = 12 << 20

// FileService is the general document repository.
type FileService struct {
	files    FileStore
	projects ProjectStore
	blobs    BlobStore
}

func NewFileService(files FileStore, projects ProjectStore, blobs BlobStore) *FileService {
	return &FileService{files: files, projects: projects, blobs: blobs}
}

func (s *FileService) Upload(ctx context.Context, scope models.Scope, in FileUpload, projectID, submissionID string) (*models.File, error) {
	if len(in.Data) == 0 {
		return nil, invalid("file data is empty")
	}
	if len(in.Data) > MaxFileSize {
		return nil, fmt.Errorf("%w: max %d bytes", ErrAttachmentTooLarge, MaxFileSize)
	}
	if projectID != "" {
		ok, err := s.projects.Visible(ctx, projectID, scope)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalid("project %s is not accessible", projectID)
		}
	}

	ct := contentType(in)
	key := "repository/" + blobName(in.Name)
	if err := s.blobs.Put(ctx, key, in.Data, ct); err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	f := &models.File{
		FileName:     in.Name,
		ContentType:  ct,
		Size:         int64(len(in.Data)),
		BlobKey:      key,
		ProjectID:    models.StrPtr(projectID),
		SubmissionID: models.StrPtr(submissionID),
		UploadedBy:   scope.UserID,
	}
	if err := s.files.Create(ctx, f); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			logrus.WithError(derr).WithField("blob_key", key).Warn("delete orphan blob")
		}
		return nil, storeErr(err, "file")
	}
	logrus.WithFields(logrus.Fields{"file_id": f.ID, "size": f.Size}).Info("file uploaded")
	return f, nil
}

func (s *FileService) List(ctx context.Context, scope models.Scope, f repository.FileFilter, page repository.Page) ([]models.File, int, error) {
	return s.files.List(ctx, f, scope, page)
}

// get returns a file visible to the scope: admins, the uploader, and users
// who can see the linked project.
func (s *FileService) get(ctx context.Context, scope models.Scope, id string) (*models.File, error) {
	f, err := s.files.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "file")
	}
	if scope.IsAdmin() || f.UploadedBy == scope.UserID {
		return f, nil
	}
	if f.ProjectID != nil {
		ok, err := s.projects.Visible(ctx, *f.ProjectID, scope)
		if err != nil {
			return nil, err
		}
		if ok {
			return f, nil
		}
	}
	return nil, ErrNotFound
}

func (s *FileService) Download(ctx context.Context, scope models.Scope, id string) (*models.File, io.ReadCloser, error) {
	f, err := s.get(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, f.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("download blob: %w", err)
	}
	return f, rc, nil
}

// Delete is allowed to admins and the uploader.
func (s *FileService) Delete(ctx context.Context, scope models.Scope, id string) error {
	f, err := s.get(ctx, scope, id)
	if err != nil {
		return err
	}
	if !scope.IsAdmin() && f.UploadedBy != scope.UserID {
		return ErrForbidden
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return storeErr(err, "file")
	}
	if err := s.blobs.Delete(ctx, f.BlobKey); err != nil {
		logrus.WithError(err).WithField("blob_key", f.BlobKey).Warn("delete blob")
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// blobName prefixes a sanitised file name with a fresh uuid.
func blobName(name string) string {
	base := unsafeName.ReplaceAllString(filepath.Base(name), "_")
	if base == "" || base == "." || base == "_" {
		base = "file"
	}
	return fmt.Sprintf("%s_%s", uuid.NewString(), base)
}

// contentType trusts a specific client header, then the extension, then
// the content.
func contentType(in FileUpload) string {
	if ct := strings.TrimSpace(in.ContentType); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(in.Name))]; ok {
		return ct
	}
	return http.DetectContentType(in.Data)
}

var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".txt":  "text/plain",
	".zip":  "application/zip",
}
