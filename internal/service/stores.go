package service

import (
	"context"
	"io"
	"time"

	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
)

// The interfaces below are satisfied by the repository package. Services
// depend on them so tests can run against in-memory fakes.

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, role models.Role, page repository.Page) ([]models.User, int, error)
	Update(ctx context.Context, u *models.User) error
	SetPassword(ctx context.Context, id, hash string) error
}

type AccessStore interface {
	EnsureRole(ctx context.Context, role models.RoleInfo) error
	ListRoles(ctx context.Context) ([]models.RoleInfo, error)
	RoleExists(ctx context.Context, role models.Role) (bool, error)
	Permissions(ctx context.Context, role models.Role) ([]string, error)
	HasPermission(ctx context.Context, role models.Role, perm string) (bool, error)
	Grant(ctx context.Context, role models.Role, perm string) error
	Revoke(ctx context.Context, role models.Role, perm string) error
}

type ClientStore interface {
	Create(ctx context.Context, c *models.Client) error
	Get(ctx context.Context, id string) (*models.Client, error)
	List(ctx context.Context, scope models.Scope) ([]models.Client, error)
	Update(ctx context.Context, c *models.Client) error
	Delete(ctx context.Context, id string) error
}

type ProjectStore interface {
	Create(ctx context.Context, p *models.Project) error
	Get(ctx context.Context, id string) (*models.Project, error)
	Visible(ctx context.Context, id string, scope models.Scope) (bool, error)
	List(ctx context.Context, scope models.Scope, clientID string) ([]models.Project, error)
	Update(ctx context.Context, p *models.Project) error
	Delete(ctx context.Context, id string) error
}

type ContractorStore interface {
	Create(ctx context.Context, c *models.Contractor) error
	Get(ctx context.Context, id string) (*models.Contractor, error)
	List(ctx context.Context, scope models.Scope) ([]models.Contractor, error)
	Update(ctx context.Context, c *models.Contractor) error
	Delete(ctx context.Context, id string) error
	Assign(ctx context.Context, projectID, contractorID string) (*models.ProjectContractor, error)
	Unassign(ctx context.Context, projectID, contractorID string) error
	Assignment(ctx context.Context, id string) (*models.ProjectContractor, error)
	ListByProject(ctx context.Context, projectID string) ([]models.ProjectContractor, error)
	ListByContractor(ctx context.Context, contractorID string, scope models.Scope) ([]models.ProjectContractor, error)
	Assignments(ctx context.Context, contractorID string) ([]models.ProjectContractor, error)
	SetCompletion(ctx context.Context, id string, completion float64) error
}

type EmployeeStore interface {
	Create(ctx context.Context, e *models.Employee) error
	Get(ctx context.Context, id string) (*models.Employee, error)
	ListByContractor(ctx context.Context, contractorID string, activeOnly bool) ([]models.Employee, error)
	Update(ctx context.Context, e *models.Employee) error
	Delete(ctx context.Context, id string) error
}

type CriterionStore interface {
	Create(ctx context.Context, c *models.Criterion) error
	List(ctx context.Context) ([]models.Criterion, error)
	Get(ctx context.Context, id string) (*models.Criterion, error)
	Update(ctx context.Context, c *models.Criterion) error
	Delete(ctx context.Context, id string) error
	CreateSub(ctx context.Context, s *models.Subcriterion) error
	GetSub(ctx context.Context, id string) (*models.Subcriterion, error)
	ListSubs(ctx context.Context, criterionID string, scope models.SubcriterionScope) ([]models.Subcriterion, error)
	UpdateSub(ctx context.Context, s *models.Subcriterion) error
	DeleteSub(ctx context.Context, id string) error
}

type DocumentStore interface {
	EnsureChecklist(ctx context.Context, projectContractorID string, employeeID *string, subcriterionIDs []string) (int, error)
	Get(ctx context.Context, id string) (*models.Document, error)
	ListByAssignment(ctx context.Context, projectContractorID string, f repository.DocumentFilter) ([]models.Document, error)
	Save(ctx context.Context, d *models.Document) error
	Progress(ctx context.Context, projectContractorID string) (done, total int, err error)
	CountByState(ctx context.Context, scope models.Scope) ([]repository.StateCount, error)
}

type IlvStore interface {
	Create(ctx context.Context, rep *models.IlvReport) error
	Get(ctx context.Context, id string) (*models.IlvReport, error)
	List(ctx context.Context, f repository.ReportFilter, scope models.Scope, page repository.Page) ([]models.IlvReport, int, error)
	Update(ctx context.Context, rep *models.IlvReport) error
	Close(ctx context.Context, id string, info repository.CloseInfo) error
	CloseWithToken(ctx context.Context, tokenID, ip, userAgent string, info repository.CloseInfo) error
	Reopen(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, f repository.ReportFilter, scope models.Scope) ([]models.IlvStat, error)
	Fields(ctx context.Context, reportID string) ([]models.IlvReportField, error)
	SetFields(ctx context.Context, reportID string, fields map[string]string) error
	CreateAttachment(ctx context.Context, a *models.IlvAttachment, limit int) error
	Attachments(ctx context.Context, reportID string) ([]models.IlvAttachment, error)
	Attachment(ctx context.Context, reportID, id string) (*models.IlvAttachment, error)
	AttachmentByHash(ctx context.Context, reportID, sha string) (*models.IlvAttachment, error)
	DeleteAttachment(ctx context.Context, reportID, id string) error
	CreateCloseToken(ctx context.Context, t *models.IlvCloseToken) error
	CloseToken(ctx context.Context, id string) (*models.IlvCloseToken, error)
	CloseTokens(ctx context.Context, reportID string) ([]models.IlvCloseToken, error)
}

type FormStore interface {
	Create(ctx context.Context, t *models.FormTemplate) error
	Get(ctx context.Context, id string) (*models.FormTemplate, error)
	GetBySlug(ctx context.Context, slug string) (*models.FormTemplate, error)
	List(ctx context.Context, f repository.FormFilter) ([]models.FormTemplate, error)
	Update(ctx context.Context, t *models.FormTemplate, snapshot bool) error
	Delete(ctx context.Context, id string) error
	Versions(ctx context.Context, id string) ([]models.FormTemplateVersion, error)
	Version(ctx context.Context, id string, version int) (*models.FormTemplateVersion, error)
}

type SubmissionStore interface {
	Upsert(ctx context.Context, templateID, reportID string, fn repository.UpsertFunc) (*models.FormSubmission, error)
	Get(ctx context.Context, id string) (*models.FormSubmission, error)
	GetByReport(ctx context.Context, templateID, reportID string) (*models.FormSubmission, error)
	List(ctx context.Context, f repository.SubmissionFilter, scope models.Scope, page repository.Page) ([]models.FormSubmission, int, error)
	History(ctx context.Context, submissionID string) ([]models.FormSubmissionHistory, error)
	HistoryEntry(ctx context.Context, submissionID string, version int) (*models.FormSubmissionHistory, error)
	Delete(ctx context.Context, id string) error
	CountByTemplate(ctx context.Context, templateID string) (int, error)
	SaveDraft(ctx context.Context, d *models.FormDraft) error
	Draft(ctx context.Context, templateID, reportID, userID string) (*models.FormDraft, error)
	DeleteDraft(ctx context.Context, templateID, reportID, userID string) error
}

type FileStore interface {
	Create(ctx context.Context, f *models.File) error
	Get(ctx context.Context, id string) (*models.File, error)
	List(ctx context.Context, f repository.FileFilter, scope models.Scope, page repository.Page) ([]models.File, int, error)
	Delete(ctx context.Context, id string) error
}

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, f repository.NotificationFilter, page repository.Page) ([]models.Notification, int, error)
}

type MaestroStore interface {
	Create(ctx context.Context, m *models.Maestro) error
	Get(ctx context.Context, id string) (*models.Maestro, error)
	List(ctx context.Context, category string, activeOnly bool) ([]models.Maestro, error)
	Categories(ctx context.Context) ([]string, error)
	ActiveCode(ctx context.Context, category, code string) (bool, error)
	Update(ctx context.Context, m *models.Maestro) error
}

type DashboardStore interface {
	Counters(ctx context.Context, scope models.Scope) (*repository.Counters, error)
}

// BlobStore is the object storage used for uploaded files.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type Mailer interface {
	Send(to, subject, body string) error
}

// Clock is injected so tests can pin time.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
