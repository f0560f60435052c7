package service

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
)

// ComplianceService owns criteria, the per-assignment document checklist
// and its review workflow.
type ComplianceService struct {
	criteria    CriterionStore
	docs        DocumentStore
	contractors ContractorStore
	employees   EmployeeStore
	projects    ProjectStore
	blobs       BlobStore
	notify      *NotificationService
	now         Clock
}

func NewComplianceService(criteria CriterionStore, docs DocumentStore, contractors ContractorStore, employees EmployeeStore,
	projects ProjectStore, blobs BlobStore, notify *NotificationService) *ComplianceService {
	return &ComplianceService{
		criteria:    criteria,
		docs:        docs,
		contractors: contractors,
		employees:   employees,
		projects:    projects,
		blobs:       blobs,
		notify:      notify,
	}
}

type CriterionInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	SortOrder   int    `json:"sortOrder"`
}

type SubcriterionInput struct {
	CriterionID      string                   `json:"criterionId" validate:"required"`
	Name             string                   `json:"name" validate:"required"`
	Scope            models.SubcriterionScope `json:"scope" validate:"required,oneof=contractor employee"`
	RequiresValidity bool                     `json:"requiresValidity"`
	SortOrder        int                      `json:"sortOrder"`
}

type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

type DocumentUpload struct {
	File       FileUpload
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

type ReviewInput struct {
	State      models.DocumentState `json:"state" validate:"required"`
	Comment    string               `json:"comment"`
	ValidFrom  *time.Time           `json:"validFrom"`
	ValidUntil *time.Time           `json:"validUntil"`
}

// completion is the share of finished documents, in percent with two
// decimals.
func completion(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(done)/float64(total)*10000) / 100
}

// Criteria

func (s *ComplianceService) CreateCriterion(ctx context.Context, in CriterionInput) (*models.Criterion, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("name is required")
	}
	c := &models.Criterion{Name: strings.TrimSpace(in.Name), Description: in.Description, SortOrder: in.SortOrder}
	if err := s.criteria.Create(ctx, c); err != nil {
		return nil, storeErr(err, "criterion")
	}
	return c, nil
}

func (s *ComplianceService) ListCriteria(ctx context.Context) ([]models.Criterion, error) {
	return s.criteria.List(ctx)
}

func (s *ComplianceService) UpdateCriterion(ctx context.Context, id string, in CriterionInput) (*models.Criterion, error) {
	c, err := s.criteria.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "criterion")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("name is required")
	}
	c.Name = strings.TrimSpace(in.Name)
	c.Description = in.Description
	c.SortOrder = in.SortOrder
	if err := s.criteria.Update(ctx, c); err != nil {
		return nil, storeErr(err, "criterion")
	}
	return c, nil
}

func (s *ComplianceService) DeleteCriterion(ctx context.Context, id string) error {
	return storeErr(s.criteria.Delete(ctx, id), "criterion")
}

func (s *ComplianceService) CreateSubcriterion(ctx context.Context, in SubcriterionInput) (*models.Subcriterion, error) {
	if _, err := s.criteria.Get(ctx, in.CriterionID); err != nil {
		if err := storeErr(err, "criterion"); isNotFound(err) {
			return nil, invalid("criterion %s does not exist", in.CriterionID)
		}
		return nil, err
	}
	sub := &models.Subcriterion{CriterionID: in.CriterionID}
	if err := applySub(sub, in); err != nil {
		return nil, err
	}
	if err := s.criteria.CreateSub(ctx, sub); err != nil {
		return nil, storeErr(err, "subcriterion")
	}
	return sub, nil
}

func applySub(sub *models.Subcriterion, in SubcriterionInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name is required")
	}
	if in.Scope != models.ScopeContractor && in.Scope != models.ScopeEmployee {
		return invalid("scope must be contractor or employee")
	}
	sub.Name = strings.TrimSpace(in.Name)
	sub.Scope = in.Scope
	sub.RequiresValidity = in.RequiresValidity
	sub.SortOrder = in.SortOrder
	return nil
}

func (s *ComplianceService) ListSubcriteria(ctx context.Context, criterionID string, scope models.SubcriterionScope) ([]models.Subcriterion, error) {
	return s.criteria.ListSubs(ctx, criterionID, scope)
}

func (s *ComplianceService) UpdateSubcriterion(ctx context.Context, id string, in SubcriterionInput) (*models.Subcriterion, error) {
	sub, err := s.criteria.GetSub(ctx, id)
	if err != nil {
		return nil, storeErr(err, "subcriterion")
	}
	if in.Scope != sub.Scope && in.Scope != "" {
		// existing documents were generated for the old scope
		return nil, invalid("scope of an existing subcriterion cannot change")
	}
	in.Scope = sub.Scope
	if err := applySub(sub, in); err != nil {
		return nil, err
	}
	if err := s.criteria.UpdateSub(ctx, sub); err != nil {
		return nil, storeErr(err, "subcriterion")
	}
	return sub, nil
}

func (s *ComplianceService) DeleteSubcriterion(ctx context.Context, id string) error {
	return storeErr(s.criteria.DeleteSub(ctx, id), "subcriterion")
}

// Checklist

func subIDs(subs []models.Subcriterion) []string {
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ID)
	}
	return ids
}

// SyncChecklist makes sure an assignment has a document for every
// contractor-scope subcriterion and, per active employee, every
// employee-scope one. Existing documents are left alone.
func (s *ComplianceService) SyncChecklist(ctx context.Context, pcID string) error {
	pc, err := s.contractors.Assignment(ctx, pcID)
	if err != nil {
		return storeErr(err, "assignment")
	}
	contractorSubs, err := s.criteria.ListSubs(ctx, "", models.ScopeContractor)
	if err != nil {
		return err
	}
	created, err := s.docs.EnsureChecklist(ctx, pc.ID, nil, subIDs(contractorSubs))
	if err != nil {
		return fmt.Errorf("contractor checklist: %w", err)
	}

	employeeSubs, err := s.criteria.ListSubs(ctx, "", models.ScopeEmployee)
	if err != nil {
		return err
	}
	if len(employeeSubs) > 0 {
		emps, err := s.employees.ListByContractor(ctx, pc.ContractorID, true)
		if err != nil {
			return err
		}
		ids := subIDs(employeeSubs)
		for i := range emps {
			n, err := s.docs.EnsureChecklist(ctx, pc.ID, &emps[i].ID, ids)
			if err != nil {
				return fmt.Errorf("employee checklist: %w", err)
			}
			created += n
		}
	}
	logrus.WithFields(logrus.Fields{"project_contractor_id": pc.ID, "created": created}).Info("checklist synced")
	_, err = s.recompute(ctx, pc.ID)
	return err
}

// EmployeeChecklist creates the employee-scope documents of a new employee
// on every project its contractor works on.
func (s *ComplianceService) EmployeeChecklist(ctx context.Context, e *models.Employee) error {
	if !e.Active {
		return nil
	}
	subs, err := s.criteria.ListSubs(ctx, "", models.ScopeEmployee)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	pcs, err := s.contractors.Assignments(ctx, e.ContractorID)
	if err != nil {
		return err
	}
	ids := subIDs(subs)
	for _, pc := range pcs {
		if _, err := s.docs.EnsureChecklist(ctx, pc.ID, &e.ID, ids); err != nil {
			return fmt.Errorf("employee checklist: %w", err)
		}
		if _, err := s.recompute(ctx, pc.ID); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeContractor refreshes the completion of every assignment of a
// contractor.
func (s *ComplianceService) RecomputeContractor(ctx context.Context, contractorID string) error {
	pcs, err := s.contractors.Assignments(ctx, contractorID)
	if err != nil {
		return err
	}
	for _, pc := range pcs {
		if _, err := s.recompute(ctx, pc.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *ComplianceService) recompute(ctx context.Context, pcID string) (float64, error) {
	done, total, err := s.docs.Progress(ctx, pcID)
	if err != nil {
		return 0, fmt.Errorf("progress: %w", err)
	}
	pct := completion(done, total)
	if err := s.contractors.SetCompletion(ctx, pcID, pct); err != nil {
		return 0, storeErr(err, "assignment")
	}
	return pct, nil
}

// Documents

// assignment loads a project contractor the scope may see.
func (s *ComplianceService) assignment(ctx context.Context, scope models.Scope, pcID string) (*models.ProjectContractor, error) {
	pc, err := s.contractors.Assignment(ctx, pcID)
	if err != nil {
		return nil, storeErr(err, "assignment")
	}
	switch scope.Role {
	case models.RoleAdmin:
		return pc, nil
	case models.RoleContractor:
		if pc.ContractorID == scope.ContractorID {
			return pc, nil
		}
	case models.RoleClient:
		ok, err := s.projects.Visible(ctx, pc.ProjectID, scope)
		if err != nil {
			return nil, err
		}
		if ok {
			return pc, nil
		}
	}
	return nil, ErrNotFound
}

func (s *ComplianceService) document(ctx context.Context, scope models.Scope, id string) (*models.Document, *models.ProjectContractor, error) {
	d, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, nil, storeErr(err, "document")
	}
	pc, err := s.assignment(ctx, scope, d.ProjectContractorID)
	if err != nil {
		return nil, nil, err
	}
	return d, pc, nil
}

func (s *ComplianceService) ListDocuments(ctx context.Context, scope models.Scope, pcID string, f repository.DocumentFilter) ([]models.Document, error) {
	if _, err := s.assignment(ctx, scope, pcID); err != nil {
		return nil, err
	}
	docs, err := s.docs.ListByAssignment(ctx, pcID, f)
	if err != nil {
		return nil, err
	}
	now := s.now.now()
	for i := range docs {
		docs[i].MarkExpired(now)
	}
	return docs, nil
}

func (s *ComplianceService) GetDocument(ctx context.Context, scope models.Scope, id string) (*models.Document, error) {
	d, _, err := s.document(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	d.MarkExpired(s.now.now())
	return d, nil
}

func checkValidity(from, until *time.Time) error {
	if from != nil && until != nil && from.After(*until) {
		return invalid("validFrom must not be after validUntil")
	}
	return nil
}

// Upload attaches a file and moves the document to submitted.
func (s *ComplianceService) Upload(ctx context.Context, scope models.Scope, id string, in DocumentUpload) (*models.Document, error) {
	d, pc, err := s.document(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !scope.IsAdmin() && !(scope.Role == models.RoleContractor && scope.ContractorID == pc.ContractorID) {
		return nil, ErrForbidden
	}
	if !d.State.AcceptsUpload() {
		return nil, fmt.Errorf("%w: cannot upload while %s", ErrInvalidTransition, d.State)
	}
	if len(in.File.Data) == 0 {
		return nil, invalid("file is empty")
	}
	if err := checkValidity(in.ValidFrom, in.ValidUntil); err != nil {
		return nil, err
	}

	oldKey := d.BlobKey
	key := fmt.Sprintf("documents/%s/%s/%s", pc.ID, d.ID, blobName(in.File.Name))
	ct := contentType(in.File)
	if err := s.blobs.Put(ctx, key, in.File.Data, ct); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	d.BlobKey = key
	d.FileName = in.File.Name
	d.ContentType = ct
	d.Size = int64(len(in.File.Data))
	d.ValidFrom = in.ValidFrom
	d.ValidUntil = in.ValidUntil
	d.State = models.DocSubmitted
	d.ReviewComment = ""
	d.ReviewedBy = nil
	d.ReviewedAt = nil
	if err := s.docs.Save(ctx, d); err != nil {
		s.dropBlob(ctx, key)
		return nil, storeErr(err, "document")
	}
	if oldKey != "" {
		s.dropBlob(ctx, oldKey)
	}
	logrus.WithFields(logrus.Fields{"document_id": d.ID, "size": d.Size}).Info("document uploaded")
	if _, err := s.recompute(ctx, pc.ID); err != nil {
		return nil, err
	}
	d.MarkExpired(s.now.now())
	return d, nil
}

func (s *ComplianceService) Download(ctx context.Context, scope models.Scope, id string) (*models.Document, io.ReadCloser, error) {
	d, _, err := s.document(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	if d.BlobKey == "" {
		return nil, nil, fmt.Errorf("document file: %w", ErrNotFound)
	}
	rc, err := s.blobs.Get(ctx, d.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("read blob: %w", err)
	}
	return d, rc, nil
}

// Review decides on a submitted document.
func (s *ComplianceService) Review(ctx context.Context, scope models.Scope, id string, in ReviewInput) (*models.Document, error) {
	d, pc, err := s.document(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if d.State != models.DocSubmitted {
		return nil, fmt.Errorf("%w: only submitted documents can be reviewed", ErrInvalidTransition)
	}
	if !models.ReviewOutcome(in.State) {
		return nil, invalid("review state must be approved, rejected or for_adjustment")
	}
	comment := strings.TrimSpace(in.Comment)
	if in.State != models.DocApproved && comment == "" {
		return nil, invalid("a comment is required when the document is %s", in.State)
	}

	from, until := d.ValidFrom, d.ValidUntil
	if in.ValidFrom != nil {
		from = in.ValidFrom
	}
	if in.ValidUntil != nil {
		until = in.ValidUntil
	}
	if err := checkValidity(from, until); err != nil {
		return nil, err
	}
	if in.State == models.DocApproved {
		sub, err := s.criteria.GetSub(ctx, d.SubcriterionID)
		if err != nil {
			return nil, storeErr(err, "subcriterion")
		}
		if sub.RequiresValidity && until == nil {
			return nil, invalid("validUntil is required to approve %q", sub.Name)
		}
	}

	now := s.now.now()
	d.State = in.State
	d.ReviewComment = comment
	d.ReviewedBy = models.StrPtr(scope.UserID)
	d.ReviewedAt = &now
	d.ValidFrom = from
	d.ValidUntil = until
	if err := s.docs.Save(ctx, d); err != nil {
		return nil, storeErr(err, "document")
	}
	logrus.WithFields(logrus.Fields{"document_id": d.ID, "state": d.State, "reviewer": scope.UserID}).Info("document reviewed")
	if _, err := s.recompute(ctx, pc.ID); err != nil {
		return nil, err
	}

	if c, err := s.contractors.Get(ctx, pc.ContractorID); err == nil {
		s.notify.Notify(ctx, documentReviewedMessage(d, c.ContactEmail))
	} else {
		logrus.WithError(err).WithField("contractor_id", pc.ContractorID).Warn("review notification skipped")
	}
	d.MarkExpired(now)
	return d, nil
}

// MarkNotApplicable excludes a document from the requirements. Admin only.
func (s *ComplianceService) MarkNotApplicable(ctx context.Context, scope models.Scope, id, comment string) (*models.Document, error) {
	if !scope.IsAdmin() {
		return nil, ErrForbidden
	}
	d, pc, err := s.document(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if d.State.Complete() {
		return nil, fmt.Errorf("%w: document is %s", ErrInvalidTransition, d.State)
	}
	now := s.now.now()
	d.State = models.DocNotApplicable
	d.ReviewComment = strings.TrimSpace(comment)
	d.ReviewedBy = models.StrPtr(scope.UserID)
	d.ReviewedAt = &now
	return s.saveAndRecompute(ctx, d, pc.ID)
}

// Reset brings a not applicable document back into the checklist. Admin only.
func (s *ComplianceService) Reset(ctx context.Context, scope models.Scope, id string) (*models.Document, error) {
	if !scope.IsAdmin() {
		return nil, ErrForbidden
	}
	d, pc, err := s.document(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if d.State != models.DocNotApplicable {
		return nil, fmt.Errorf("%w: only not_applicable documents can be reset", ErrInvalidTransition)
	}
	d.State = models.DocNotSubmitted
	d.ReviewComment = ""
	d.ReviewedBy = nil
	d.ReviewedAt = nil
	return s.saveAndRecompute(ctx, d, pc.ID)
}

func (s *ComplianceService) saveAndRecompute(ctx context.Context, d *models.Document, pcID string) (*models.Document, error) {
	if err := s.docs.Save(ctx, d); err != nil {
		return nil, storeErr(err, "document")
	}
	logrus.WithFields(logrus.Fields{"document_id": d.ID, "state": d.State}).Info("document state changed")
	if _, err := s.recompute(ctx, pcID); err != nil {
		return nil, err
	}
	d.MarkExpired(s.now.now())
	return d, nil
}

func (s *ComplianceService) StateCounts(ctx context.Context, scope models.Scope) ([]repository.StateCount, error) {
	return s.docs.CountByState(ctx, scope)
}

func (s *ComplianceService) dropBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		logrus.WithError(err).WithField("blob_key", key).Warn("delete blob")
	}
}
