package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/auth"
	"github.com/larscolombia/kapa/internal/metrics"
	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/realtime"
	"github.com/larscolombia/kapa/internal/report"
	"github.com/larscolombia/kapa/internal/repository"
)

// Publisher receives report events for websocket subscribers.
type Publisher interface {
	Publish(ev realtime.Event)
}

type PDFRenderer interface {
	Render(w io.Writer, d report.Data) error
}

type IlvDeps struct {
	Reports     IlvStore
	Projects    ProjectStore
	Maestros    MaestroStore
	Users       UserStore
	Submissions SubmissionStore
	Blobs       BlobStore
	Signer      *auth.CloseSigner
	Notify      *NotificationService
	Events      Publisher
	Renderer    PDFRenderer
	TokenTTL    time.Duration
	BaseURL     string
	Now         Clock
}

// IlvService runs the ILV report workflow: creation, edits while open,
// attachments, close links and closing.
type IlvService struct {
	IlvDeps
}

func NewIlvService(d IlvDeps) *IlvService {
	if d.TokenTTL <= 0 {
		d.TokenTTL = 72 * time.Hour
	}
	return &IlvService{IlvDeps: d}
}

type ReportInput struct {
	Tipo             models.IlvTipo    `json:"tipo" validate:"required,oneof=hazard_id wit swa fdkar"`
	ProjectID        string            `json:"projectId" validate:"required"`
	ContractorID     string            `json:"contractorId"`
	Title            string            `json:"title" validate:"required,max=200"`
	Description      string            `json:"description"`
	EventDate        time.Time         `json:"eventDate" validate:"required"`
	Location         string            `json:"location"`
	Severity         string            `json:"severity"`
	ResponsibleEmail string            `json:"responsibleEmail" validate:"omitempty,email"`
	Fields           map[string]string `json:"fields"`
}

type CloseInput struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Notes string `json:"notes"`
}

type IssuedToken struct {
	ID           string               `json:"id"`
	Token        string               `json:"token"`
	URL          string               `json:"url"`
	ExpiresAt    time.Time            `json:"expiresAt"`
	Notification *models.Notification `json:"notification,omitempty"`
}

// ReportSummary is what the public close page may see of a report.
type ReportSummary struct {
	Number      string           `json:"number"`
	Tipo        models.IlvTipo   `json:"tipo"`
	Estado      models.IlvEstado `json:"estado"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	EventDate   time.Time        `json:"eventDate"`
	Location    string           `json:"location"`
	Severity    string           `json:"severity,omitempty"`
}

type ClosePreview struct {
	Report    ReportSummary           `json:"report"`
	Fields    []models.IlvReportField `json:"fields"`
	ExpiresAt time.Time               `json:"expiresAt"`
}

var fieldKeyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]{0,63}$`)

func (s *IlvService) publish(typ string, r *models.IlvReport) {
	if s.Events == nil {
		return
	}
	ev := realtime.ReportEvent(typ, r)
	ev.At = s.Now.now()
	s.Events.Publish(ev)
}

func (s *IlvService) validate(ctx context.Context, in *ReportInput) error {
	if !in.Tipo.Valid() {
		return invalid("unknown tipo %q", in.Tipo)
	}
	if strings.TrimSpace(in.Title) == "" {
		return invalid("title is required")
	}
	if in.EventDate.IsZero() {
		return invalid("eventDate is required")
	}
	if in.ResponsibleEmail != "" {
		if _, err := mail.ParseAddress(in.ResponsibleEmail); err != nil {
			return invalid("invalid responsibleEmail")
		}
	}
	if in.Severity != "" {
		ok, err := s.Maestros.ActiveCode(ctx, models.MaestroSeverity, in.Severity)
		if err != nil {
			return err
		}
		if !ok {
			return invalid("unknown severity %q", in.Severity)
		}
	}
	return checkFieldKeys(in.Fields)
}

func checkFieldKeys(fields map[string]string) error {
	for k := range fields {
		if !fieldKeyPattern.MatchString(k) {
			return invalid("invalid field key %q", k)
		}
	}
	return nil
}

func (s *IlvService) Create(ctx context.Context, scope models.Scope, in ReportInput) (*models.IlvReport, error) {
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}
	ok, err := s.Projects.Visible(ctx, in.ProjectID, scope)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalid("project %s is not accessible", in.ProjectID)
	}
	contractorID := in.ContractorID
	if scope.Role == models.RoleContractor {
		contractorID = scope.ContractorID
	}

	rep := &models.IlvReport{
		Tipo:             in.Tipo,
		Estado:           models.EstadoAbierto,
		ProjectID:        in.ProjectID,
		ContractorID:     models.StrPtr(contractorID),
		ReporterID:       scope.UserID,
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		EventDate:        in.EventDate.UTC(),
		Location:         in.Location,
		Severity:         in.Severity,
		ResponsibleEmail: strings.ToLower(in.ResponsibleEmail),
	}
	if err := s.Reports.Create(ctx, rep); err != nil {
		return nil, storeErr(err, "report")
	}
	if len(in.Fields) > 0 {
		if err := s.Reports.SetFields(ctx, rep.ID, in.Fields); err != nil {
			return nil, storeErr(err, "report fields")
		}
	}
	logrus.WithFields(logrus.Fields{"report_id": rep.ID, "number": rep.Number, "tipo": rep.Tipo}).Info("ilv report created")
	s.publish(realtime.EventCreated, rep)
	return rep, nil
}

// Get hides reports of projects outside the scope as not found.
func (s *IlvService) Get(ctx context.Context, scope models.Scope, id string) (*models.IlvReport, error) {
	rep, err := s.Reports.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "report")
	}
	ok, err := s.Projects.Visible(ctx, rep.ProjectID, scope)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return rep, nil
}

func (s *IlvService) openReport(ctx context.Context, scope models.Scope, id string) (*models.IlvReport, error) {
	rep, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !rep.IsOpen() {
		return nil, ErrReportClosed
	}
	return rep, nil
}

func (s *IlvService) List(ctx context.Context, scope models.Scope, f repository.ReportFilter, page repository.Page) ([]models.IlvReport, int, error) {
	return s.Reports.List(ctx, f, scope, page)
}

// Update rewrites the editable attributes. Tipo, project and number are
// fixed at creation.
func (s *IlvService) Update(ctx context.Context, scope models.Scope, id string, in ReportInput) (*models.IlvReport, error) {
	rep, err := s.openReport(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	in.Tipo = rep.Tipo
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}
	if scope.Role != models.RoleContractor {
		rep.ContractorID = models.StrPtr(in.ContractorID)
	}
	rep.Title = strings.TrimSpace(in.Title)
	rep.Description = in.Description
	rep.EventDate = in.EventDate.UTC()
	rep.Location = in.Location
	rep.Severity = in.Severity
	rep.ResponsibleEmail = strings.ToLower(in.ResponsibleEmail)
	if err := s.Reports.Update(ctx, rep); err != nil {
		if errors.Is(err, repository.ErrReportNotOpen) {
			return nil, ErrReportClosed
		}
		return nil, storeErr(err, "report")
	}
	if len(in.Fields) > 0 {
		if err := s.Reports.SetFields(ctx, rep.ID, in.Fields); err != nil {
			return nil, storeErr(err, "report fields")
		}
	}
	s.publish(realtime.EventUpdated, rep)
	return rep, nil
}

func (s *IlvService) Fields(ctx context.Context, scope models.Scope, id string) ([]models.IlvReportField, error) {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return nil, err
	}
	return s.Reports.Fields(ctx, id)
}

// SetFields upserts the attribute bag; an empty value removes the key.
func (s *IlvService) SetFields(ctx context.Context, scope models.Scope, id string, fields map[string]string) ([]models.IlvReportField, error) {
	rep, err := s.openReport(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := checkFieldKeys(fields); err != nil {
		return nil, err
	}
	if err := s.Reports.SetFields(ctx, id, fields); err != nil {
		return nil, storeErr(err, "report fields")
	}
	s.publish(realtime.EventUpdated, rep)
	return s.Reports.Fields(ctx, id)
}

// sniff classifies content by its leading bytes, ignoring what the client
// claimed.
func sniff(data []byte) string {
	ct := http.DetectContentType(data)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}

// AddAttachment stores a file on an open report. Re-uploading identical
// content returns the existing attachment with created false.
func (s *IlvService) AddAttachment(ctx context.Context, scope models.Scope, id string, in FileUpload) (*models.IlvAttachment, bool, error) {
	rep, err := s.openReport(ctx, scope, id)
	if err != nil {
		return nil, false, err
	}
	if len(in.Data) == 0 {
		return nil, false, invalid("file is empty")
	}
	if len(in.Data) > models.MaxAttachmentSize {
		return nil, false, fmt.Errorf("%w: max %d bytes", ErrAttachmentTooLarge, models.MaxAttachmentSize)
	}
	ct := sniff(in.Data)
	if !models.AllowedAttachmentTypes[ct] {
		return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}

	sum := sha256.Sum256(in.Data)
	hash := hex.EncodeToString(sum[:])
	if existing, err := s.Reports.AttachmentByHash(ctx, id, hash); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	key := fmt.Sprintf("ilv/%s/%s", id, blobName(in.Name))
	if err := s.Blobs.Put(ctx, key, in.Data, ct); err != nil {
		return nil, false, fmt.Errorf("store blob: %w", err)
	}
	att := &models.IlvAttachment{
		ReportID:    id,
		BlobKey:     key,
		FileName:    in.Name,
		ContentType: ct,
		Size:        int64(len(in.Data)),
		SHA256:      hash,
		UploadedBy:  scope.UserID,
	}
	if err := s.Reports.CreateAttachment(ctx, att, models.MaxAttachmentsPerReport); err != nil {
		s.dropBlob(ctx, key)
		switch {
		case errors.Is(err, repository.ErrAttachmentLimit):
			return nil, false, fmt.Errorf("%w: max %d per report", ErrAttachmentLimit, models.MaxAttachmentsPerReport)
		case errors.Is(err, repository.ErrReportNotOpen):
			return nil, false, ErrReportClosed
		case errors.Is(err, repository.ErrDuplicate):
			// a concurrent upload of the same content won
			existing, gerr := s.Reports.AttachmentByHash(ctx, id, hash)
			if gerr == nil {
				return existing, false, nil
			}
		}
		return nil, false, storeErr(err, "attachment")
	}
	logrus.WithFields(logrus.Fields{"report_id": id, "attachment_id": att.ID, "size": att.Size}).Info("attachment added")
	s.publish(realtime.EventAttachmentAdded, rep)
	return att, true, nil
}

func (s *IlvService) Attachments(ctx context.Context, scope models.Scope, id string) ([]models.IlvAttachment, error) {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return nil, err
	}
	return s.Reports.Attachments(ctx, id)
}

func (s *IlvService) DownloadAttachment(ctx context.Context, scope models.Scope, id, attID string) (*models.IlvAttachment, io.ReadCloser, error) {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return nil, nil, err
	}
	att, err := s.Reports.Attachment(ctx, id, attID)
	if err != nil {
		return nil, nil, storeErr(err, "attachment")
	}
	rc, err := s.Blobs.Get(ctx, att.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("read blob: %w", err)
	}
	return att, rc, nil
}

func (s *IlvService) DeleteAttachment(ctx context.Context, scope models.Scope, id, attID string) error {
	rep, err := s.openReport(ctx, scope, id)
	if err != nil {
		return err
	}
	att, err := s.Reports.Attachment(ctx, id, attID)
	if err != nil {
		return storeErr(err, "attachment")
	}
	if err := s.Reports.DeleteAttachment(ctx, id, attID); err != nil {
		if errors.Is(err, repository.ErrReportNotOpen) {
			return ErrReportClosed
		}
		return storeErr(err, "attachment")
	}
	s.dropBlob(ctx, att.BlobKey)
	s.publish(realtime.EventUpdated, rep)
	return nil
}

// IssueCloseToken revokes outstanding links of the report, signs a new
// one and mails it to the responsible person.
func (s *IlvService) IssueCloseToken(ctx context.Context, scope models.Scope, id string) (*IssuedToken, error) {
	rep, err := s.openReport(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	now := s.Now.now()
	row := &models.IlvCloseToken{
		ID:        uuid.NewString(),
		ReportID:  rep.ID,
		ExpiresAt: now.Add(s.TokenTTL),
		CreatedBy: scope.UserID,
		CreatedAt: now,
	}
	signed, err := s.Signer.Sign(row.ID, rep.ID, now, row.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign close token: %w", err)
	}
	if err := s.Reports.CreateCloseToken(ctx, row); err != nil {
		return nil, storeErr(err, "close token")
	}
	metrics.CloseTokenEvent("issued")

	out := &IssuedToken{
		ID:        row.ID,
		Token:     signed,
		URL:       strings.TrimRight(s.BaseURL, "/") + "/ilv/close/" + signed,
		ExpiresAt: row.ExpiresAt,
	}
	if s.Notify != nil {
		out.Notification = s.Notify.Notify(ctx, closeLinkMessage(rep, out.URL, row.ExpiresAt))
	}
	logrus.WithFields(logrus.Fields{"report_id": rep.ID, "token_id": row.ID}).Info("close token issued")
	return out, nil
}

func (s *IlvService) CloseTokens(ctx context.Context, scope models.Scope, id string) ([]models.IlvCloseToken, error) {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return nil, err
	}
	return s.Reports.CloseTokens(ctx, id)
}

// checkToken verifies the signed link and its stored row. It never
// consumes the token.
func (s *IlvService) checkToken(ctx context.Context, tok string) (*models.IlvCloseToken, *models.IlvReport, error) {
	now := s.Now.now()
	claims, err := s.Signer.Verify(tok, now)
	if err != nil {
		reason := ErrTokenInvalid
		if errors.Is(err, auth.ErrCloseTokenExpired) {
			reason = ErrTokenExpired
		}
		return nil, nil, s.rejectToken(reason)
	}
	row, err := s.Reports.CloseToken(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, s.rejectToken(ErrTokenInvalid)
		}
		return nil, nil, err
	}
	switch {
	case row.ReportID != claims.ReportID:
		return nil, nil, s.rejectToken(ErrTokenInvalid)
	case row.UsedAt != nil:
		return nil, nil, s.rejectToken(ErrTokenUsed)
	case row.RevokedAt != nil:
		return nil, nil, s.rejectToken(ErrTokenRevoked)
	case !row.ExpiresAt.After(now):
		return nil, nil, s.rejectToken(ErrTokenExpired)
	}
	rep, err := s.Reports.Get(ctx, row.ReportID)
	if err != nil {
		return nil, nil, storeErr(err, "report")
	}
	if !rep.IsOpen() {
		return nil, nil, ErrReportClosed
	}
	return row, rep, nil
}

func (s *IlvService) rejectToken(reason error) error {
	metrics.CloseTokenEvent("rejected")
	return reason
}

func (s *IlvService) PreviewByToken(ctx context.Context, tok string) (*ClosePreview, error) {
	row, rep, err := s.checkToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	fields, err := s.Reports.Fields(ctx, rep.ID)
	if err != nil {
		return nil, err
	}
	return &ClosePreview{
		Report: ReportSummary{
			Number:      rep.Number,
			Tipo:        rep.Tipo,
			Estado:      rep.Estado,
			Title:       rep.Title,
			Description: rep.Description,
			EventDate:   rep.EventDate,
			Location:    rep.Location,
			Severity:    rep.Severity,
		},
		Fields:    fields,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

func checkCloseInput(in CloseInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name is required")
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return invalid("invalid email")
		}
	}
	return nil
}

// CloseByToken consumes the link and closes its report. Only the first of
// concurrent uses succeeds.
func (s *IlvService) CloseByToken(ctx context.Context, tok string, in CloseInput, ip, userAgent string) (*models.IlvReport, error) {
	if err := checkCloseInput(in); err != nil {
		return nil, err
	}
	row, rep, err := s.checkToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	info := repository.CloseInfo{
		ClosedAt: s.Now.now(),
		Name:     strings.TrimSpace(in.Name),
		Email:    strings.ToLower(in.Email),
		Notes:    in.Notes,
	}
	if err := s.Reports.CloseWithToken(ctx, row.ID, ip, userAgent, info); err != nil {
		switch {
		case errors.Is(err, repository.ErrTokenConsumed):
			return nil, s.rejectToken(ErrTokenUsed)
		case errors.Is(err, repository.ErrReportNotOpen):
			return nil, ErrReportClosed
		}
		return nil, err
	}
	metrics.ReportClosed("token")
	return s.afterClose(ctx, rep.ID, logrus.Fields{"token_id": row.ID, "ip": ip})
}

// Close closes a report directly on behalf of an authenticated user.
func (s *IlvService) Close(ctx context.Context, scope models.Scope, id string, in CloseInput) (*models.IlvReport, error) {
	if strings.TrimSpace(in.Name) == "" {
		in.Name = scope.Email
	}
	if in.Email == "" {
		in.Email = scope.Email
	}
	if err := checkCloseInput(in); err != nil {
		return nil, err
	}
	if _, err := s.openReport(ctx, scope, id); err != nil {
		return nil, err
	}
	info := repository.CloseInfo{
		ClosedAt: s.Now.now(),
		Name:     strings.TrimSpace(in.Name),
		Email:    strings.ToLower(in.Email),
		Notes:    in.Notes,
	}
	if err := s.Reports.Close(ctx, id, info); err != nil {
		if errors.Is(err, repository.ErrReportNotOpen) {
			return nil, ErrReportClosed
		}
		return nil, err
	}
	metrics.ReportClosed("direct")
	return s.afterClose(ctx, id, logrus.Fields{"user_id": scope.UserID})
}

func (s *IlvService) afterClose(ctx context.Context, id string, fields logrus.Fields) (*models.IlvReport, error) {
	rep, err := s.Reports.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "report")
	}
	logrus.WithFields(fields).WithFields(logrus.Fields{"report_id": rep.ID, "number": rep.Number}).Info("ilv report closed")
	s.publish(realtime.EventClosed, rep)
	if s.Notify != nil {
		to := ""
		if u, err := s.Users.FindByID(ctx, rep.ReporterID); err == nil {
			to = u.Email
		}
		s.Notify.Notify(ctx, reportClosedMessage(rep, to))
	}
	return rep, nil
}

func (s *IlvService) Reopen(ctx context.Context, scope models.Scope, id string) (*models.IlvReport, error) {
	rep, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if rep.IsOpen() {
		return nil, ErrReportOpen
	}
	if err := s.Reports.Reopen(ctx, id); err != nil {
		return nil, storeErr(err, "report")
	}
	rep, err = s.Reports.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "report")
	}
	logrus.WithFields(logrus.Fields{"report_id": id, "user_id": scope.UserID}).Info("ilv report reopened")
	s.publish(realtime.EventReopened, rep)
	return rep, nil
}

// Delete removes the report and the blobs of its attachments.
func (s *IlvService) Delete(ctx context.Context, scope models.Scope, id string) error {
	if _, err := s.Get(ctx, scope, id); err != nil {
		return err
	}
	atts, err := s.Reports.Attachments(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Reports.Delete(ctx, id); err != nil {
		return storeErr(err, "report")
	}
	for _, a := range atts {
		s.dropBlob(ctx, a.BlobKey)
	}
	logrus.WithFields(logrus.Fields{"report_id": id, "attachments": len(atts)}).Info("ilv report deleted")
	return nil
}

func (s *IlvService) Stats(ctx context.Context, scope models.Scope, f repository.ReportFilter) ([]models.IlvStat, error) {
	return s.Reports.Stats(ctx, f, scope)
}

// PDF renders the report with its fields, attachments list and form
// submissions.
func (s *IlvService) PDF(ctx context.Context, scope models.Scope, id string) ([]byte, *models.IlvReport, error) {
	if s.Renderer == nil {
		return nil, nil, ErrPDFUnavailable
	}
	rep, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	fields, err := s.Reports.Fields(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	atts, err := s.Reports.Attachments(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	subs, _, err := s.Submissions.List(ctx, repository.SubmissionFilter{ReportID: id}, scope, repository.Page{Limit: 200})
	if err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	err = s.Renderer.Render(&buf, report.Data{
		Report:      rep,
		Fields:      fields,
		Attachments: atts,
		Submissions: subs,
		GeneratedAt: s.Now.now(),
	})
	if err != nil {
		if errors.Is(err, report.ErrFontNotConfigured) {
			return nil, nil, fmt.Errorf("%w: %v", ErrPDFUnavailable, err)
		}
		return nil, nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), rep, nil
}

func (s *IlvService) dropBlob(ctx context.Context, key string) {
	if err := s.Blobs.Delete(ctx, key); err != nil {
		logrus.WithError(err).WithField("blob_key", key).Warn("delete blob")
	}
}
