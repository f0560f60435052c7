package models

import (
	"fmt"
	"time"
)

type IlvTipo string

const (
	TipoHazardID IlvTipo = "hazard_id"
	TipoWIT      IlvTipo = "wit"
	TipoSWA      IlvTipo = "swa"
	TipoFDKAR    IlvTipo = "fdkar"
)

func (t IlvTipo) Valid() bool {
	switch t {
	case TipoHazardID, TipoWIT, TipoSWA, TipoFDKAR:
		return true
	}
	return false
}

// Prefix used in the human report number.
func (t IlvTipo) Prefix() string {
	switch t {
	case TipoHazardID:
		return "HID"
	case TipoWIT:
		return "WIT"
	case TipoSWA:
		return "SWA"
	case TipoFDKAR:
		return "FDK"
	}
	return "ILV"
}

func FormatReportNumber(t IlvTipo, seq int64) string {
	return fmt.Sprintf("%s-%06d", t.Prefix(), seq)
}

type IlvEstado string

const (
	EstadoAbierto IlvEstado = "abierto"
	EstadoCerrado IlvEstado = "cerrado"
)

type IlvReport struct {
	ID               string     `db:"id" json:"id"`
	Number           string     `db:"number" json:"number"`
	Tipo             IlvTipo    `db:"tipo" json:"tipo"`
	Estado           IlvEstado  `db:"estado" json:"estado"`
	ProjectID        string     `db:"project_id" json:"projectId"`
	ContractorID     *string    `db:"contractor_id" json:"contractorId,omitempty"`
	ReporterID       string     `db:"reporter_id" json:"reporterId"`
	Title            string     `db:"title" json:"title"`
	Description      string     `db:"description" json:"description"`
	EventDate        time.Time  `db:"event_date" json:"eventDate"`
	Location         string     `db:"location" json:"location"`
	Severity         string     `db:"severity" json:"severity,omitempty"`
	ResponsibleEmail string     `db:"responsible_email" json:"responsibleEmail,omitempty"`
	ClosedAt         *time.Time `db:"closed_at" json:"closedAt,omitempty"`
	ClosedByName     string     `db:"closed_by_name" json:"closedByName,omitempty"`
	ClosedByEmail    string     `db:"closed_by_email" json:"closedByEmail,omitempty"`
	CloseNotes       string     `db:"close_notes" json:"closeNotes,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`

	// Tenant columns joined from projects for scoping.
	ClientID string `db:"client_id" json:"clientId,omitempty"`
}

func (r *IlvReport) IsOpen() bool { return r.Estado == EstadoAbierto }

type IlvReportField struct {
	ReportID  string    `db:"report_id" json:"-"`
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Attachment limits.
const (
	MaxAttachmentsPerReport = 5
	MaxAttachmentSize       = 5 << 20
)

var AllowedAttachmentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

type IlvAttachment struct {
	ID          string    `db:"id" json:"id"`
	ReportID    string    `db:"report_id" json:"reportId"`
	BlobKey     string    `db:"blob_key" json:"-"`
	FileName    string    `db:"file_name" json:"fileName"`
	ContentType string    `db:"content_type" json:"contentType"`
	Size        int64     `db:"size" json:"size"`
	SHA256      string    `db:"sha256" json:"sha256"`
	UploadedBy  string    `db:"uploaded_by" json:"uploadedBy"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// IlvCloseToken is the stored side of a signed close link. The JWT carries
// the ID as its jti.
type IlvCloseToken struct {
	ID            string     `db:"id" json:"id"`
	ReportID      string     `db:"report_id" json:"reportId"`
	ExpiresAt     time.Time  `db:"expires_at" json:"expiresAt"`
	CreatedBy     string     `db:"created_by" json:"createdBy"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UsedAt        *time.Time `db:"used_at" json:"usedAt,omitempty"`
	UsedIP        string     `db:"used_ip" json:"usedIp,omitempty"`
	UsedUserAgent string     `db:"used_user_agent" json:"usedUserAgent,omitempty"`
	RevokedAt     *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
}

type IlvStat struct {
	Tipo   IlvTipo   `db:"tipo" json:"tipo"`
	Estado IlvEstado `db:"estado" json:"estado"`
	Count  int       `db:"count" json:"count"`
}
