package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/mail"
	"github.com/larscolombia/kapa/internal/metrics"
	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
)

// Entity types recorded on notifications.
const (
	EntityReport   = "ilv_report"
	EntityDocument = "document"
)

type Message struct {
	To         string
	Subject    string
	Body       string
	EntityType string
	EntityID   string
}

// NotificationService sends every email and logs the outcome, whether it
// was sent, failed or skipped.
type NotificationService struct {
	store  NotificationStore
	mailer Mailer
	now    Clock
}

func NewNotificationService(store NotificationStore, mailer Mailer) *NotificationService {
	return &NotificationService{store: store, mailer: mailer}
}

// Notify never fails the caller's operation; delivery and logging errors
// end up in the row and the log.
func (s *NotificationService) Notify(ctx context.Context, m Message) *models.Notification {
	n := &models.Notification{
		Channel:    "email",
		Recipient:  m.To,
		Subject:    m.Subject,
		Body:       m.Body,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		CreatedAt:  s.now.now(),
	}
	switch {
	case m.To == "":
		n.Status = models.NotificationSkipped
		n.Error = "no recipient"
	case s.mailer == nil:
		n.Status = models.NotificationSkipped
		n.Error = mail.ErrDisabled.Error()
	default:
		err := s.mailer.Send(m.To, m.Subject, m.Body)
		switch {
		case err == nil:
			n.Status = models.NotificationSent
		case errors.Is(err, mail.ErrDisabled):
			n.Status = models.NotificationSkipped
			n.Error = err.Error()
		default:
			n.Status = models.NotificationFailed
			n.Error = err.Error()
		}
	}
	metrics.NotificationLogged(string(n.Status))

	log := logrus.WithFields(logrus.Fields{
		"recipient":   n.Recipient,
		"status":      n.Status,
		"entity_type": n.EntityType,
		"entity_id":   n.EntityID,
	})
	if n.Status == models.NotificationFailed {
		log.WithField("error", n.Error).Warn("notification failed")
	} else {
		log.Info("notification logged")
	}
	if err := s.store.Create(ctx, n); err != nil {
		log.WithError(err).Error("store notification")
	}
	return n
}

func (s *NotificationService) List(ctx context.Context, f repository.NotificationFilter, page repository.Page) ([]models.Notification, int, error) {
	return s.store.List(ctx, f, page)
}

func closeLinkMessage(r *models.IlvReport, url string, expires time.Time) Message {
	return Message{
		To:      r.ResponsibleEmail,
		Subject: fmt.Sprintf("Cierre de reporte %s", r.Number),
		Body: fmt.Sprintf("Se solicita el cierre del reporte %s: %s.\n\nUse el siguiente enlace para cerrarlo:\n%s\n\nEl enlace vence el %s.\n",
			r.Number, r.Title, url, expires.Format("2006-01-02 15:04 MST")),
		EntityType: EntityReport,
		EntityID:   r.ID,
	}
}

func reportClosedMessage(r *models.IlvReport, to string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Reporte %s cerrado", r.Number),
		Body: fmt.Sprintf("El reporte %s (%s) fue cerrado por %s.\n\nNotas: %s\n",
			r.Number, r.Title, r.ClosedByName, r.CloseNotes),
		EntityType: EntityReport,
		EntityID:   r.ID,
	}
}

func documentReviewedMessage(d *models.Document, to string) Message {
	body := fmt.Sprintf("El documento %q fue revisado con estado %s.\n", d.SubcriterionName, d.State)
	if d.ReviewComment != "" {
		body += "\nComentario: " + d.ReviewComment + "\n"
	}
	return Message{
		To:         to,
		Subject:    "Documento revisado: " + d.SubcriterionName,
		Body:       body,
		EntityType: EntityDocument,
		EntityID:   d.ID,
	}
}
