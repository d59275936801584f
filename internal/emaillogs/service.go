// Package emaillogs exposes the confirmation email history of an event and lets an
// operator resend a confirmation.
package emaillogs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/store"
	"github.com/aura-events/backend/pkg/queue"
)

// Enqueuer hands email jobs to the background worker.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) (string, error)
}

// ResendResult reports what a resend did: queued for the worker, or sent inline.
type ResendResult struct {
	Queued bool   `json:"queued"`
	JobID  string `json:"job_id,omitempty"`
	Sent   bool   `json:"sent"`
	Error  string `json:"error,omitempty"`
}

// Service lists email logs and triggers resends.
type Service struct {
	store    store.Store
	queue    Enqueuer
	notifier notify.Notifier
	logger   *zap.Logger
	timeout  time.Duration
}

// NewService creates the email log service. With a nil queue, resends are sent inline
// through notifier.
func NewService(st store.Store, q Enqueuer, notifier notify.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, queue: q, notifier: notifier, logger: logger, timeout: 30 * time.Second}
}

// List returns an event's email logs, newest first.
func (s *Service) List(ctx context.Context, eventID uuid.UUID) ([]models.EmailLog, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	logs, err := s.store.ListEmailLogsByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.EmailLog{}
	}
	return logs, nil
}

// Resend sends the confirmation for one registration of eventID again.
func (s *Service) Resend(ctx context.Context, eventID, registrationID uuid.UUID) (*ResendResult, error) {
	reg, err := s.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.EventID != eventID {
		return nil, apperr.NotFound("registration")
	}

	if s.queue != nil {
		jobID, err := s.queue.EnqueueEmail(ctx, queue.EmailPayload{EventID: eventID, RegistrationID: registrationID})
		if err != nil {
			s.logger.Error("enqueue resend failed", zap.Error(err), zap.String("registration_id", registrationID.String()))
			return nil, apperr.Storage("enqueue email", err)
		}
		return &ResendResult{Queued: true, JobID: jobID}, nil
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	res := notify.Deliver(sendCtx, s.notifier, notify.Confirmation{
		EventID:        event.ID,
		RegistrationID: reg.ID,
		ToAddress:      reg.Email,
		RecipientName:  reg.Name,
		EventTitle:     event.Title,
		EventDate:      event.Date,
		Location:       event.Location,
		Attempt:        notify.AdmissionAttempt + 1,
	})
	return &ResendResult{Sent: res.Sent, Error: res.Reason}, nil
}
