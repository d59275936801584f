// Package registrations implements the admission engine and the registration ledger.
//
// Every mutation of an event's registration set runs inside store.WithEvent, so
// admissions and cancellations for the same event are serialized by the storage
// layer. An optional distributed lock can wrap that scope as well.
package registrations

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/store"
	"github.com/aura-events/backend/pkg/lock"
	"github.com/aura-events/backend/pkg/telemetry"
)

const instrumentationName = "github.com/aura-events/backend/internal/registrations"

// DefaultNotifyTimeout bounds the post-commit confirmation send.
const DefaultNotifyTimeout = 30 * time.Second

// EventLocker serializes work on a named resource across processes.
type EventLocker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Service admits, lists and cancels registrations.
type Service struct {
	store         store.Store
	notifier      notify.Notifier
	locker        EventLocker
	logger        *zap.Logger
	now           func() time.Time
	notifyTimeout time.Duration

	tracer   trace.Tracer
	admitted *telemetry.Counter
	rejected *telemetry.Counter
	notified *telemetry.Counter
}

// Option configures a Service.
type Option func(*Service)

// WithLocker adds a distributed per-event lock around every registration mutation.
func WithLocker(l EventLocker) Option { return func(s *Service) { s.locker = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithNotifyTimeout bounds each confirmation send.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// NewService creates the registration service.
func NewService(st store.Store, notifier notify.Notifier, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:         st,
		notifier:      notifier,
		logger:        logger,
		now:           time.Now,
		notifyTimeout: DefaultNotifyTimeout,
		tracer:        otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter(instrumentationName)
	var err error
	if s.admitted, err = telemetry.NewCounter(meter, "registrations_admitted_total", "Registrations committed"); err != nil {
		logger.Warn("create metric failed", zap.Error(err))
	}
	if s.rejected, err = telemetry.NewCounter(meter, "registrations_rejected_total", "Registration attempts rejected, by reason"); err != nil {
		logger.Warn("create metric failed", zap.Error(err))
	}
	if s.notified, err = telemetry.NewCounter(meter, "registration_notifications_total", "Confirmation sends, by outcome"); err != nil {
		logger.Warn("create metric failed", zap.Error(err))
	}
	return s
}

// Admit registers name/email for an event. Business-rule rejections are returned as
// apperr errors and leave no registration behind. Once the registration commits, the
// confirmation outcome is reported on the result and never turns it into a failure.
func (s *Service) Admit(ctx context.Context, eventID uuid.UUID, name, email string) (*models.Admission, error) {
	ctx, span := s.tracer.Start(ctx, "registrations.Admit", trace.WithAttributes(
		attribute.String("event.id", eventID.String()),
	))
	defer span.End()

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if err := validateRegistrant(name, email); err != nil {
		s.rejected.Inc(ctx, attribute.String("reason", string(apperr.CodeValidation)))
		return nil, err
	}

	var (
		reg   models.Registration
		event models.Event
	)
	err := s.mutateEvent(ctx, eventID, func(ctx context.Context, tx store.EventTx) error {
		event = tx.Event()
		now := s.now().UTC()
		if event.IsPast(now) {
			return apperr.ErrPastEvent
		}

		existing, err := tx.Registrations(ctx)
		if err != nil {
			return err
		}
		normalized := models.NormalizeEmail(email)
		for _, r := range existing {
			if models.NormalizeEmail(r.Email) == normalized {
				return apperr.ErrDuplicateRegistration
			}
		}
		if len(existing) >= event.Capacity {
			return apperr.ErrCapacityExceeded
		}

		id, err := uuid.NewV7()
		if err != nil {
			return apperr.Storage("generate registration id", err)
		}
		reg = models.Registration{
			ID:           id,
			EventID:      event.ID,
			Name:         name,
			Email:        email,
			RegisteredAt: registrationTime(now, existing),
		}
		return tx.InsertRegistration(ctx, &reg)
	})
	if err != nil {
		code := apperr.CodeOf(err)
		s.rejected.Inc(ctx, attribute.String("reason", string(code)))
		if code == apperr.CodeStorage {
			telemetry.RecordError(span, err)
			s.logger.Error("admit registration failed", zap.Error(err), zap.String("event_id", eventID.String()))
		}
		return nil, err
	}

	s.admitted.Inc(ctx)
	s.logger.Info("registration admitted",
		zap.String("event_id", event.ID.String()),
		zap.String("registration_id", reg.ID.String()),
	)
	span.SetAttributes(attribute.String("registration.id", reg.ID.String()))

	res := s.sendConfirmation(ctx, event, reg)
	return &models.Admission{
		Registration:      reg,
		NotificationSent:  res.Sent,
		NotificationError: res.Reason,
	}, nil
}

// sendConfirmation runs after commit. It is detached from the caller's cancellation
// and bounded by its own timeout.
func (s *Service) sendConfirmation(ctx context.Context, event models.Event, reg models.Registration) notify.Result {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	res := notify.Deliver(nctx, s.notifier, notify.Confirmation{
		EventID:        event.ID,
		RegistrationID: reg.ID,
		ToAddress:      reg.Email,
		RecipientName:  reg.Name,
		EventTitle:     event.Title,
		EventDate:      event.Date,
		Location:       event.Location,
		Attempt:        notify.AdmissionAttempt,
	})
	if res.Sent {
		s.notified.Inc(ctx, attribute.String("outcome", "sent"))
		return res
	}
	s.notified.Inc(ctx, attribute.String("outcome", "failed"))
	s.logger.Warn("confirmation not sent",
		zap.String("registration_id", reg.ID.String()),
		zap.String("reason", res.Reason),
	)
	return res
}

// Get returns a registration by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return s.store.GetRegistration(ctx, id)
}

// ListByEvent returns an event's registrations ordered by registration time.
func (s *Service) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	list, err := s.store.ListRegistrations(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Registration{}
	}
	return list, nil
}

// Cancel removes a registration, freeing one seat.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "registrations.Cancel", trace.WithAttributes(
		attribute.String("registration.id", id.String()),
	))
	defer span.End()

	reg, err := s.store.GetRegistration(ctx, id)
	if err != nil {
		return err
	}
	err = s.mutateEvent(ctx, reg.EventID, func(ctx context.Context, tx store.EventTx) error {
		return tx.DeleteRegistration(ctx, id)
	})
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeStorage {
			telemetry.RecordError(span, err)
			s.logger.Error("cancel registration failed", zap.Error(err), zap.String("registration_id", id.String()))
		}
		return err
	}
	s.logger.Info("registration cancelled",
		zap.String("event_id", reg.EventID.String()),
		zap.String("registration_id", id.String()),
	)
	return nil
}

func (s *Service) mutateEvent(ctx context.Context, eventID uuid.UUID, fn func(ctx context.Context, tx store.EventTx) error) error {
	run := func(ctx context.Context) error {
		return s.store.WithEvent(ctx, eventID, fn)
	}
	if s.locker == nil {
		return run(ctx)
	}
	return apperr.Storage("lock event", s.locker.WithLock(ctx, lock.EventKey(eventID), run))
}

// registrationTime keeps registration timestamps non-decreasing within an event even
// if the clock steps backwards between admissions.
func registrationTime(now time.Time, existing []models.Registration) time.Time {
	t := now.Truncate(time.Microsecond)
	for _, r := range existing {
		if r.RegisteredAt.After(t) {
			t = r.RegisteredAt
		}
	}
	return t
}

func validateRegistrant(name, email string) error {
	switch {
	case name == "":
		return apperr.Validation("name is required")
	case email == "":
		return apperr.Validation("email is required")
	case len(email) > models.MaxEmailLength:
		return apperr.Validation("email must be at most %d characters", models.MaxEmailLength)
	case !strings.Contains(email, "@"):
		return apperr.Validation("email is not a valid address")
	}
	return nil
}
