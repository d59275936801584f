package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/models"
)

// DefaultLogWriteTimeout bounds one email log insert.
const DefaultLogWriteTimeout = 5 * time.Second

// LogWriter persists delivery attempts.
type LogWriter interface {
	CreateEmailLog(ctx context.Context, l *models.EmailLog) error
}

// Recorder wraps a Notifier and writes an email log for every attempt. A failed
// log write is logged and otherwise ignored.
type Recorder struct {
	next   Notifier
	logs   LogWriter
	logger *zap.Logger
	now    func() time.Time

	writeTimeout time.Duration
}

// NewRecorder creates a recording Notifier.
func NewRecorder(next Notifier, logs LogWriter, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{next: next, logs: logs, logger: logger, now: time.Now, writeTimeout: DefaultLogWriteTimeout}
}

// Send delivers through the wrapped Notifier and records the outcome.
func (r *Recorder) Send(ctx context.Context, c Confirmation) Result {
	res := Deliver(ctx, r.next, c)

	attempt := c.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	now := r.now().UTC()
	entry := models.EmailLog{
		ID:             uuid.New(),
		EventID:        c.EventID,
		RegistrationID: c.RegistrationID,
		EmailType:      models.EmailTypeRegistrationConfirmation,
		RecipientEmail: c.ToAddress,
		Subject:        Subject(c),
		Status:         models.EmailLogStatusFailed,
		Attempt:        attempt,
		ErrorMessage:   res.Reason,
		CreatedAt:      now,
	}
	if res.Sent {
		entry.Status = models.EmailLogStatusSent
		entry.SentAt = &now
	}
	// The delivery already happened; a cancelled request must not lose its log row.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()
	if err := r.logs.CreateEmailLog(wctx, &entry); err != nil {
		r.logger.Warn("record email log failed",
			zap.Error(err),
			zap.String("registration_id", c.RegistrationID.String()),
		)
	}
	return res
}
