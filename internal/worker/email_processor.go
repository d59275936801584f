// Package worker runs background jobs pulled from the Redis queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/pkg/queue"
	"github.com/aura-events/backend/pkg/telemetry"
)

// Lookup is the read side of the store the processor needs.
type Lookup interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
}

// JobQueue is the subset of queue.Queue used by the worker loop.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// EmailProcessor re-sends confirmation emails.
type EmailProcessor struct {
	lookup   Lookup
	notifier notify.Notifier
	queue    JobQueue
	logger   *zap.Logger
	backoff  time.Duration
	timeout  time.Duration
	duration *telemetry.Histogram
}

// NewEmailProcessor creates a confirmation email processor. notifier should record
// its attempts (see notify.Recorder).
func NewEmailProcessor(lookup Lookup, notifier notify.Notifier, q JobQueue, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &EmailProcessor{
		lookup:   lookup,
		notifier: notifier,
		queue:    q,
		logger:   logger,
		backoff:  queue.RetryBackoff,
		timeout:  30 * time.Second,
	}
	h, err := telemetry.NewHistogram(otel.Meter("github.com/aura-events/backend/internal/worker"),
		"email_job_duration_seconds", "Time spent processing one email job", "s")
	if err != nil {
		logger.Warn("create metric failed", zap.Error(err))
	}
	p.duration = h
	return p
}

// Process executes one email job. A registration that no longer exists drops the
// job; a failed send returns an error so the job is retried.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeEmail(job)
	if err != nil {
		return err
	}

	reg, err := p.lookup.GetRegistration(ctx, payload.RegistrationID)
	if errors.Is(err, apperr.ErrNotFound) {
		p.logger.Info("registration gone, dropping email job",
			zap.String("job_id", job.ID),
			zap.String("registration_id", payload.RegistrationID.String()),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load registration: %w", err)
	}
	event, err := p.lookup.GetEvent(ctx, reg.EventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	res := notify.Deliver(sendCtx, p.notifier, notify.Confirmation{
		EventID:        event.ID,
		RegistrationID: reg.ID,
		ToAddress:      reg.Email,
		RecipientName:  reg.Name,
		EventTitle:     event.Title,
		EventDate:      event.Date,
		Location:       event.Location,
		Attempt:        notify.AdmissionAttempt + job.Attempt + 1,
	})
	if !res.Sent {
		return fmt.Errorf("send confirmation: %s", res.Reason)
	}
	p.logger.Info("confirmation email resent",
		zap.String("job_id", job.ID),
		zap.String("registration_id", reg.ID.String()),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		start := time.Now()
		err = p.Process(ctx, job)
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		p.duration.Record(ctx, time.Since(start).Seconds(), attribute.String("outcome", outcome))
		if err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}
