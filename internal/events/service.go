// Package events implements the event catalog.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store"
	"github.com/aura-events/backend/pkg/lock"
)

// EventLocker serializes work on a named resource across processes.
type EventLocker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// CreateInput holds the fields of a new event.
type CreateInput struct {
	Title       string
	Description string
	Date        time.Time
	Capacity    int
	Location    string
}

// Service owns event records and their deletion rule.
type Service struct {
	store  store.Store
	locker EventLocker
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the catalog. locker may be nil.
func NewService(st store.Store, locker EventLocker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, locker: locker, logger: logger, now: time.Now}
}

// Create validates and persists a new event.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Event, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if in.Capacity <= 0 {
		return nil, apperr.Validation("capacity must be greater than zero")
	}
	if in.Date.IsZero() {
		return nil, apperr.Validation("date is required")
	}

	e := &models.Event{
		ID:          uuid.New(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Date:        in.Date.UTC().Truncate(time.Microsecond),
		Capacity:    in.Capacity,
		Location:    strings.TrimSpace(in.Location),
		CreatedAt:   s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		s.logger.Error("create event failed", zap.Error(err))
		return nil, err
	}
	s.logger.Info("event created", zap.String("event_id", e.ID.String()), zap.Int("capacity", e.Capacity))
	return e, nil
}

// List returns every event, earliest date first.
func (s *Service) List(ctx context.Context) ([]models.Event, error) {
	list, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Event{}
	}
	return list, nil
}

// Get returns one event.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// Delete removes an event that has no registrations. The registration count is
// read under the same lock admissions take, so a concurrent admission cannot slip in
// between the check and the delete.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	del := func(ctx context.Context) error {
		return s.store.WithEvent(ctx, id, func(ctx context.Context, tx store.EventTx) error {
			regs, err := tx.Registrations(ctx)
			if err != nil {
				return err
			}
			if len(regs) > 0 {
				return apperr.ErrConflict
			}
			return tx.DeleteEvent(ctx)
		})
	}

	var err error
	if s.locker != nil {
		err = apperr.Storage("lock event", s.locker.WithLock(ctx, lock.EventKey(id), del))
	} else {
		err = del(ctx)
	}
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeStorage {
			s.logger.Error("delete event failed", zap.Error(err), zap.String("event_id", id.String()))
		}
		return err
	}
	s.logger.Info("event deleted", zap.String("event_id", id.String()))
	return nil
}
