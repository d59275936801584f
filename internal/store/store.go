// Package store defines the persistence contract for events, registrations and
// confirmation email logs.
//
// All mutations of an event's registration set run inside WithEvent, which holds a
// lock on the event for the length of one transaction. Implementations must provide
// that lock at the storage layer so it holds across processes.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/aura-events/backend/internal/models"
)

// EventTx is the view of one locked event inside a WithEvent transaction.
type EventTx interface {
	// Event returns the event as read under the lock.
	Event() models.Event
	// Registrations queries the event's live registrations, oldest first.
	Registrations(ctx context.Context) ([]models.Registration, error)
	// InsertRegistration persists reg. A (event, normalized email) collision
	// returns apperr.ErrDuplicateRegistration.
	InsertRegistration(ctx context.Context, reg *models.Registration) error
	// DeleteRegistration removes one registration of this event, or returns
	// apperr.ErrNotFound.
	DeleteRegistration(ctx context.Context, id uuid.UUID) error
	// DeleteEvent removes the event. Existing registrations make it fail with
	// apperr.ErrConflict.
	DeleteEvent(ctx context.Context) error
}

// Store is implemented by the postgres and sqlite packages.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	CreateEvent(ctx context.Context, e *models.Event) error
	// ListEvents returns all events ordered by date ascending.
	ListEvents(ctx context.Context) ([]models.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)

	// WithEvent locks eventID, runs fn and commits when fn returns nil. A missing
	// event returns apperr.ErrNotFound without calling fn.
	WithEvent(ctx context.Context, eventID uuid.UUID, fn func(ctx context.Context, tx EventTx) error) error

	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	// ListRegistrations returns an event's registrations ordered by registration time.
	ListRegistrations(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error)

	CreateEmailLog(ctx context.Context, l *models.EmailLog) error
	ListEmailLogsByEvent(ctx context.Context, eventID uuid.UUID) ([]models.EmailLog, error)
}
