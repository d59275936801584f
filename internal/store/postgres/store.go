// Package postgres implements store.Store on PostgreSQL with pgx.
//
// WithEvent takes a row-level lock on the event (SELECT ... FOR UPDATE) for the
// duration of the transaction, so admissions, cancellations and deletes for the same
// event serialize across every process sharing the database.
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	registrationEmailKey = "registrations_event_email_key"
)

const eventColumns = `id, title, description, date, capacity, location, created_at`

const registrationColumns = `id, event_id, name, email, registered_at`

// Store persists events and registrations in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Postgres store over an open pool. The caller owns migrations.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// CreateEvent inserts an event. ID and CreatedAt must already be set.
func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (` + eventColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, q, e.ID, e.Title, e.Description, e.Date, e.Capacity, e.Location, e.CreatedAt)
	return apperr.Storage("insert event", err)
}

// ListEvents returns all events, earliest date first.
func (s *Store) ListEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY date ASC, created_at ASC`)
	if err != nil {
		return nil, apperr.Storage("list events", err)
	}
	defer rows.Close()

	var list []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.Storage("scan event", err)
		}
		list = append(list, *e)
	}
	return list, apperr.Storage("list events", rows.Err())
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("event")
		}
		return nil, apperr.Storage("get event", err)
	}
	return e, nil
}

// WithEvent runs fn inside a transaction holding FOR UPDATE on the event row.
func (s *Store) WithEvent(ctx context.Context, eventID uuid.UUID, fn func(ctx context.Context, tx store.EventTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Storage("begin transaction", err)
	}
	// Rollback after a successful commit is a no-op.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	e, err := scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("event")
		}
		return apperr.Storage("lock event", err)
	}

	if err := fn(ctx, &eventTx{tx: tx, event: *e}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate("commit transaction", err)
	}
	return nil
}

// GetRegistration returns a registration by ID.
func (s *Store) GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := scanRegistration(s.pool.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("registration")
		}
		return nil, apperr.Storage("get registration", err)
	}
	return reg, nil
}

// ListRegistrations returns an event's registrations, oldest first.
func (s *Store) ListRegistrations(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	return listRegistrations(ctx, s.pool, eventID)
}

// CreateEmailLog records one delivery attempt.
func (s *Store) CreateEmailLog(ctx context.Context, l *models.EmailLog) error {
	const q = `INSERT INTO email_logs (id, event_id, registration_id, email_type, recipient_email, subject, status, attempt, sent_at, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, NULLIF($10, ''), $11)`
	_, err := s.pool.Exec(ctx, q, l.ID, l.EventID, l.RegistrationID, l.EmailType, l.RecipientEmail,
		l.Subject, l.Status, l.Attempt, l.SentAt, l.ErrorMessage, l.CreatedAt)
	return apperr.Storage("insert email log", err)
}

// ListEmailLogsByEvent returns email logs for an event, newest first.
func (s *Store) ListEmailLogsByEvent(ctx context.Context, eventID uuid.UUID) ([]models.EmailLog, error) {
	const q = `SELECT id, event_id, registration_id, email_type, recipient_email, subject, status, attempt, sent_at, error_message, created_at
		FROM email_logs
		WHERE event_id = $1
		ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, apperr.Storage("list email logs", err)
	}
	defer rows.Close()
	var list []models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.EventID, &el.RegistrationID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status, &el.Attempt, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, apperr.Storage("scan email log", err)
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		el.CreatedAt = el.CreatedAt.UTC()
		if el.SentAt != nil {
			t := el.SentAt.UTC()
			el.SentAt = &t
		}
		list = append(list, el)
	}
	return list, apperr.Storage("list email logs", rows.Err())
}

type eventTx struct {
	tx    pgx.Tx
	event models.Event
}

func (t *eventTx) Event() models.Event { return t.event }

func (t *eventTx) Registrations(ctx context.Context) ([]models.Registration, error) {
	return listRegistrations(ctx, t.tx, t.event.ID)
}

func (t *eventTx) InsertRegistration(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (id, event_id, name, email, email_normalized, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := t.tx.Exec(ctx, q, reg.ID, t.event.ID, reg.Name, reg.Email, models.NormalizeEmail(reg.Email), reg.RegisteredAt)
	return translate("insert registration", err)
}

func (t *eventTx) DeleteRegistration(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM registrations WHERE id = $1 AND event_id = $2`, id, t.event.ID)
	if err != nil {
		return apperr.Storage("delete registration", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("registration")
	}
	return nil
}

func (t *eventTx) DeleteEvent(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, t.event.ID)
	return translate("delete event", err)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listRegistrations(ctx context.Context, q querier, eventID uuid.UUID) ([]models.Registration, error) {
	rows, err := q.Query(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE event_id = $1
		ORDER BY registered_at ASC, id ASC`, eventID)
	if err != nil {
		return nil, apperr.Storage("list registrations", err)
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, apperr.Storage("scan registration", err)
		}
		list = append(list, *reg)
	}
	return list, apperr.Storage("list registrations", rows.Err())
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Capacity, &e.Location, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Date = e.Date.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	if err := row.Scan(&reg.ID, &reg.EventID, &reg.Name, &reg.Email, &reg.RegisteredAt); err != nil {
		return nil, err
	}
	reg.RegisteredAt = reg.RegisteredAt.UTC()
	return &reg, nil
}

// translate maps constraint violations onto the error taxonomy.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation && pgErr.ConstraintName == registrationEmailKey:
			return apperr.ErrDuplicateRegistration
		case pgErr.Code == foreignKeyViolation:
			return apperr.ErrConflict
		}
	}
	return apperr.Storage(op, err)
}

var _ store.Store = (*Store)(nil)
