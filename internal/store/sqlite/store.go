// Package sqlite implements store.Store on an embedded SQLite database.
//
// Every transaction is opened with BEGIN IMMEDIATE, which takes the database write
// lock up front. That serializes WithEvent scopes across connections and across
// processes sharing the file, a superset of the per-event lock the store contract
// requires.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store"
	"github.com/aura-events/backend/internal/store/sqlite/migrations"
)

const eventColumns = `id, title, description, date, capacity, location, created_at`

const registrationColumns = `id, event_id, name, email, registered_at`

// Store persists events and registrations in SQLite.
type Store struct {
	db *sql.DB
}

func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateEvent inserts an event. ID and CreatedAt must already be set.
func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Title, e.Description, toMicros(e.Date), e.Capacity, e.Location, toMicros(e.CreatedAt),
	)
	return apperr.Storage("insert event", err)
}

// ListEvents returns all events, earliest date first.
func (s *Store) ListEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY date ASC, created_at ASC`)
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
	e, err := scanEvent(s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("event")
		}
		return nil, apperr.Storage("get event", err)
	}
	return e, nil
}

// WithEvent runs fn inside an immediate transaction scoped to the event.
func (s *Store) WithEvent(ctx context.Context, eventID uuid.UUID, fn func(ctx context.Context, tx store.EventTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	e, err := scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("event")
		}
		return apperr.Storage("lock event", err)
	}

	if err := fn(ctx, &eventTx{tx: tx, event: *e}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate("commit transaction", err)
	}
	return nil
}

// GetRegistration returns a registration by ID.
func (s *Store) GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := scanRegistration(s.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("registration")
		}
		return nil, apperr.Storage("get registration", err)
	}
	return reg, nil
}

// ListRegistrations returns an event's registrations, oldest first.
func (s *Store) ListRegistrations(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	return listRegistrations(ctx, s.db, eventID)
}

// CreateEmailLog records one delivery attempt.
func (s *Store) CreateEmailLog(ctx context.Context, l *models.EmailLog) error {
	var sentAt *int64
	if l.SentAt != nil {
		v := toMicros(*l.SentAt)
		sentAt = &v
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_logs (id, event_id, registration_id, email_type, recipient_email, subject, status, attempt, sent_at, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.EventID.String(), l.RegistrationID.String(), l.EmailType, l.RecipientEmail,
		l.Subject, l.Status, l.Attempt, sentAt, l.ErrorMessage, toMicros(l.CreatedAt),
	)
	return apperr.Storage("insert email log", err)
}

// ListEmailLogsByEvent returns email logs for an event, newest first.
func (s *Store) ListEmailLogsByEvent(ctx context.Context, eventID uuid.UUID) ([]models.EmailLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, registration_id, email_type, recipient_email, subject, status, attempt, sent_at, error_message, created_at
		   FROM email_logs
		  WHERE event_id = ?
		  ORDER BY created_at DESC, rowid DESC`,
		eventID.String(),
	)
	if err != nil {
		return nil, apperr.Storage("list email logs", err)
	}
	defer rows.Close()

	var list []models.EmailLog
	for rows.Next() {
		var (
			el        models.EmailLog
			sentAt    sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&el.ID, &el.EventID, &el.RegistrationID, &el.EmailType, &el.RecipientEmail,
			&el.Subject, &el.Status, &el.Attempt, &sentAt, &el.ErrorMessage, &createdAt); err != nil {
			return nil, apperr.Storage("scan email log", err)
		}
		if sentAt.Valid {
			t := fromMicros(sentAt.Int64)
			el.SentAt = &t
		}
		el.CreatedAt = fromMicros(createdAt)
		list = append(list, el)
	}
	return list, apperr.Storage("list email logs", rows.Err())
}

type eventTx struct {
	tx    *sql.Tx
	event models.Event
}

func (t *eventTx) Event() models.Event { return t.event }

func (t *eventTx) Registrations(ctx context.Context) ([]models.Registration, error) {
	return listRegistrations(ctx, t.tx, t.event.ID)
}

func (t *eventTx) InsertRegistration(ctx context.Context, reg *models.Registration) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO registrations (id, event_id, name, email, email_normalized, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		reg.ID.String(), t.event.ID.String(), reg.Name, reg.Email, models.NormalizeEmail(reg.Email), toMicros(reg.RegisteredAt),
	)
	return translate("insert registration", err)
}

func (t *eventTx) DeleteRegistration(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM registrations WHERE id = ? AND event_id = ?`, id.String(), t.event.ID.String())
	if err != nil {
		return apperr.Storage("delete registration", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage("delete registration", err)
	}
	if n == 0 {
		return apperr.NotFound("registration")
	}
	return nil
}

func (t *eventTx) DeleteEvent(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, t.event.ID.String())
	return translate("delete event", err)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listRegistrations(ctx context.Context, q querier, eventID uuid.UUID) ([]models.Registration, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		  WHERE event_id = ?
		  ORDER BY registered_at ASC, id ASC`,
		eventID.String(),
	)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*models.Event, error) {
	var (
		e         models.Event
		date      int64
		createdAt int64
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &date, &e.Capacity, &e.Location, &createdAt); err != nil {
		return nil, err
	}
	e.Date = fromMicros(date)
	e.CreatedAt = fromMicros(createdAt)
	return &e, nil
}

func scanRegistration(row scanner) (*models.Registration, error) {
	var (
		reg          models.Registration
		registeredAt int64
	)
	if err := row.Scan(&reg.ID, &reg.EventID, &reg.Name, &reg.Email, &registeredAt); err != nil {
		return nil, err
	}
	reg.RegisteredAt = fromMicros(registeredAt)
	return &reg, nil
}

// translate maps constraint violations onto the error taxonomy.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		msg := sqliteErr.Error()
		switch {
		case sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			if strings.Contains(msg, "registrations.email_normalized") {
				return apperr.ErrDuplicateRegistration
			}
		// ON DELETE RESTRICT surfaces as SQLITE_CONSTRAINT_TRIGGER, not _FOREIGNKEY.
		case sqliteErr.Code()&0xff == sqlite3lib.SQLITE_CONSTRAINT && strings.Contains(msg, "FOREIGN KEY constraint failed"):
			return apperr.ErrConflict
		}
	}
	return apperr.Storage(op, err)
}

var _ store.Store = (*Store)(nil)
