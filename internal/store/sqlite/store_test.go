package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedEvent(t *testing.T, s *Store, title string, date time.Time, capacity int) models.Event {
	t.Helper()
	e := models.Event{
		ID:        uuid.New(),
		Title:     title,
		Date:      date,
		Capacity:  capacity,
		Location:  "Hall A",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, s.CreateEvent(context.Background(), &e))
	return e
}

func insertRegistration(t *testing.T, s *Store, eventID uuid.UUID, email string, at time.Time) models.Registration {
	t.Helper()
	reg := models.Registration{ID: uuid.Must(uuid.NewV7()), EventID: eventID, Name: "Attendee", Email: email, RegisteredAt: at}
	err := s.WithEvent(context.Background(), eventID, func(ctx context.Context, tx store.EventTx) error {
		return tx.InsertRegistration(ctx, &reg)
	})
	require.NoError(t, err)
	return reg
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	require.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s1, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestCreateGetEventRoundTrip(t *testing.T) {
	s := openTempStore(t)
	date := time.Date(2026, time.November, 3, 18, 30, 0, 0, time.UTC)
	want := seedEvent(t, s, "Go Meetup", date, 40)

	got, err := s.GetEvent(context.Background(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestGetEventNotFound(t *testing.T) {
	s := openTempStore(t)
	_, err := s.GetEvent(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestListEventsOrderedByDate(t *testing.T) {
	s := openTempStore(t)
	base := time.Date(2026, time.December, 1, 9, 0, 0, 0, time.UTC)
	late := seedEvent(t, s, "late", base.AddDate(0, 1, 0), 5)
	early := seedEvent(t, s, "early", base, 5)
	mid := seedEvent(t, s, "mid", base.AddDate(0, 0, 7), 5)

	list, err := s.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uuid.UUID{early.ID, mid.ID, late.ID}, []uuid.UUID{list[0].ID, list[1].ID, list[2].ID})
}

func TestWithEventMissingEvent(t *testing.T) {
	s := openTempStore(t)
	called := false
	err := s.WithEvent(context.Background(), uuid.New(), func(context.Context, store.EventTx) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.False(t, called)
}

func TestWithEventRollsBackOnError(t *testing.T) {
	s := openTempStore(t)
	e := seedEvent(t, s, "rollback", time.Now().AddDate(0, 0, 1), 3)

	sentinel := errors.New("stop")
	err := s.WithEvent(context.Background(), e.ID, func(ctx context.Context, tx store.EventTx) error {
		reg := models.Registration{ID: uuid.New(), Name: "A", Email: "a@x.com", RegisteredAt: time.Now()}
		if err := tx.InsertRegistration(ctx, &reg); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	regs, err := s.ListRegistrations(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestInsertRegistrationDuplicateEmailIgnoresCase(t *testing.T) {
	s := openTempStore(t)
	e := seedEvent(t, s, "dup", time.Now().AddDate(0, 0, 1), 3)
	insertRegistration(t, s, e.ID, "a@x.com", time.Now())

	err := s.WithEvent(context.Background(), e.ID, func(ctx context.Context, tx store.EventTx) error {
		reg := models.Registration{ID: uuid.New(), Name: "B", Email: " A@X.COM", RegisteredAt: time.Now()}
		return tx.InsertRegistration(ctx, &reg)
	})
	assert.True(t, errors.Is(err, apperr.ErrDuplicateRegistration), "got %v", err)
}

func TestSameEmailAllowedAcrossEvents(t *testing.T) {
	s := openTempStore(t)
	e1 := seedEvent(t, s, "one", time.Now().AddDate(0, 0, 1), 3)
	e2 := seedEvent(t, s, "two", time.Now().AddDate(0, 0, 2), 3)
	insertRegistration(t, s, e1.ID, "a@x.com", time.Now())
	insertRegistration(t, s, e2.ID, "a@x.com", time.Now())
}

func TestDeleteEventWithRegistrationsIsConflict(t *testing.T) {
	s := openTempStore(t)
	e := seedEvent(t, s, "busy", time.Now().AddDate(0, 0, 1), 3)
	insertRegistration(t, s, e.ID, "a@x.com", time.Now())

	err := s.WithEvent(context.Background(), e.ID, func(ctx context.Context, tx store.EventTx) error {
		return tx.DeleteEvent(ctx)
	})
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))

	_, err = s.GetEvent(context.Background(), e.ID)
	require.NoError(t, err)
	regs, err := s.ListRegistrations(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Len(t, regs, 1)
}

func TestDeleteRegistration(t *testing.T) {
	s := openTempStore(t)
	e := seedEvent(t, s, "cancel", time.Now().AddDate(0, 0, 1), 3)
	reg := insertRegistration(t, s, e.ID, "a@x.com", time.Now())

	del := func(id uuid.UUID) error {
		return s.WithEvent(context.Background(), e.ID, func(ctx context.Context, tx store.EventTx) error {
			return tx.DeleteRegistration(ctx, id)
		})
	}
	require.NoError(t, del(reg.ID))
	assert.True(t, errors.Is(del(reg.ID), apperr.ErrNotFound))

	_, err := s.GetRegistration(context.Background(), reg.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestListRegistrationsOrderedByTime(t *testing.T) {
	s := openTempStore(t)
	e := seedEvent(t, s, "order", time.Now().AddDate(0, 0, 1), 5)
	base := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)
	second := insertRegistration(t, s, e.ID, "b@x.com", base.Add(time.Minute))
	first := insertRegistration(t, s, e.ID, "a@x.com", base)

	regs, err := s.ListRegistrations(context.Background(), e.ID)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, first.ID, regs[0].ID)
	assert.Equal(t, second.ID, regs[1].ID)
	assert.Equal(t, base, regs[0].RegisteredAt)
}

func TestEmailLogsRoundTrip(t *testing.T) {
	s := openTempStore(t)
	e := seedEvent(t, s, "mail", time.Now().AddDate(0, 0, 1), 5)
	sentAt := time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)

	logs := []models.EmailLog{
		{ID: uuid.New(), EventID: e.ID, RegistrationID: uuid.New(), EmailType: models.EmailTypeRegistrationConfirmation,
			RecipientEmail: "a@x.com", Status: models.EmailLogStatusFailed, Attempt: 1, ErrorMessage: "smtp down", CreatedAt: sentAt},
		{ID: uuid.New(), EventID: e.ID, RegistrationID: uuid.New(), EmailType: models.EmailTypeRegistrationConfirmation,
			RecipientEmail: "b@x.com", Subject: "Registration confirmed", Status: models.EmailLogStatusSent, Attempt: 2, SentAt: &sentAt, CreatedAt: sentAt.Add(time.Second)},
	}
	for i := range logs {
		require.NoError(t, s.CreateEmailLog(context.Background(), &logs[i]))
	}

	got, err := s.ListEmailLogsByEvent(context.Background(), e.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, logs[1], got[0])
	assert.Equal(t, logs[0], got[1])
}
