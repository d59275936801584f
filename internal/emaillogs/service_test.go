package emaillogs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/store"
	"github.com/aura-events/backend/internal/store/sqlite"
	"github.com/aura-events/backend/pkg/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeQueue struct {
	payloads []queue.EmailPayload
	err      error
}

func (q *fakeQueue) EnqueueEmail(_ context.Context, p queue.EmailPayload) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.payloads = append(q.payloads, p)
	return "job-1", nil
}

func setup(t *testing.T) (*sqlite.Store, models.Event, models.Registration) {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "emaillogs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	now := time.Now().UTC().Truncate(time.Second)
	event := models.Event{ID: uuid.New(), Title: "Go Meetup", Date: now.Add(48 * time.Hour), Capacity: 5, CreatedAt: now}
	require.NoError(t, st.CreateEvent(ctx, &event))
	reg := models.Registration{ID: uuid.New(), EventID: event.ID, Name: "Ada", Email: "ada@example.com", RegisteredAt: now}
	require.NoError(t, st.WithEvent(ctx, event.ID, func(ctx context.Context, tx store.EventTx) error {
		return tx.InsertRegistration(ctx, &reg)
	}))
	return st, event, reg
}

func TestList(t *testing.T) {
	st, event, reg := setup(t)
	ctx := context.Background()
	recorder := notify.NewRecorder(notify.NotifierFunc(func(context.Context, notify.Confirmation) notify.Result {
		return notify.Delivered()
	}), st, nil)
	svc := NewService(st, nil, recorder, nil)

	logs, err := svc.List(ctx, event.ID)
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)

	res, err := svc.Resend(ctx, event.ID, reg.ID)
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.True(t, res.Sent)

	logs, err = svc.List(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, reg.ID, logs[0].RegistrationID)
	assert.Equal(t, models.EmailLogStatusSent, logs[0].Status)
	assert.Equal(t, 2, logs[0].Attempt, "resend follows the admission attempt")

	_, err = svc.List(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResend_Queued(t *testing.T) {
	st, event, reg := setup(t)
	q := &fakeQueue{}
	svc := NewService(st, q, nil, nil)

	res, err := svc.Resend(context.Background(), event.ID, reg.ID)
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Equal(t, "job-1", res.JobID)
	assert.Equal(t, []queue.EmailPayload{{EventID: event.ID, RegistrationID: reg.ID}}, q.payloads)
}

func TestResend_Errors(t *testing.T) {
	st, event, reg := setup(t)
	ctx := context.Background()

	svc := NewService(st, &fakeQueue{}, nil, nil)
	_, err := svc.Resend(ctx, event.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Resend(ctx, uuid.New(), reg.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	svc = NewService(st, &fakeQueue{err: errors.New("redis down")}, nil, nil)
	_, err = svc.Resend(ctx, event.ID, reg.ID)
	assert.Equal(t, apperr.CodeStorage, apperr.CodeOf(err))
}

func TestHandler_Resend(t *testing.T) {
	st, event, reg := setup(t)
	h := NewHandler(NewService(st, &fakeQueue{}, nil, nil))
	r := gin.New()
	r.POST("/api/events/:id/emails/resend", h.Resend)
	r.GET("/api/events/:id/emails", h.ListByEvent)

	body, _ := json.Marshal(ResendRequest{RegistrationID: reg.ID.String()})
	req := httptest.NewRequest(http.MethodPost, "/api/events/"+event.ID.String()+"/emails/resend", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/events/"+event.ID.String()+"/emails/resend", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/events/"+uuid.NewString()+"/emails", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
