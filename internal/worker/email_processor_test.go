package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/store"
	"github.com/aura-events/backend/internal/store/sqlite"
	"github.com/aura-events/backend/pkg/queue"
)

type memQueue struct {
	mu   sync.Mutex
	jobs chan *queue.Job
	dlq  []*queue.Job
	dead chan struct{}
}

func newMemQueue() *memQueue {
	return &memQueue{jobs: make(chan *queue.Job, 16), dead: make(chan struct{}, 16)}
}

func (q *memQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (q *memQueue) Retry(_ context.Context, job *queue.Job) error {
	job.Attempt++
	if job.Attempt >= queue.MaxRetries {
		q.mu.Lock()
		q.dlq = append(q.dlq, job)
		q.mu.Unlock()
		q.dead <- struct{}{}
		return nil
	}
	q.jobs <- job
	return nil
}

func setup(t *testing.T) (*sqlite.Store, models.Event, models.Registration) {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	event := models.Event{
		ID:        uuid.New(),
		Title:     "Go Meetup",
		Date:      time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second),
		Capacity:  5,
		Location:  "Berlin",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, st.CreateEvent(ctx, &event))
	reg := models.Registration{
		ID:           uuid.New(),
		EventID:      event.ID,
		Name:         "Ada",
		Email:        "ada@example.com",
		RegisteredAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, st.WithEvent(ctx, event.ID, func(ctx context.Context, tx store.EventTx) error {
		return tx.InsertRegistration(ctx, &reg)
	}))
	return st, event, reg
}

func emailJob(t *testing.T, eventID, regID uuid.UUID) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(queue.EmailPayload{EventID: eventID, RegistrationID: regID})
	require.NoError(t, err)
	return &queue.Job{ID: uuid.NewString(), Type: queue.JobTypeConfirmationEmail, Payload: raw}
}

func TestProcess_Sends(t *testing.T) {
	st, event, reg := setup(t)
	var got notify.Confirmation
	n := notify.NotifierFunc(func(_ context.Context, c notify.Confirmation) notify.Result {
		got = c
		return notify.Delivered()
	})
	p := NewEmailProcessor(st, n, newMemQueue(), nil)

	job := emailJob(t, event.ID, reg.ID)
	job.Attempt = 1
	require.NoError(t, p.Process(context.Background(), job))
	assert.Equal(t, reg.ID, got.RegistrationID)
	assert.Equal(t, "ada@example.com", got.ToAddress)
	assert.Equal(t, "Go Meetup", got.EventTitle)
	assert.Equal(t, 3, got.Attempt)
}

func TestProcess_DropsCancelledRegistration(t *testing.T) {
	st, event, _ := setup(t)
	var calls int32
	n := notify.NotifierFunc(func(context.Context, notify.Confirmation) notify.Result {
		atomic.AddInt32(&calls, 1)
		return notify.Delivered()
	})
	p := NewEmailProcessor(st, n, newMemQueue(), nil)

	require.NoError(t, p.Process(context.Background(), emailJob(t, event.ID, uuid.New())))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestProcess_FailedSendIsError(t *testing.T) {
	st, event, reg := setup(t)
	n := notify.NotifierFunc(func(context.Context, notify.Confirmation) notify.Result {
		return notify.Failed("relay down")
	})
	p := NewEmailProcessor(st, n, newMemQueue(), nil)

	err := p.Process(context.Background(), emailJob(t, event.ID, reg.ID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")
}

func TestProcess_UnknownJobType(t *testing.T) {
	st, _, _ := setup(t)
	p := NewEmailProcessor(st, nil, newMemQueue(), nil)
	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: "recording_upload"})
	assert.Error(t, err)
}

func TestRun_RetriesThenDeadLetters(t *testing.T) {
	st, event, reg := setup(t)
	failing := notify.NotifierFunc(func(context.Context, notify.Confirmation) notify.Result {
		return notify.Failed("relay down")
	})
	recorder := notify.NewRecorder(failing, st, nil)
	q := newMemQueue()
	p := NewEmailProcessor(st, recorder, q, nil)
	p.backoff = time.Millisecond

	q.jobs <- emailJob(t, event.ID, reg.ID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-q.dead:
	case <-time.After(5 * time.Second):
		t.Fatal("job never reached the dead-letter queue")
	}
	cancel()
	<-done

	require.Len(t, q.dlq, 1)
	assert.Equal(t, queue.MaxRetries, q.dlq[0].Attempt)

	logs, err := st.ListEmailLogsByEvent(context.Background(), event.ID)
	require.NoError(t, err)
	require.Len(t, logs, queue.MaxRetries)
	attempts := map[int]bool{}
	for _, l := range logs {
		assert.Equal(t, models.EmailLogStatusFailed, l.Status)
		assert.Equal(t, "relay down", l.ErrorMessage)
		attempts[l.Attempt] = true
	}
	assert.Equal(t, map[int]bool{2: true, 3: true, 4: true}, attempts)
}
