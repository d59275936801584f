package events

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func newTestRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.POST("/api/events", h.Create)
	r.GET("/api/events", h.List)
	r.GET("/api/events/:id", h.Get)
	r.DELETE("/api/events/:id", h.Delete)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestHandler_CRUD(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(NewHandler(svc, nil))

	w, env := do(t, r, http.MethodPost, "/api/events", CreateRequest{
		Title:    "Go Meetup",
		Date:     "2030-03-01",
		Capacity: 10,
		Location: "Berlin",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Event
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "Go Meetup", created.Title)

	w, env = do(t, r, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Event
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	w, _ = do(t, r, http.MethodGet, "/api/events/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodDelete, "/api/events/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, env = do(t, r, http.MethodGet, "/api/events/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", env.Code)
}

func TestHandler_CreateRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	r := newTestRouter(NewHandler(svc, nil))

	tests := []struct {
		name string
		body any
	}{
		{"missing title", map[string]any{"date": "2030-03-01", "capacity": 5}},
		{"bad date", CreateRequest{Title: "T", Date: "soon", Capacity: 5}},
		{"zero capacity", CreateRequest{Title: "T", Date: "2030-03-01", Capacity: 0}},
		{"whitespace title", CreateRequest{Title: "   ", Date: "2030-03-01", Capacity: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, r, http.MethodPost, "/api/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "validation_error", env.Code)
		})
	}
}

func TestHandler_DeleteConflict(t *testing.T) {
	svc, st := newTestService(t)
	r := newTestRouter(NewHandler(svc, nil))
	e, err := svc.Create(t.Context(), validInput())
	require.NoError(t, err)
	addRegistration(t, st, e.ID, "a@x.com")

	w, env := do(t, r, http.MethodDelete, "/api/events/"+e.ID.String(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", env.Code)

	w, _ = do(t, r, http.MethodGet, "/api/events/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/events/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
