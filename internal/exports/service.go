// Package exports writes an event's registration roster to object storage as CSV.
package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/storage"
)

// Roster is the read side the exporter needs.
type Roster interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListRegistrations(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error)
}

// ObjectStore uploads files and signs download links.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
	PresignGet(ctx context.Context, key string) (string, time.Time, error)
}

// Export describes an uploaded roster file.
type Export struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Count     int       `json:"count"`
}

// Service exports rosters.
type Service struct {
	roster  Roster
	objects ObjectStore
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates an exporter.
func NewService(roster Roster, objects ObjectStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{roster: roster, objects: objects, logger: logger, now: time.Now}
}

// Export uploads the current roster of eventID and returns a signed link to it.
func (s *Service) Export(ctx context.Context, eventID uuid.UUID) (*Export, error) {
	if _, err := s.roster.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	regs, err := s.roster.ListRegistrations(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, regs); err != nil {
		return nil, apperr.Storage("render roster", err)
	}
	key := storage.ExportKey(eventID.String(), s.now())
	if err := s.objects.Upload(ctx, key, "text/csv", &buf); err != nil {
		s.logger.Error("upload roster failed", zap.Error(err), zap.String("key", key))
		return nil, apperr.Storage("upload roster", err)
	}
	url, expires, err := s.objects.PresignGet(ctx, key)
	if err != nil {
		return nil, apperr.Storage("sign roster url", err)
	}
	s.logger.Info("roster exported", zap.String("event_id", eventID.String()), zap.String("key", key), zap.Int("count", len(regs)))
	return &Export{Key: key, URL: url, ExpiresAt: expires, Count: len(regs)}, nil
}

// WriteCSV renders registrations with a header row.
func WriteCSV(w io.Writer, regs []models.Registration) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "name", "email", "registered_at"}); err != nil {
		return err
	}
	for _, r := range regs {
		if err := cw.Write([]string{
			r.ID.String(),
			r.Name,
			r.Email,
			r.RegisteredAt.UTC().Format(time.RFC3339Nano),
		}); err != nil {
			return fmt.Errorf("write row %s: %w", strconv.Quote(r.ID.String()), err)
		}
	}
	cw.Flush()
	return cw.Error()
}
