package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxEmailLength bounds registrant email addresses.
const MaxEmailLength = 450

// Registration is a live registration of one attendee for an event.
type Registration struct {
	ID           uuid.UUID `json:"id"`
	EventID      uuid.UUID `json:"event_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Admission is the result of a successful registration. The notification fields are
// advisory and are not persisted.
type Admission struct {
	Registration
	NotificationSent  bool   `json:"notification_sent"`
	NotificationError string `json:"notification_error,omitempty"`
}

// NormalizeEmail returns the form used for per-event uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
