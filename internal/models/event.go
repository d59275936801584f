package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a scheduled event attendees can register for.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Capacity    int       `json:"capacity"`
	Location    string    `json:"location"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsPast reports whether the event's calendar date (UTC) is strictly before the
// calendar date of now (UTC). An event later on the same day is not past.
func (e *Event) IsPast(now time.Time) bool {
	return DateOnly(e.Date).Before(DateOnly(now))
}

// DateOnly truncates t to midnight UTC of its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
