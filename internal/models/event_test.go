package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventIsPast(t *testing.T) {
	now := time.Date(2026, time.October, 19, 9, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		date time.Time
		want bool
	}{
		{"yesterday", now.AddDate(0, 0, -1), true},
		{"earlier today", time.Date(2026, time.October, 19, 0, 1, 0, 0, time.UTC), false},
		{"later today", time.Date(2026, time.October, 19, 23, 59, 0, 0, time.UTC), false},
		{"tomorrow", now.AddDate(0, 0, 1), false},
		// 2026-10-19 01:00 at UTC+3 is 2026-10-18 22:00 UTC.
		{"offset crosses day", time.Date(2026, time.October, 19, 1, 0, 0, 0, time.FixedZone("EEST", 3*3600)), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := Event{Date: tc.date}
			assert.Equal(t, tc.want, e.IsPast(now))
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com "))
}
