// Package notify sends registration confirmations. A Notifier never returns an
// error or panics across its boundary: every failure is folded into a Result.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AdmissionAttempt numbers the confirmation sent when a registration commits.
// Resends continue the count from there.
const AdmissionAttempt = 1

// Confirmation is everything needed to tell a registrant their seat is confirmed.
type Confirmation struct {
	EventID        uuid.UUID
	RegistrationID uuid.UUID
	ToAddress      string
	RecipientName  string
	EventTitle     string
	EventDate      time.Time
	Location       string
	// Attempt is 1 for the send made during admission and increases on resend.
	Attempt int
}

// Result reports the outcome of one send.
type Result struct {
	Sent   bool
	Reason string
}

// Delivered is the successful Result.
func Delivered() Result { return Result{Sent: true} }

// Failed builds a failed Result with a human-readable reason.
func Failed(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Notifier delivers confirmations.
type Notifier interface {
	Send(ctx context.Context, c Confirmation) Result
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, c Confirmation) Result

func (f NotifierFunc) Send(ctx context.Context, c Confirmation) Result { return f(ctx, c) }

// Deliver calls n and guarantees a well-formed Result even if n misbehaves.
func Deliver(ctx context.Context, n Notifier, c Confirmation) (res Result) {
	if n == nil {
		return Failed("no notifier configured")
	}
	defer func() {
		if p := recover(); p != nil {
			res = Failed("notifier panicked: %v", p)
		}
	}()
	res = n.Send(ctx, c)
	if !res.Sent && res.Reason == "" {
		res.Reason = "notification failed"
		if err := ctx.Err(); errors.Is(err, context.DeadlineExceeded) {
			res.Reason = "notification timed out"
		}
	}
	return res
}
