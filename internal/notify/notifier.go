package notify

import (
	"context"
	"time"
)

// Event identifies the state change a message is about.
type Event string

const (
	EventApproved         Event = "reservation.approved"
	EventRejected         Event = "reservation.rejected"
	EventIssued           Event = "reservation.issued"
	EventWaitlistPromoted Event = "reservation.waitlist_promoted"
)

// Message is the payload delivered to a user when a reservation changes state.
type Message struct {
	Event         Event
	UserID        string
	BookID        string
	ReservationID string
	Body          string

	// FileKey is set on approval of a download request.
	FileKey *string
	// DueAt is set on issue.
	DueAt *time.Time
	// Reason is set on rejection.
	Reason *string
}

// Notifier is the outbound port for user-facing notifications.
// Delivery is best-effort: implementations must not block the caller on
// recipient availability, and there is no error return, so a failed delivery
// can never roll back the state transition that produced it.
type Notifier interface {
	Deliver(ctx context.Context, msg Message)
}
