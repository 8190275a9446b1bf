package reservation

import (
	"net/http"
	"time"

	"github.com/oakshelf/library-lending-backend/internal/book"
	"github.com/oakshelf/library-lending-backend/internal/pkg/apperror"
)

var (
	ErrNotFound          = apperror.New(http.StatusNotFound, "reservation not found")
	ErrBookNotFound      = apperror.New(http.StatusNotFound, "book not found")
	ErrBookInactive      = apperror.New(http.StatusBadRequest, "book is not accepting reservations")
	ErrDuplicateActive   = apperror.New(http.StatusConflict, "user already has an active reservation for this book")
	ErrInvalidTransition = apperror.New(http.StatusConflict, "action not allowed from the current status")
	ErrNoUnits           = apperror.New(http.StatusConflict, "no units available")
	ErrNotRequester      = apperror.New(http.StatusForbidden, "only the requester may cancel a reservation")
	ErrApproverRequired  = apperror.New(http.StatusForbidden, "approver role required")
	ErrKindMismatch      = apperror.New(http.StatusBadRequest, "issue applies to borrow requests only")
	ErrNoPhysicalCopies  = apperror.New(http.StatusBadRequest, "book has no physical copies to borrow")
	ErrNoDigitalFile     = apperror.New(http.StatusBadRequest, "book has no digital file available")
	ErrNotApprovedYet    = apperror.New(http.StatusForbidden, "download not approved")

	// Internal-consistency failures. These indicate a locking bug, not a
	// user error; the surrounding operation is aborted, state is never
	// silently repaired.
	ErrInventoryDrift  = apperror.New(http.StatusInternalServerError, "inventory counters inconsistent")
	ErrWaitlistCorrupt = apperror.New(http.StatusInternalServerError, "waitlist positions inconsistent")
)

// RequestKind is fixed at creation: physical copies are borrowed, digital
// files are downloaded.
type RequestKind string

const (
	KindBorrow   RequestKind = "borrow"
	KindDownload RequestKind = "download"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusIssued     Status = "issued"
	StatusReturned   Status = "returned"
	StatusWaitlisted Status = "waitlisted"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further transition can leave the status.
// Terminal reservations are retained for audit, never deleted.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusReturned || s == StatusCancelled
}

// Reservation is one user's claim on a book, tracked through the
// pending/approved/issued lifecycle or the waitlist.
type Reservation struct {
	ID        string
	BookID    string
	BookTitle string
	UserID    string
	UserName  string
	Kind      RequestKind
	Status    Status
	Note      *string

	// WaitlistPosition is set only while Status is waitlisted. Positions
	// for one book always form the contiguous sequence 1..N.
	WaitlistPosition *int

	// DueAt is set on transition into issued.
	DueAt *time.Time

	ApprovedAt   *time.Time
	ApprovedBy   *string
	RejectedAt   *time.Time
	RejectedBy   *string
	RejectReason *string
	IssuedAt     *time.Time
	IssuedBy     *string
	ReturnedAt   *time.Time
	ReturnedBy   *string
	CancelledAt  *time.Time

	// NotifiedAt is stamped when the reservation is promoted off the
	// waitlist and the user is told a copy freed up.
	NotifiedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BookStock is the slice of the book row the state machine needs, read under
// a row lock so counter and waitlist mutations are serialized per book.
type BookStock struct {
	ID             string
	Title          string
	Kind           book.Kind
	Active         bool
	TotalUnits     int
	AvailableUnits int
	LoanDays       int
	FileKey        *string
}

// HasPhysical reports whether the title circulates physical copies.
func (s *BookStock) HasPhysical() bool {
	return s.Kind == book.KindPhysical || s.Kind == book.KindHybrid
}

// HasDigital reports whether the title can offer a digital download.
func (s *BookStock) HasDigital() bool {
	return s.Kind == book.KindDigital || s.Kind == book.KindHybrid
}

// Filter defines parameters for listing reservations.
type Filter struct {
	UserID    string
	BookID    string
	Status    string
	Kind      string
	Overdue   bool // issued reservations past their due date
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
