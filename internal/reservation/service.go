package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/oakshelf/library-lending-backend/internal/notify"
	"github.com/oakshelf/library-lending-backend/internal/user"
)

type CreateRequest struct {
	BookID string
	UserID string
	Kind   string
	Note   *string
}

// UserDirectory is the slice of the user service the state machine needs to
// re-validate approver roles. The router already gates approver routes; this
// check is the defensive second line.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Reservation, error)
	Cancel(ctx context.Context, requesterID, id string) error
	Approve(ctx context.Context, approverID, id string) (*Reservation, error)
	Reject(ctx context.Context, approverID, id, reason string) (*Reservation, error)
	Issue(ctx context.Context, approverID, id string) (*Reservation, error)
	Return(ctx context.Context, approverID, id string) (*Reservation, error)

	GetByID(ctx context.Context, id string) (*Reservation, error)
	List(ctx context.Context, filter Filter) ([]*Reservation, int, error)
	ListWaitlist(ctx context.Context, bookID string) ([]*Reservation, error)
}

type service struct {
	repo     Repository
	users    UserDirectory
	notifier notify.Notifier
}

func NewService(repo Repository, users UserDirectory, notifier notify.Notifier) Service {
	return &service{
		repo:     repo,
		users:    users,
		notifier: notifier,
	}
}

func (s *service) requireApprover(ctx context.Context, approverID string) error {
	u, err := s.users.GetByID(ctx, approverID)
	if err != nil {
		return ErrApproverRequired
	}
	if !u.IsActive || !u.CanApprove() {
		return ErrApproverRequired
	}
	return nil
}

// Create admits a new claim. For borrow requests the outcome depends on
// availability: a free unit routes to pending, an exhausted pool routes to
// the waitlist. Neither outcome consumes a unit; units are only claimed at
// issue time.
func (s *service) Create(ctx context.Context, req CreateRequest) (*Reservation, error) {
	kind := RequestKind(req.Kind)
	if kind != KindBorrow && kind != KindDownload {
		return nil, ErrKindMismatch
	}

	res := &Reservation{
		BookID: req.BookID,
		UserID: req.UserID,
		Kind:   kind,
		Note:   req.Note,
	}

	err := s.repo.InTx(ctx, func(tx Repository) error {
		stock, err := tx.LockBook(ctx, req.BookID)
		if err != nil {
			return err
		}
		if !stock.Active {
			return ErrBookInactive
		}

		active, err := tx.HasActive(ctx, req.BookID, req.UserID)
		if err != nil {
			return err
		}
		if active {
			return ErrDuplicateActive
		}

		switch kind {
		case KindBorrow:
			if !stock.HasPhysical() {
				return ErrNoPhysicalCopies
			}
			if stock.AvailableUnits > 0 {
				res.Status = StatusPending
			} else {
				n, err := tx.CountWaitlisted(ctx, req.BookID)
				if err != nil {
					return err
				}
				pos := n + 1
				res.Status = StatusWaitlisted
				res.WaitlistPosition = &pos
			}
		case KindDownload:
			if !stock.HasDigital() || stock.FileKey == nil {
				return ErrNoDigitalFile
			}
			res.Status = StatusPending
		}

		res.BookTitle = stock.Title
		return tx.Create(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// Cancel retires a pending or waitlisted reservation. Only the requester may
// cancel; a cancelled waitlist slot renumbers everyone behind it but promotes
// no one (promotion only happens when a unit frees up).
func (s *service) Cancel(ctx context.Context, requesterID, id string) error {
	return s.repo.InTx(ctx, func(tx Repository) error {
		res, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if res.UserID != requesterID {
			return ErrNotRequester
		}

		// Serialize with other waitlist/counter mutations, then re-read
		// so the status check is made under the lock.
		if _, err := tx.LockBook(ctx, res.BookID); err != nil {
			return err
		}
		res, err = tx.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if res.Status != StatusPending && res.Status != StatusWaitlisted {
			return ErrInvalidTransition
		}

		var freedPosition int
		if res.Status == StatusWaitlisted {
			if res.WaitlistPosition == nil {
				return ErrWaitlistCorrupt
			}
			freedPosition = *res.WaitlistPosition
		}

		now := time.Now().UTC()
		res.Status = StatusCancelled
		res.WaitlistPosition = nil
		res.CancelledAt = &now
		if err := tx.Update(ctx, res); err != nil {
			return err
		}

		if freedPosition > 0 {
			return tx.ShiftWaitlistAfter(ctx, res.BookID, freedPosition)
		}
		return nil
	})
}

// Approve moves a pending reservation to approved. For download requests
// approval itself grants access; no further transition is needed.
func (s *service) Approve(ctx context.Context, approverID, id string) (*Reservation, error) {
	if err := s.requireApprover(ctx, approverID); err != nil {
		return nil, err
	}

	var res *Reservation
	var fileKey *string
	err := s.repo.InTx(ctx, func(tx Repository) error {
		var err error
		res, err = tx.GetByID(ctx, id)
		if err != nil {
			return err
		}

		// Taking the book lock serializes with cancel and issue; the
		// re-read makes the status check current under it.
		stock, err := tx.LockBook(ctx, res.BookID)
		if err != nil {
			return err
		}
		res, err = tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if res.Status != StatusPending {
			return ErrInvalidTransition
		}

		if res.Kind == KindDownload {
			fileKey = stock.FileKey
		}

		now := time.Now().UTC()
		res.Status = StatusApproved
		res.ApprovedAt = &now
		res.ApprovedBy = &approverID
		return tx.Update(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	msg := notify.Message{
		Event:         notify.EventApproved,
		UserID:        res.UserID,
		BookID:        res.BookID,
		ReservationID: res.ID,
		Body:          fmt.Sprintf("Your request for %q was approved.", res.BookTitle),
		// For downloads approval grants access, so the notification
		// carries the file reference.
		FileKey: fileKey,
	}
	s.notifier.Deliver(ctx, msg)

	return res, nil
}

// Reject refuses a pending or approved reservation. An issued loan can no
// longer be rejected; only return retires it.
func (s *service) Reject(ctx context.Context, approverID, id, reason string) (*Reservation, error) {
	if err := s.requireApprover(ctx, approverID); err != nil {
		return nil, err
	}

	var res *Reservation
	err := s.repo.InTx(ctx, func(tx Repository) error {
		var err error
		res, err = tx.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if _, err := tx.LockBook(ctx, res.BookID); err != nil {
			return err
		}
		res, err = tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if res.Status != StatusPending && res.Status != StatusApproved {
			return ErrInvalidTransition
		}

		now := time.Now().UTC()
		res.Status = StatusRejected
		res.RejectedAt = &now
		res.RejectedBy = &approverID
		if reason != "" {
			res.RejectReason = &reason
		}
		return tx.Update(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Deliver(ctx, notify.Message{
		Event:         notify.EventRejected,
		UserID:        res.UserID,
		BookID:        res.BookID,
		ReservationID: res.ID,
		Body:          fmt.Sprintf("Your request for %q was rejected.", res.BookTitle),
		Reason:        res.RejectReason,
	})

	return res, nil
}

// Issue hands a physical unit to an approved borrower. This is where the
// unit is actually claimed: the conditional decrement under the book lock
// guarantees two issuers cannot both take the last copy.
func (s *service) Issue(ctx context.Context, approverID, id string) (*Reservation, error) {
	if err := s.requireApprover(ctx, approverID); err != nil {
		return nil, err
	}

	var res *Reservation
	err := s.repo.InTx(ctx, func(tx Repository) error {
		var err error
		res, err = tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if res.Kind != KindBorrow {
			return ErrKindMismatch
		}

		stock, err := tx.LockBook(ctx, res.BookID)
		if err != nil {
			return err
		}
		res, err = tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if res.Status != StatusApproved {
			return ErrInvalidTransition
		}

		if err := tx.ReserveUnit(ctx, res.BookID); err != nil {
			return err
		}

		now := time.Now().UTC()
		due := now.AddDate(0, 0, stock.LoanDays)
		res.Status = StatusIssued
		res.IssuedAt = &now
		res.IssuedBy = &approverID
		res.DueAt = &due
		return tx.Update(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Deliver(ctx, notify.Message{
		Event:         notify.EventIssued,
		UserID:        res.UserID,
		BookID:        res.BookID,
		ReservationID: res.ID,
		Body:          fmt.Sprintf("%q was issued to you. Due back %s.", res.BookTitle, res.DueAt.Format("2006-01-02")),
		DueAt:         res.DueAt,
	})

	return res, nil
}

// Return takes an issued copy back: the unit is released first, then the
// waitlist head (if any) is promoted to pending, in that order, so a
// promoted requester never observes an empty pool. Promotion does not claim
// the freed unit; the promoted reservation re-enters the normal
// pending -> approved -> issue path.
func (s *service) Return(ctx context.Context, approverID, id string) (*Reservation, error) {
	if err := s.requireApprover(ctx, approverID); err != nil {
		return nil, err
	}

	var res, promoted *Reservation
	err := s.repo.InTx(ctx, func(tx Repository) error {
		var err error
		res, err = tx.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if _, err := tx.LockBook(ctx, res.BookID); err != nil {
			return err
		}
		res, err = tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if res.Status != StatusIssued {
			return ErrInvalidTransition
		}

		if err := tx.ReleaseUnit(ctx, res.BookID); err != nil {
			return err
		}

		now := time.Now().UTC()
		res.Status = StatusReturned
		res.ReturnedAt = &now
		res.ReturnedBy = &approverID
		if err := tx.Update(ctx, res); err != nil {
			return err
		}

		promoted, err = s.promoteHead(ctx, tx, res.BookID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	// A returned book generates no notification for the returner; only the
	// promoted requester (if any) hears about it.
	if promoted != nil {
		s.notifier.Deliver(ctx, notify.Message{
			Event:         notify.EventWaitlistPromoted,
			UserID:        promoted.UserID,
			BookID:        promoted.BookID,
			ReservationID: promoted.ID,
			Body:          fmt.Sprintf("A copy of %q is available. Your request is now pending approval.", promoted.BookTitle),
		})
	}

	return res, nil
}

// promoteHead moves the reservation at position 1 to pending and renumbers
// the rest. Must run under the book lock.
func (s *service) promoteHead(ctx context.Context, tx Repository, bookID string, now time.Time) (*Reservation, error) {
	head, err := tx.WaitlistHead(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, nil
	}
	if head.WaitlistPosition == nil || *head.WaitlistPosition != 1 {
		// Positions must be contiguous from 1; anything else means a
		// renumbering was lost.
		return nil, ErrWaitlistCorrupt
	}

	head.Status = StatusPending
	head.WaitlistPosition = nil
	head.NotifiedAt = &now
	if err := tx.Update(ctx, head); err != nil {
		return nil, err
	}

	if err := tx.ShiftWaitlistAfter(ctx, bookID, 1); err != nil {
		return nil, err
	}
	return head, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Reservation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Reservation, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) ListWaitlist(ctx context.Context, bookID string) ([]*Reservation, error) {
	return s.repo.ListWaitlist(ctx, bookID)
}
