package http

import (
	"time"

	bookHttp "github.com/oakshelf/library-lending-backend/internal/book/http"
	"github.com/oakshelf/library-lending-backend/internal/pkg/request"
	"github.com/oakshelf/library-lending-backend/internal/reservation"
	userHttp "github.com/oakshelf/library-lending-backend/internal/user/http"
)

// ListReservationsRequest defines query parameters for listing reservations.
type ListReservationsRequest struct {
	request.ListParams
	BookID  string `form:"book_id" binding:"omitempty,uuid"`
	UserID  string `form:"user_id" binding:"omitempty,uuid"`
	Status  string `form:"status" binding:"omitempty,oneof=pending approved rejected issued returned waitlisted cancelled"`
	Kind    string `form:"kind" binding:"omitempty,oneof=borrow download"`
	Overdue bool   `form:"overdue"`
	SortBy  string `form:"sort_by" binding:"omitempty,oneof=created_at due_at status"`
}

type ReservationResponse struct {
	ID               string            `json:"id"`
	Book             bookHttp.BookTag  `json:"book"`
	User             userHttp.UserTag  `json:"user"`
	Kind             string            `json:"kind"`
	Status           string            `json:"status"`
	Note             *string           `json:"note,omitempty"`
	WaitlistPosition *int              `json:"waitlist_position,omitempty"`
	DueAt            *time.Time        `json:"due_at,omitempty"`
	ApprovedAt       *time.Time        `json:"approved_at,omitempty"`
	RejectedAt       *time.Time        `json:"rejected_at,omitempty"`
	RejectReason     *string           `json:"reject_reason,omitempty"`
	IssuedAt         *time.Time        `json:"issued_at,omitempty"`
	ReturnedAt       *time.Time        `json:"returned_at,omitempty"`
	CancelledAt      *time.Time        `json:"cancelled_at,omitempty"`
	NotifiedAt       *time.Time        `json:"notified_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func NewReservationResponse(r *reservation.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:               r.ID,
		Book:             bookHttp.BookTag{ID: r.BookID, Title: r.BookTitle},
		User:             userHttp.UserTag{ID: r.UserID, Name: r.UserName},
		Kind:             string(r.Kind),
		Status:           string(r.Status),
		Note:             r.Note,
		WaitlistPosition: r.WaitlistPosition,
		DueAt:            r.DueAt,
		ApprovedAt:       r.ApprovedAt,
		RejectedAt:       r.RejectedAt,
		RejectReason:     r.RejectReason,
		IssuedAt:         r.IssuedAt,
		ReturnedAt:       r.ReturnedAt,
		CancelledAt:      r.CancelledAt,
		NotifiedAt:       r.NotifiedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type CreateReservationRequest struct {
	BookID string  `json:"book_id" binding:"required,uuid"`
	Kind   string  `json:"kind" binding:"required,oneof=borrow download"`
	Note   *string `json:"note"`
}

type RejectReservationRequest struct {
	Reason string `json:"reason"`
}
