package reservation

import (
	"context"
	"errors"
	"fmt"
)

// Waitlist queries. Positions for one book always form the contiguous
// sequence 1..N; every removal is followed by a ShiftWaitlistAfter under the
// same book lock, which is what keeps that true.

func (r *pgxRepository) CountWaitlisted(ctx context.Context, bookID string) (int, error) {
	const query = `
		SELECT count(*) FROM public.reservations
		WHERE book_id = $1 AND status = 'waitlisted'
	`
	var n int
	if err := r.db.QueryRow(ctx, query, bookID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count waitlisted failed: %w", err)
	}
	return n, nil
}

func (r *pgxRepository) WaitlistHead(ctx context.Context, bookID string) (*Reservation, error) {
	query := `
		SELECT` + reservationColumns + reservationJoins + `
		WHERE r.book_id = $1 AND r.status = 'waitlisted'
		ORDER BY r.waitlist_position ASC
		LIMIT 1
	`
	res, err := scanReservation(r.db.QueryRow(ctx, query, bookID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Empty waitlist.
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

func (r *pgxRepository) ListWaitlist(ctx context.Context, bookID string) ([]*Reservation, error) {
	query := `
		SELECT` + reservationColumns + reservationJoins + `
		WHERE r.book_id = $1 AND r.status = 'waitlisted'
		ORDER BY r.waitlist_position ASC
	`
	rows, err := r.db.Query(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("list waitlist failed: %w", err)
	}
	defer rows.Close()

	var result []*Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(
			&res.ID, &res.BookID, &res.BookTitle, &res.UserID, &res.UserName,
			&res.Kind, &res.Status, &res.Note, &res.WaitlistPosition, &res.DueAt,
			&res.ApprovedAt, &res.ApprovedBy, &res.RejectedAt, &res.RejectedBy, &res.RejectReason,
			&res.IssuedAt, &res.IssuedBy, &res.ReturnedAt, &res.ReturnedBy, &res.CancelledAt,
			&res.NotifiedAt, &res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan waitlist entry failed: %w", err)
		}
		result = append(result, &res)
	}
	return result, nil
}

func (r *pgxRepository) ShiftWaitlistAfter(ctx context.Context, bookID string, position int) error {
	const query = `
		UPDATE public.reservations
		SET waitlist_position = waitlist_position - 1, updated_at = now()
		WHERE book_id = $1 AND status = 'waitlisted' AND waitlist_position > $2
	`
	if _, err := r.db.Exec(ctx, query, bookID, position); err != nil {
		return fmt.Errorf("shift waitlist failed: %w", err)
	}
	return nil
}
