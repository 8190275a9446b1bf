package reservation

import (
	"context"
	"fmt"
)

// Inventory operations. Both updates are conditional so the
// 0 <= available_units <= total_units invariant holds no matter how callers
// interleave; under LockBook they additionally serialize with the waitlist
// mutations for the same book.

func (r *pgxRepository) ReserveUnit(ctx context.Context, bookID string) error {
	const query = `
		UPDATE public.books
		SET available_units = available_units - 1, updated_at = now()
		WHERE id = $1 AND available_units > 0
	`
	ct, err := r.db.Exec(ctx, query, bookID)
	if err != nil {
		return fmt.Errorf("reserve unit failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNoUnits
	}
	return nil
}

func (r *pgxRepository) ReleaseUnit(ctx context.Context, bookID string) error {
	const query = `
		UPDATE public.books
		SET available_units = available_units + 1, updated_at = now()
		WHERE id = $1 AND available_units < total_units
	`
	ct, err := r.db.Exec(ctx, query, bookID)
	if err != nil {
		return fmt.Errorf("release unit failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		// Releasing at the cap means a unit was freed that was never
		// held. Refuse instead of clamping.
		return ErrInventoryDrift
	}
	return nil
}
