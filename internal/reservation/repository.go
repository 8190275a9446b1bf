package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists reservations and runs the unit-counter and waitlist
// mutations that must stay consistent with them. Everything that touches a
// book's counters or its waitlist is expected to run inside InTx after
// LockBook, which serializes those mutations per book.
type Repository interface {
	// InTx runs fn against a transaction-bound copy of the repository.
	// The transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Repository) error) error

	Create(ctx context.Context, res *Reservation) error
	GetByID(ctx context.Context, id string) (*Reservation, error)
	Update(ctx context.Context, res *Reservation) error
	List(ctx context.Context, filter Filter) ([]*Reservation, int, error)

	// HasActive reports whether the user already holds a non-terminal
	// reservation for the book.
	HasActive(ctx context.Context, bookID, userID string) (bool, error)

	// LockBook reads the book row FOR UPDATE. Valid only inside InTx.
	LockBook(ctx context.Context, bookID string) (*BookStock, error)

	// ReserveUnit atomically claims one available unit. Returns ErrNoUnits
	// when none remain.
	ReserveUnit(ctx context.Context, bookID string) error

	// ReleaseUnit returns one unit to the pool. Returns ErrInventoryDrift
	// when the counter is already at total_units, which signals a
	// consistency bug rather than a user error.
	ReleaseUnit(ctx context.Context, bookID string) error

	CountWaitlisted(ctx context.Context, bookID string) (int, error)
	WaitlistHead(ctx context.Context, bookID string) (*Reservation, error)
	ListWaitlist(ctx context.Context, bookID string) ([]*Reservation, error)

	// ShiftWaitlistAfter decrements the position of every waitlisted
	// reservation for the book with a position strictly greater than the
	// given one, restoring 1..N contiguity after a removal.
	ShiftWaitlistAfter(ctx context.Context, bookID string, position int) error
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query code
// serves pooled and transactional execution.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxRepository struct {
	pool *pgxpool.Pool
	db   dbtx
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool, db: pool}
}

func (r *pgxRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgxRepository{pool: r.pool, db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction failed: %w", err)
	}
	return nil
}

// Sortable columns keyed by their API name. Sorting is interpolated into the
// SQL text, so only values from this map may ever reach it; unknown input
// falls back to created_at.
var reservationSortColumns = map[string]string{
	"created_at": "r.created_at",
	"due_at":     "r.due_at",
	"status":     "r.status",
}

func reservationSortColumn(name string) string {
	if col, ok := reservationSortColumns[name]; ok {
		return col
	}
	return "r.created_at"
}

const reservationColumns = `
	r.id, r.book_id, b.title, r.user_id, COALESCE(u.display_name, u.email),
	r.kind, r.status, r.note, r.waitlist_position, r.due_at,
	r.approved_at, r.approved_by, r.rejected_at, r.rejected_by, r.reject_reason,
	r.issued_at, r.issued_by, r.returned_at, r.returned_by, r.cancelled_at,
	r.notified_at, r.created_at, r.updated_at`

const reservationJoins = `
	FROM public.reservations r
	JOIN public.books b ON r.book_id = b.id
	JOIN public.users u ON r.user_id = u.id`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var res Reservation
	err := row.Scan(
		&res.ID, &res.BookID, &res.BookTitle, &res.UserID, &res.UserName,
		&res.Kind, &res.Status, &res.Note, &res.WaitlistPosition, &res.DueAt,
		&res.ApprovedAt, &res.ApprovedBy, &res.RejectedAt, &res.RejectedBy, &res.RejectReason,
		&res.IssuedAt, &res.IssuedBy, &res.ReturnedAt, &res.ReturnedBy, &res.CancelledAt,
		&res.NotifiedAt, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan reservation failed: %w", err)
	}
	return &res, nil
}

func (r *pgxRepository) Create(ctx context.Context, res *Reservation) error {
	const query = `
		INSERT INTO public.reservations (book_id, user_id, kind, status, note, waitlist_position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		res.BookID, res.UserID, res.Kind, res.Status, res.Note, res.WaitlistPosition,
	).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// Partial unique index over non-terminal reservations per
			// (book_id, user_id).
			return ErrDuplicateActive
		}
		return fmt.Errorf("create reservation failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Reservation, error) {
	query := `SELECT` + reservationColumns + reservationJoins + ` WHERE r.id = $1`
	return scanReservation(r.db.QueryRow(ctx, query, id))
}

func (r *pgxRepository) Update(ctx context.Context, res *Reservation) error {
	const query = `
		UPDATE public.reservations
		SET status = $1, waitlist_position = $2, due_at = $3,
		    approved_at = $4, approved_by = $5,
		    rejected_at = $6, rejected_by = $7, reject_reason = $8,
		    issued_at = $9, issued_by = $10,
		    returned_at = $11, returned_by = $12,
		    cancelled_at = $13, notified_at = $14,
		    updated_at = now()
		WHERE id = $15
	`
	ct, err := r.db.Exec(ctx, query,
		res.Status, res.WaitlistPosition, res.DueAt,
		res.ApprovedAt, res.ApprovedBy,
		res.RejectedAt, res.RejectedBy, res.RejectReason,
		res.IssuedAt, res.IssuedBy,
		res.ReturnedAt, res.ReturnedBy,
		res.CancelledAt, res.NotifiedAt,
		res.ID,
	)
	if err != nil {
		return fmt.Errorf("update reservation failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Reservation, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(
		"r.id", "r.book_id", "b.title", "r.user_id", "COALESCE(u.display_name, u.email)",
		"r.kind", "r.status", "r.note", "r.waitlist_position", "r.due_at",
		"r.approved_at", "r.approved_by", "r.rejected_at", "r.rejected_by", "r.reject_reason",
		"r.issued_at", "r.issued_by", "r.returned_at", "r.returned_by", "r.cancelled_at",
		"r.notified_at", "r.created_at", "r.updated_at",
		"count(*) OVER() as total_count",
	).
		From("public.reservations r").
		Join("public.books b ON r.book_id = b.id").
		Join("public.users u ON r.user_id = u.id")

	if filter.UserID != "" {
		query = query.Where(squirrel.Eq{"r.user_id": filter.UserID})
	}
	if filter.BookID != "" {
		query = query.Where(squirrel.Eq{"r.book_id": filter.BookID})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"r.status": filter.Status})
	}
	if filter.Kind != "" {
		query = query.Where(squirrel.Eq{"r.kind": filter.Kind})
	}
	if filter.Overdue {
		query = query.Where(squirrel.Eq{"r.status": StatusIssued}).
			Where(squirrel.Expr("r.due_at < now()"))
	}

	// Sorting
	orderDir := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		orderDir = "ASC"
	}
	query = query.OrderBy(reservationSortColumn(filter.SortBy) + " " + orderDir)

	// Pagination
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize
	query = query.Limit(uint64(filter.PageSize)).Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list reservations query failed: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reservations failed: %w", err)
	}
	defer rows.Close()

	var result []*Reservation
	var total int

	for rows.Next() {
		var res Reservation
		if err := rows.Scan(
			&res.ID, &res.BookID, &res.BookTitle, &res.UserID, &res.UserName,
			&res.Kind, &res.Status, &res.Note, &res.WaitlistPosition, &res.DueAt,
			&res.ApprovedAt, &res.ApprovedBy, &res.RejectedAt, &res.RejectedBy, &res.RejectReason,
			&res.IssuedAt, &res.IssuedBy, &res.ReturnedAt, &res.ReturnedBy, &res.CancelledAt,
			&res.NotifiedAt, &res.CreatedAt, &res.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan reservation failed: %w", err)
		}
		result = append(result, &res)
	}

	return result, total, nil
}

func (r *pgxRepository) HasActive(ctx context.Context, bookID, userID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM public.reservations
			WHERE book_id = $1 AND user_id = $2
			  AND status IN ('pending', 'approved', 'issued', 'waitlisted')
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, bookID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active reservation failed: %w", err)
	}
	return exists, nil
}

func (r *pgxRepository) LockBook(ctx context.Context, bookID string) (*BookStock, error) {
	const query = `
		SELECT id, title, kind, active, total_units, available_units, loan_days, file_key
		FROM public.books
		WHERE id = $1
		FOR UPDATE
	`
	var s BookStock
	err := r.db.QueryRow(ctx, query, bookID).Scan(
		&s.ID, &s.Title, &s.Kind, &s.Active,
		&s.TotalUnits, &s.AvailableUnits, &s.LoanDays, &s.FileKey,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("lock book failed: %w", err)
	}
	return &s, nil
}
