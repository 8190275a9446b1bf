package book

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, b *Book) error
	GetByID(ctx context.Context, id string) (*Book, error)
	List(ctx context.Context, filter Filter) ([]*Book, int, error)
	Update(ctx context.Context, b *Book) error
	Delete(ctx context.Context, id string) error

	// AdjustUnits atomically adds delta to both total_units and
	// available_units. A negative delta only succeeds while enough
	// uncommitted units remain, so copies on loan can never be removed.
	AdjustUnits(ctx context.Context, id string, delta int) (*Book, error)

	// SetMedia persists the storage keys for the cover, thumbnail and
	// digital asset.
	SetMedia(ctx context.Context, b *Book) error

	// CountActiveReservations returns the number of reservations in a
	// non-terminal state referencing the book.
	CountActiveReservations(ctx context.Context, id string) (int, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

// Sortable columns keyed by their API name. Only values from this map may be
// interpolated into the SQL text; unknown input falls back to created_at.
var bookSortColumns = map[string]string{
	"created_at": "b.created_at",
	"title":      "b.title",
	"author":     "b.author",
}

func bookSortColumn(name string) string {
	if col, ok := bookSortColumns[name]; ok {
		return col
	}
	return "b.created_at"
}

const bookSelectColumns = `
	b.id, b.title, b.author, b.isbn, b.description, b.kind, b.genre_id, g.name,
	b.total_units, b.available_units, b.loan_days,
	b.file_key, b.cover_key, b.thumb_key,
	b.active, b.created_at, b.updated_at`

func scanBook(row pgx.Row) (*Book, error) {
	var b Book
	err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description, &b.Kind, &b.GenreID, &b.GenreName,
		&b.TotalUnits, &b.AvailableUnits, &b.LoanDays,
		&b.FileKey, &b.CoverKey, &b.ThumbKey,
		&b.Active, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan book failed: %w", err)
	}
	return &b, nil
}

func (r *pgxRepository) Create(ctx context.Context, b *Book) error {
	const query = `
		INSERT INTO public.books
			(title, author, isbn, description, kind, genre_id, total_units, available_units, loan_days, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		b.Title, b.Author, b.ISBN, b.Description, b.Kind, b.GenreID,
		b.TotalUnits, b.LoanDays, b.Active,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create book failed: %w", err)
	}
	b.AvailableUnits = b.TotalUnits
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Book, error) {
	query := `
		SELECT` + bookSelectColumns + `
		FROM public.books b
		LEFT JOIN public.genres g ON b.genre_id = g.id
		WHERE b.id = $1
	`
	return scanBook(r.pool.QueryRow(ctx, query, id))
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Book, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(
		"b.id", "b.title", "b.author", "b.isbn", "b.description", "b.kind", "b.genre_id", "g.name",
		"b.total_units", "b.available_units", "b.loan_days",
		"b.file_key", "b.cover_key", "b.thumb_key",
		"b.active", "b.created_at", "b.updated_at",
		"count(*) OVER() as total_count",
	).
		From("public.books b").
		LeftJoin("public.genres g ON b.genre_id = g.id")

	if filter.Keyword != "" {
		kw := "%" + filter.Keyword + "%"
		query = query.Where(squirrel.Or{
			squirrel.ILike{"b.title": kw},
			squirrel.ILike{"b.author": kw},
		})
	}
	if filter.Kind != "" {
		query = query.Where(squirrel.Eq{"b.kind": filter.Kind})
	}
	if filter.GenreID != "" {
		query = query.Where(squirrel.Eq{"b.genre_id": filter.GenreID})
	}
	if filter.Active != nil {
		query = query.Where(squirrel.Eq{"b.active": *filter.Active})
	}

	// Sorting
	orderDir := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		orderDir = "ASC"
	}
	query = query.OrderBy(bookSortColumn(filter.SortBy) + " " + orderDir)

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
		return nil, 0, fmt.Errorf("build list books query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list books failed: %w", err)
	}
	defer rows.Close()

	var result []*Book
	var total int

	for rows.Next() {
		var b Book
		if err := rows.Scan(
			&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description, &b.Kind, &b.GenreID, &b.GenreName,
			&b.TotalUnits, &b.AvailableUnits, &b.LoanDays,
			&b.FileKey, &b.CoverKey, &b.ThumbKey,
			&b.Active, &b.CreatedAt, &b.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan book failed: %w", err)
		}
		result = append(result, &b)
	}

	return result, total, nil
}

func (r *pgxRepository) Update(ctx context.Context, b *Book) error {
	const query = `
		UPDATE public.books
		SET title = $1, author = $2, isbn = $3, description = $4, genre_id = $5,
		    loan_days = $6, active = $7, updated_at = now()
		WHERE id = $8
	`
	ct, err := r.pool.Exec(ctx, query,
		b.Title, b.Author, b.ISBN, b.Description, b.GenreID,
		b.LoanDays, b.Active, b.ID,
	)
	if err != nil {
		return fmt.Errorf("update book failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM public.books WHERE id = $1`
	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete book failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) AdjustUnits(ctx context.Context, id string, delta int) (*Book, error) {
	// Both counters move together so available <= total is preserved; the
	// available_units guard stops removal of copies that are out on loan.
	const query = `
		UPDATE public.books
		SET total_units = total_units + $2,
		    available_units = available_units + $2,
		    updated_at = now()
		WHERE id = $1
		  AND total_units + $2 >= 0
		  AND available_units + $2 >= 0
		RETURNING id, total_units, available_units, updated_at
	`
	var bookID string
	var total, available int
	var updatedAt time.Time
	err := r.pool.QueryRow(ctx, query, id, delta).Scan(&bookID, &total, &available, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the book does not exist or the guard refused the
			// delta; the caller disambiguates with a GetByID.
			return nil, ErrUnitsUnavailable
		}
		return nil, fmt.Errorf("adjust units failed: %w", err)
	}

	return r.GetByID(ctx, id)
}

func (r *pgxRepository) SetMedia(ctx context.Context, b *Book) error {
	const query = `
		UPDATE public.books
		SET file_key = $1, cover_key = $2, thumb_key = $3, updated_at = now()
		WHERE id = $4
	`
	ct, err := r.pool.Exec(ctx, query, b.FileKey, b.CoverKey, b.ThumbKey, b.ID)
	if err != nil {
		return fmt.Errorf("set book media failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) CountActiveReservations(ctx context.Context, id string) (int, error) {
	const query = `
		SELECT count(*)
		FROM public.reservations
		WHERE book_id = $1
		  AND status IN ('pending', 'approved', 'issued', 'waitlisted')
	`
	var n int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active reservations failed: %w", err)
	}
	return n, nil
}
