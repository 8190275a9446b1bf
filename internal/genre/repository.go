package genre

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, g *Genre) error
	GetByID(ctx context.Context, id string) (*Genre, error)
	List(ctx context.Context, filter Filter) ([]*Genre, int, error)
	Update(ctx context.Context, g *Genre) error
	Delete(ctx context.Context, id string) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) Create(ctx context.Context, g *Genre) error {
	const query = `
		INSERT INTO public.genres (name, description)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query, g.Name, g.Description).
		Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return fmt.Errorf("create genre failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Genre, error) {
	const query = `
		SELECT id, name, description, created_at
		FROM public.genres
		WHERE id = $1
	`
	var g Genre
	if err := r.pool.QueryRow(ctx, query, id).Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get genre failed: %w", err)
	}
	return &g, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Genre, int, error) {
	const queryBase = `
		SELECT id, name, description, created_at, count(*) OVER() as total_count
		FROM public.genres
		ORDER BY name ASC
		LIMIT $1 OFFSET $2
	`

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 50
	}
	offset := (filter.Page - 1) * filter.PageSize

	rows, err := r.pool.Query(ctx, queryBase, filter.PageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list genres failed: %w", err)
	}
	defer rows.Close()

	var result []*Genre
	var total int

	for rows.Next() {
		var g Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("scan genre failed: %w", err)
		}
		result = append(result, &g)
	}

	return result, total, nil
}

func (r *pgxRepository) Update(ctx context.Context, g *Genre) error {
	const query = `
		UPDATE public.genres
		SET name = $1, description = $2
		WHERE id = $3
	`
	ct, err := r.pool.Exec(ctx, query, g.Name, g.Description, g.ID)
	if err != nil {
		return fmt.Errorf("update genre failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM public.genres WHERE id = $1`
	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete genre failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
