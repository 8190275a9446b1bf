package http

import (
	"time"

	"github.com/oakshelf/library-lending-backend/internal/book"
	"github.com/oakshelf/library-lending-backend/internal/pkg/request"
)

// ListBooksRequest defines query parameters for listing books.
type ListBooksRequest struct {
	request.ListParams
	Keyword string `form:"keyword"`
	Kind    string `form:"kind" binding:"omitempty,oneof=physical digital hybrid"`
	GenreID string `form:"genre_id" binding:"omitempty,uuid"`
	Active  *bool  `form:"active"`
	SortBy  string `form:"sort_by" binding:"omitempty,oneof=title author created_at"`
}

type BookResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Author         string    `json:"author"`
	ISBN           *string   `json:"isbn,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Kind           string    `json:"kind"`
	Genre          *GenreTag `json:"genre,omitempty"`
	TotalUnits     int       `json:"total_units"`
	AvailableUnits int       `json:"available_units"`
	LoanDays       int       `json:"loan_days"`
	HasFile        bool      `json:"has_file"`
	HasCover       bool      `json:"has_cover"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GenreTag is the minimal genre reference embedded in book responses.
type GenreTag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BookTag is the minimal book reference embedded in other responses.
type BookTag struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func NewBookResponse(b *book.Book) BookResponse {
	resp := BookResponse{
		ID:             b.ID,
		Title:          b.Title,
		Author:         b.Author,
		ISBN:           b.ISBN,
		Description:    b.Description,
		Kind:           string(b.Kind),
		TotalUnits:     b.TotalUnits,
		AvailableUnits: b.AvailableUnits,
		LoanDays:       b.LoanDays,
		HasFile:        b.FileKey != nil,
		HasCover:       b.CoverKey != nil,
		Active:         b.Active,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
	if b.GenreID != nil && b.GenreName != nil {
		resp.Genre = &GenreTag{ID: *b.GenreID, Name: *b.GenreName}
	}
	return resp
}

type CreateBookRequest struct {
	Title       string  `json:"title" binding:"required"`
	Author      string  `json:"author" binding:"required"`
	ISBN        *string `json:"isbn"`
	Description *string `json:"description"`
	Kind        string  `json:"kind" binding:"required,oneof=physical digital hybrid"`
	GenreID     *string `json:"genre_id" binding:"omitempty,uuid"`
	TotalUnits  int     `json:"total_units" binding:"omitempty,min=0"`
	LoanDays    *int    `json:"loan_days" binding:"omitempty,min=1"`
}

type UpdateBookRequest struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	ISBN        *string `json:"isbn"`
	Description *string `json:"description"`
	GenreID     *string `json:"genre_id"`
	LoanDays    *int    `json:"loan_days" binding:"omitempty,min=1"`
	Active      *bool   `json:"active"`
}

// AdjustUnitsRequest is the payload for adding or removing physical copies.
type AdjustUnitsRequest struct {
	Count int `json:"count" binding:"required,min=1"`
}
