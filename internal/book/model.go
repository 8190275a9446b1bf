package book

import (
	"errors"
	"time"
)

var (
	ErrNotFound              = errors.New("book not found")
	ErrTitleRequired         = errors.New("title is required")
	ErrAuthorRequired        = errors.New("author is required")
	ErrInvalidKind           = errors.New("invalid book kind")
	ErrInvalidUnits          = errors.New("unit count must not be negative")
	ErrUnitsUnavailable      = errors.New("not enough available units to remove")
	ErrHasActiveReservations = errors.New("book has active reservations")
	ErrNoCover               = errors.New("book has no cover image")
	ErrNoDigitalFile         = errors.New("book has no digital file")
	ErrNotDigital            = errors.New("book has no digital edition")
	ErrNotPhysical           = errors.New("book has no physical copies")
	ErrInvalidLoanDays       = errors.New("loan days must be at least 1")
)

// Kind describes which editions of a title the library lends out.
type Kind string

const (
	KindPhysical Kind = "physical"
	KindDigital  Kind = "digital"
	KindHybrid   Kind = "hybrid"
)

// ValidKinds lists every accepted book kind.
var ValidKinds = []Kind{KindPhysical, KindDigital, KindHybrid}

// Book represents a lendable catalog title. Physical copies are counted by
// TotalUnits/AvailableUnits; digital access is never capacity-limited.
type Book struct {
	ID          string
	Title       string
	Author      string
	ISBN        *string
	Description *string
	Kind        Kind
	GenreID     *string
	GenreName   *string

	// Unit counters. AvailableUnits never exceeds TotalUnits; both are
	// mutated only through the repository's conditional updates.
	TotalUnits     int
	AvailableUnits int

	// LoanDays is the loan duration applied when a copy is issued.
	LoanDays int

	FileKey  *string // digital asset storage key
	CoverKey *string // cover image storage key
	ThumbKey *string // cover thumbnail storage key

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPhysical reports whether the title circulates physical copies.
func (b *Book) HasPhysical() bool {
	return b.Kind == KindPhysical || b.Kind == KindHybrid
}

// HasDigital reports whether the title can offer a digital download.
func (b *Book) HasDigital() bool {
	return b.Kind == KindDigital || b.Kind == KindHybrid
}

// Filter defines parameters for listing books.
type Filter struct {
	Keyword   string // matches title or author
	Kind      string
	GenreID   string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
