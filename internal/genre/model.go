package genre

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("genre not found")
	ErrNameRequired = errors.New("name is required")
)

// Genre represents a catalog category (e.g., Science Fiction).
type Genre struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Filter defines parameters for listing genres.
type Filter struct {
	Page     int
	PageSize int
}
