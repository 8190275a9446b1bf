package announcement

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("announcement not found")
	ErrTitleRequired   = errors.New("title is required")
	ErrContentRequired = errors.New("content is required")
)

// Announcement represents a library-wide notice (closures, new arrivals, policy changes).
type Announcement struct {
	ID        string
	Title     string
	Content   string
	Pinned    bool
	PostedBy  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter defines parameters for listing announcements.
type Filter struct {
	Keyword   string
	Pinned    *bool
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}
