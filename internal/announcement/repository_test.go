package announcement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnnouncementSortColumn(t *testing.T) {
	assert.Equal(t, "updated_at", announcementSortColumn("updated_at"))
	assert.Equal(t, "title", announcementSortColumn("title"))
	assert.Equal(t, "created_at", announcementSortColumn(""))
	assert.Equal(t, "created_at", announcementSortColumn("title; DROP TABLE announcements--"))
}
