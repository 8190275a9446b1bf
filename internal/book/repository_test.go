package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookSortColumn(t *testing.T) {
	assert.Equal(t, "b.title", bookSortColumn("title"))
	assert.Equal(t, "b.author", bookSortColumn("author"))
	assert.Equal(t, "b.created_at", bookSortColumn(""))
	assert.Equal(t, "b.created_at", bookSortColumn("title; DROP TABLE books--"))
}
