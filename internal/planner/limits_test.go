package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageBounds(t *testing.T) {
	tests := []struct {
		name       string
		page       Page
		n          int
		start, end int
	}{
		{name: "unlimited", page: Page{}, n: 7, start: 0, end: 7},
		{name: "first page", page: Page{Limit: 3}, n: 7, start: 0, end: 3},
		{name: "last partial page", page: Page{Limit: 3, Index: 2}, n: 7, start: 6, end: 7},
		{name: "past the end", page: Page{Limit: 3, Index: 5}, n: 7, start: 7, end: 7},
		{name: "negative index", page: Page{Limit: 3, Index: -1}, n: 7, start: 0, end: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.page.Bounds(tt.n)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestPageOffset(t *testing.T) {
	assert.Equal(t, 40, Page{Limit: 20, Index: 2}.Offset())
	assert.Equal(t, 0, Page{Index: 4}.Offset())
}
