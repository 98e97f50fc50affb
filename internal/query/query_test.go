package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpdv/pdvhost/internal/filter"
)

var (
	itemCreated  = filter.NewField[time.Time]("item", "created_at")
	otherCreated = filter.NewField[time.Time]("other", "created_at")
)

func TestPaginate(t *testing.T) {
	testCases := []struct {
		name       string
		page       int
		limit      int
		wantOffset int
	}{
		{name: "first page", page: 0, limit: 20, wantOffset: 0},
		{name: "third page", page: 2, limit: 20, wantOffset: 40},
		{name: "unbounded", page: 0, limit: 0, wantOffset: 0},
		{name: "page without limit", page: 5, limit: 0, wantOffset: 0},
		{name: "largest page", page: 3, limit: MaxPageSize, wantOffset: 3 * MaxPageSize},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantOffset, Paginate(tc.page, tc.limit))
		})
	}
}

func TestSelection_Validate(t *testing.T) {
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	valid := Selection{Entity: "item", Offset: 40, Limit: 20, Order: itemCreated.Ref(), Where: filter.Gt(itemCreated, cutoff)}
	require.NoError(t, valid.Validate())

	testCases := []struct {
		name string
		sel  Selection
	}{
		{"missing entity", Selection{}},
		{"negative offset", Selection{Entity: "item", Offset: -1}},
		{"negative limit", Selection{Entity: "item", Limit: -1}},
		{"foreign order", Selection{Entity: "item", Order: otherCreated.Ref()}},
		{"foreign filter", Selection{Entity: "item", Where: filter.All(filter.Gt(itemCreated, cutoff), filter.Lt(otherCreated, cutoff))}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var verr *ValidationError
			assert.ErrorAs(t, tc.sel.Validate(), &verr)
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	assert.Equal(t, "limite: must not be negative", (&ValidationError{Field: "limite", Message: "must not be negative"}).Error())
	assert.Equal(t, "bad input", (&ValidationError{Message: "bad input"}).Error())
}
