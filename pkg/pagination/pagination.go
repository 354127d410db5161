// Package pagination reads limit/offset list parameters and wraps list
// results in a page envelope.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads the limit and offset query parameters. Missing or
// unparsable values fall back to defaults; limit is clamped to [1, MaxLimit].
func FromContext(c echo.Context) Params {
	return Params{
		Limit:  clampLimit(c.QueryParam("limit")),
		Offset: max(atoi(c.QueryParam("offset")), 0),
	}
}

func clampLimit(raw string) int {
	limit := atoi(raw)
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Page is the list envelope returned by every collection endpoint.
type Page[T any] struct {
	Data    []T  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// NewPage wraps items. A nil slice is emitted as [] so clients never see null.
func NewPage[T any](items []T, total int, p Params) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Data:    items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+len(items) < total,
	}
}
