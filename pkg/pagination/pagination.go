// Package pagination binds offset/limit listing parameters and builds the
// page envelope listing endpoints respond with.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is an offset window over a listing.
type Params struct {
	Limit  int
	Offset int
}

// FromContext binds the limit and offset query parameters. Values that are
// not integers are an error; out of range values are clamped.
func FromContext(c echo.Context) (Params, error) {
	p := Params{Limit: DefaultLimit}
	err := echo.QueryParamsBinder(c).
		Int("limit", &p.Limit).
		Int("offset", &p.Offset).
		BindError()
	if err != nil {
		return Params{}, err
	}
	return p.normalize(), nil
}

func (p Params) normalize() Params {
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func (p Params) hasNext(total int) bool { return p.Offset+p.Limit < total }

// Page is the envelope of one listing window.
type Page[T any] struct {
	Data    []T    `json:"data"`
	Total   int    `json:"total"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	HasMore bool   `json:"has_more"`
	Links   []Link `json:"links,omitempty"`
}

// Link is a navigation link of a Page.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// NewPage wraps items. A nil slice is rendered as an empty array.
func NewPage[T any](items []T, total int, p Params) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Data:    items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.hasNext(total),
	}
}

// WithLinks adds self, next and previous links relative to basePath.
func (pg *Page[T]) WithLinks(basePath string) *Page[T] {
	link := func(rel string, offset int) Link {
		q := url.Values{}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(pg.Limit))
		return Link{Relation: rel, URL: basePath + "?" + q.Encode()}
	}

	p := Params{Limit: pg.Limit, Offset: pg.Offset}
	pg.Links = []Link{link("self", p.Offset)}
	if p.hasNext(pg.Total) {
		pg.Links = append(pg.Links, link("next", p.Offset+p.Limit))
	}
	if p.Offset > 0 {
		pg.Links = append(pg.Links, link("previous", max(p.Offset-p.Limit, 0)))
	}
	return pg
}
