// Package paginate limits list queries to one page.
package paginate

import (
	"github.com/artpar/crudkit/core/query"
)

// DefaultPageSize is used when neither the resource nor the caller sets a
// page size.
const DefaultPageSize = 25

// Paginator restricts a query to one page.
type Paginator interface {
	// Paginate returns q limited to page (1-based) of size records.
	Paginate(q *query.Query, page, size int) *query.Query

	// DefaultPageSize is the size used when none is given.
	DefaultPageSize() int
}

// Offset paginates with LIMIT and OFFSET.
type Offset struct {
	// Size is the default page size.
	Size int

	// Max caps the page size. Zero means no cap.
	Max int
}

// New returns an Offset paginator. A non-positive size uses
// DefaultPageSize.
func New(size, max int) Offset {
	if size <= 0 {
		size = DefaultPageSize
	}
	return Offset{Size: size, Max: max}
}

func (o Offset) DefaultPageSize() int {
	if o.Size <= 0 {
		return DefaultPageSize
	}
	return o.Size
}

// Paginate limits q. Pages below 1 are page 1; a non-positive size is the
// default size.
func (o Offset) Paginate(q *query.Query, page, size int) *query.Query {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = o.DefaultPageSize()
	}
	if o.Max > 0 && size > o.Max {
		size = o.Max
	}
	return q.Limit(size).Offset((page - 1) * size)
}

// Page describes one page of a list.
type Page struct {
	Number int   `json:"page" yaml:"page"`
	Size   int   `json:"per_page" yaml:"per_page"`
	Total  int64 `json:"total" yaml:"total"`
}

// Of returns the page q is limited to, with total matching rows.
func Of(q *query.Query, total int64) Page {
	limit, offset := q.Bounds()
	p := Page{Number: 1, Size: limit, Total: total}
	if limit > 0 {
		p.Number = offset/limit + 1
	}
	return p
}

// Pages returns the number of pages.
func (p Page) Pages() int {
	if p.Size <= 0 {
		if p.Total > 0 {
			return 1
		}
		return 0
	}
	return int((p.Total + int64(p.Size) - 1) / int64(p.Size))
}

// Last reports whether p is the final page.
func (p Page) Last() bool {
	return p.Number >= p.Pages()
}
