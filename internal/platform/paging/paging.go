// Package paging carries page requests and page envelopes between the
// HTTP layer, the query services and the repositories.
package paging

const (
	DefaultSize = 20
	MaxSize     = 100
)

// Request is a 1-based page request.
type Request struct {
	Page int
	Size int
}

// NewRequest clamps page and size into their valid ranges.
func NewRequest(page, size int) Request {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	return Request{Page: page, Size: size}
}

// Offset returns the number of rows to skip.
func (r Request) Offset() int {
	return (r.Page - 1) * r.Size
}

// Page is a slice of items plus the totals reported by the count query.
// Items may hold fewer than Size entries even when TotalElements says more
// rows exist: rows that vanish between counting and hydration are dropped.
type Page[T any] struct {
	Items         []T   `json:"items"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
}

// NewPage builds a Page, computing TotalPages from total and the request size.
func NewPage[T any](items []T, req Request, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if req.Size > 0 {
		totalPages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Items:         items,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    totalPages,
	}
}
