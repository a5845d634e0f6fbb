package models

import "math"

// MaxPageSize caps every requested page size.
const MaxPageSize = 200

// Page is a single page of a paginated listing.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

func NewPage[T any](items []T, total, page, pageSize int) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// Offset converts a 1-based page number into a row offset.
func Offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}

// ClampPageSize returns def for an unset size and never more than MaxPageSize.
func ClampPageSize(size, def int) int {
	if size < 1 {
		size = def
	}
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return size
}

// PageInRange reports whether the page's row offset fits in an int32, the
// widest offset the stores accept.
func PageInRange(page, pageSize int) bool {
	if page < 1 || pageSize < 1 {
		return true
	}
	return page-1 <= math.MaxInt32/pageSize
}
