package pagination

import (
	"strconv"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page describes one page of a table. From and To are 1-based and inclusive;
// both are 0 when there are no items.
type Page struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	TotalItems int  `json:"totalItems"`
	TotalPages int  `json:"totalPages"`
	From       int  `json:"from"`
	To         int  `json:"to"`
	Count      int  `json:"count"`
	HasPrev    bool `json:"hasPrev"`
	HasNext    bool `json:"hasNext"`
}

// Paginate computes the page window. page is clamped to [1, TotalPages];
// a non-positive perPage falls back to DefaultPageSize.
func Paginate(totalItems, perPage, page int) Page {
	if totalItems < 0 {
		totalItems = 0
	}
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}

	totalPages := (totalItems + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	p := Page{
		Page:       page,
		PageSize:   perPage,
		TotalItems: totalItems,
		TotalPages: totalPages,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
	if totalItems > 0 {
		p.From = (page-1)*perPage + 1
		p.To = p.From + perPage - 1
		if p.To > totalItems {
			p.To = totalItems
		}
		p.Count = p.To - p.From + 1
	}
	return p
}

// Offset is the 0-based index of the first row
func (p Page) Offset() int {
	if p.From == 0 {
		return 0
	}
	return p.From - 1
}

// Slice cuts items down to the page window
func Slice[T any](items []T, p Page) []T {
	if p.Count == 0 || p.Offset() >= len(items) {
		return []T{}
	}
	end := p.Offset() + p.Count
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset():end]
}

// Result is a page of rows with its window
type Result[T any] struct {
	Items []T `json:"items"`
	Page  Page `json:"pagination"`
}

// Of paginates an in-memory list
func Of[T any](items []T, perPage, page int) Result[T] {
	p := Paginate(len(items), perPage, page)
	return Result[T]{Items: Slice(items, p), Page: p}
}

// ParseParams reads page/pageSize query parameters, falling back to defaults
// on missing or malformed values.
func ParseParams(query map[string]string, defaultSize int) (page, pageSize int) {
	page, pageSize = 1, defaultSize
	if v, err := strconv.Atoi(query["page"]); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(query["pageSize"]); err == nil && v > 0 {
		pageSize = v
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
