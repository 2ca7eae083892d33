package models

// Pagination summarises a paged listing.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalItems  int  `json:"totalItems"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

// NewPagination computes the summary for a page of returned items.
func NewPagination(page, limit, total, returned int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	skip := (page - 1) * limit
	return Pagination{
		CurrentPage: page,
		TotalPages:  pages,
		TotalItems:  total,
		HasNext:     skip+returned < total,
		HasPrev:     page > 1,
	}
}

// Page holds normalized paging and sort parameters.
type Page struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Descending reports whether results sort newest first.
func (p Page) Descending() bool {
	return p.SortOrder != "asc"
}

// NewPage clamps paging input: page defaults to 1, limit to defaultLimit and
// at most maxLimit; sortOrder is "asc" or "desc" (default).
func NewPage(page, limit int, sortBy, sortOrder string, defaultLimit, maxLimit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if sortOrder != "asc" {
		sortOrder = "desc"
	}
	return Page{Page: page, Limit: limit, SortBy: sortBy, SortOrder: sortOrder}
}
