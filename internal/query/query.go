// Package query filters, sorts and pages task collections in memory.
//
// Every function here is pure: inputs are never mutated and each call
// allocates its own result, so callers may share task slices freely across
// goroutines.
package query

import (
	"fmt"
	"net/url"
	"strconv"

	"taskify/backend/internal/models"
)

// Query is the combined filter and ordering applied to a listing.
type Query struct {
	Filter Filter
	SortBy SortKey
	Order  SortOrder
}

// Apply filters first and sorts the narrowed result.
func Apply(tasks []models.Task, q Query) []models.Task {
	return Sort(Search(tasks, q.Filter), q.SortBy, q.Order)
}

// FromValues reads status, priority, sortBy and order from query-string values.
func FromValues(values url.Values) Query {
	return Query{
		Filter: NewFilter(values.Get("status"), values.Get("priority")),
		SortBy: SortKey(values.Get("sortBy")),
		Order:  ParseSortOrder(values.Get("order")),
	}
}

// CacheKey identifies q for memoization. Absent and empty filter fields
// produce the same key.
func (q Query) CacheKey() string {
	status, _ := q.Filter.statusConstraint()
	priority, _ := q.Filter.priorityConstraint()
	order := q.Order
	if order != Desc {
		order = Asc
	}
	return fmt.Sprintf("%s:%s:%s:%s", status, priority, q.SortBy, order)
}

// Page selects a 1-based window of a result. Size <= 0 means everything.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads page and pageSize, falling back to the whole result on
// missing or malformed values.
func ParsePage(page, pageSize string) Page {
	p := Page{Number: 1}
	if n, err := strconv.Atoi(page); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(pageSize); err == nil && n > 0 {
		p.Size = n
	}
	return p
}

// Paginate returns the requested window and the size of the whole result.
func Paginate(tasks []models.Task, p Page) ([]models.Task, int) {
	total := len(tasks)
	if p.Size <= 0 {
		out := make([]models.Task, total)
		copy(out, tasks)
		return out, total
	}

	number := p.Number
	if number < 1 {
		number = 1
	}
	start := (number - 1) * p.Size
	if start >= total {
		return []models.Task{}, total
	}
	end := start + p.Size
	if end > total {
		end = total
	}

	out := make([]models.Task, end-start)
	copy(out, tasks[start:end])
	return out, total
}
