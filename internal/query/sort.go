package query

import (
	"cmp"
	"slices"

	"taskify/backend/internal/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type SortKey string

const (
	SortByPriority SortKey = "priority"
	SortByDueDate  SortKey = "due_date"
	SortByStatus   SortKey = "status"
	SortByTitle    SortKey = "title"
)

func (k SortKey) Valid() bool {
	switch k {
	case SortByPriority, SortByDueDate, SortByStatus, SortByTitle:
		return true
	default:
		return false
	}
}

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// ParseSortOrder treats anything other than "desc" as ascending.
func ParseSortOrder(s string) SortOrder {
	if SortOrder(s) == Desc {
		return Desc
	}
	return Asc
}

type comparator func(a, b models.Task) int

func comparatorFor(key SortKey) comparator {
	switch key {
	case SortByPriority:
		return func(a, b models.Task) int {
			return cmp.Compare(a.Priority.Rank(), b.Priority.Rank())
		}
	case SortByDueDate:
		// a missing due date counts as the epoch and sorts first ascending
		return func(a, b models.Task) int {
			return cmp.Compare(a.DueUnixMilli(), b.DueUnixMilli())
		}
	case SortByStatus:
		return func(a, b models.Task) int {
			return cmp.Compare(a.Status.Rank(), b.Status.Rank())
		}
	case SortByTitle:
		// Collators keep internal buffers and must not be shared between goroutines.
		col := collate.New(language.English)
		return func(a, b models.Task) int {
			return col.CompareString(a.Title, b.Title)
		}
	default:
		return nil
	}
}

// Sort returns a stably ordered copy of tasks. Desc negates the comparator,
// so tasks with equal keys keep their input order in both directions.
// An unknown key returns the copy in input order.
func Sort(tasks []models.Task, key SortKey, order SortOrder) []models.Task {
	out := make([]models.Task, len(tasks))
	copy(out, tasks)

	compare := comparatorFor(key)
	if compare == nil {
		return out
	}
	if order == Desc {
		asc := compare
		compare = func(a, b models.Task) int { return asc(b, a) }
	}

	slices.SortStableFunc(out, compare)
	return out
}
