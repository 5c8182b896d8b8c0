package query

import "taskify/backend/internal/models"

// Filter narrows a task collection by exact match. A nil field, or a field
// pointing at an empty string, places no constraint on that attribute.
type Filter struct {
	Status   *models.TaskStatus   `json:"status,omitempty"`
	Priority *models.TaskPriority `json:"priority,omitempty"`
}

// NewFilter builds a Filter from raw form values. Forms submit "" for
// "no selection", which becomes an absent field.
func NewFilter(status, priority string) Filter {
	var f Filter
	if status != "" {
		s := models.TaskStatus(status)
		f.Status = &s
	}
	if priority != "" {
		p := models.TaskPriority(priority)
		f.Priority = &p
	}
	return f
}

func (f Filter) statusConstraint() (models.TaskStatus, bool) {
	if f.Status == nil || *f.Status == "" {
		return "", false
	}
	return *f.Status, true
}

func (f Filter) priorityConstraint() (models.TaskPriority, bool) {
	if f.Priority == nil || *f.Priority == "" {
		return "", false
	}
	return *f.Priority, true
}

// IsEmpty reports whether the filter lets every task through.
func (f Filter) IsEmpty() bool {
	_, hasStatus := f.statusConstraint()
	_, hasPriority := f.priorityConstraint()
	return !hasStatus && !hasPriority
}

// Matches reports whether task satisfies every present constraint.
func (f Filter) Matches(task models.Task) bool {
	if status, ok := f.statusConstraint(); ok && task.Status != status {
		return false
	}
	if priority, ok := f.priorityConstraint(); ok && task.Priority != priority {
		return false
	}
	return true
}

// Search returns the tasks matching f in their original relative order.
// The result is always a new slice; tasks and f are left untouched.
func Search(tasks []models.Task, f Filter) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, task := range tasks {
		if f.Matches(task) {
			out = append(out, task)
		}
	}
	return out
}
