package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	StatusToDo       TaskStatus = "to_do"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// Rank orders statuses by workflow stage. Unknown values rank 0, below every
// known status.
func (s TaskStatus) Rank() int {
	switch s {
	case StatusToDo:
		return 1
	case StatusInProgress:
		return 2
	case StatusDone:
		return 3
	default:
		return 0
	}
}

func (s TaskStatus) Valid() bool {
	return s.Rank() > 0
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// Rank is ordinal, so "high" sorts above "low" regardless of spelling.
// Unknown values rank 0.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	default:
		return 0
	}
}

func (p TaskPriority) Valid() bool {
	return p.Rank() > 0
}

type Task struct {
	ID            uuid.UUID    `json:"id" gorm:"primaryKey;type:uuid"`
	Title         string       `json:"title" gorm:"not null"`
	Description   string       `json:"description,omitempty"`
	Status        TaskStatus   `json:"status" gorm:"not null;default:'to_do';index"`
	Priority      TaskPriority `json:"priority" gorm:"not null;default:'medium';index"`
	AssigneeID    *int64       `json:"assignee_id,omitempty" gorm:"index"`
	StartDate     time.Time    `json:"start_date" gorm:"not null"`
	DueDate       *time.Time   `json:"due_date,omitempty"`
	CompletedDate *time.Time   `json:"completed_date,omitempty"`
	CreatedAt     time.Time    `json:"created_time"`
	UpdatedAt     time.Time    `json:"updated_time"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	return nil
}

// HasID reports whether the task has been persisted.
func (t Task) HasID() bool {
	return t.ID != uuid.Nil
}

// DueUnixMilli returns the due date in milliseconds, or 0 when unset.
func (t Task) DueUnixMilli() int64 {
	if t.DueDate == nil {
		return 0
	}
	return t.DueDate.UnixMilli()
}
