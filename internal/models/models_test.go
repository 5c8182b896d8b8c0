package models_test

import (
	"testing"
	"time"

	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTaskPriority_Rank(t *testing.T) {
	tests := []struct {
		priority models.TaskPriority
		expected int
	}{
		{models.PriorityLow, 1},
		{models.PriorityMedium, 2},
		{models.PriorityHigh, 3},
		{"urgent", 0},
		{"", 0},
		{"HIGH", 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.priority.Rank())
			assert.Equal(t, tt.expected > 0, tt.priority.Valid())
		})
	}
}

func TestTaskStatus_Rank(t *testing.T) {
	tests := []struct {
		status   models.TaskStatus
		expected int
	}{
		{models.StatusToDo, 1},
		{models.StatusInProgress, 2},
		{models.StatusDone, 3},
		{"pending", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.Rank())
			assert.Equal(t, tt.expected > 0, tt.status.Valid())
		})
	}
}

func TestTask_HasID(t *testing.T) {
	task := models.Task{Title: "Draft"}
	assert.False(t, task.HasID())

	task.ID = uuid.Must(uuid.NewV4())
	assert.True(t, task.HasID())
}

func TestTask_BeforeCreateKeepsExistingID(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	task := &models.Task{ID: id}

	assert.NoError(t, task.BeforeCreate(nil))
	assert.Equal(t, id, task.ID)

	fresh := &models.Task{}
	assert.NoError(t, fresh.BeforeCreate(nil))
	assert.True(t, fresh.HasID())
}

func TestTask_DueUnixMilli(t *testing.T) {
	var task models.Task
	assert.Equal(t, int64(0), task.DueUnixMilli())

	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	task.DueDate = &due
	assert.Equal(t, due.UnixMilli(), task.DueUnixMilli())
}

func TestToken_Expired(t *testing.T) {
	now := time.Now()
	token := models.Token{
		ID:           uuid.Must(uuid.NewV4()),
		UserId:       uuid.Must(uuid.NewV4()),
		RefreshToken: uuid.Must(uuid.NewV4()),
		ExpiresAt:    now.Add(time.Hour),
	}

	assert.False(t, token.Expired(now))
	assert.True(t, token.Expired(now.Add(time.Hour)))
	assert.True(t, token.Expired(now.Add(2*time.Hour)))
}
