package services

import (
	"context"
	"encoding/json"
	"testing"

	"taskify/backend/internal/models"
	"taskify/backend/internal/worker"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func jobFor(t *testing.T, jobType worker.JobType, payload TaskJobPayload) *worker.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &worker.Job{Type: jobType, Payload: data}
}

func newNotificationFixture(t *testing.T) (*NotificationHandlers, *TaskServiceImpl, *observer.ObservedLogs) {
	db := openTestDB(t)
	core, logs := observer.New(zap.DebugLevel)
	tasks := NewTaskService(nil, nil)
	return NewNotificationHandlers(db, tasks, zap.New(core)), tasks, logs
}

func TestTaskReminder_LogsDueTask(t *testing.T) {
	handlers, tasks, logs := newNotificationFixture(t)
	input := validInput("Pay invoices")
	input.DueDate = timePtr(baseTime.AddDate(0, 0, 1))
	task, err := tasks.CreateTask(handlers.db, input)
	require.NoError(t, err)

	err = handlers.TaskReminder(context.Background(), jobFor(t, worker.JobTypeTaskReminder, TaskJobPayload{
		TaskID: task.ID, Title: task.Title, DueDate: input.DueDate,
	}))
	require.NoError(t, err)

	entries := logs.FilterMessage("task is due").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Pay invoices", entries[0].ContextMap()["title"])
}

func TestTaskReminder_SkipsStaleReminders(t *testing.T) {
	handlers, tasks, logs := newNotificationFixture(t)
	input := validInput("Moved deadline")
	input.DueDate = timePtr(baseTime.AddDate(0, 0, 5))
	task, err := tasks.CreateTask(handlers.db, input)
	require.NoError(t, err)

	stale := TaskJobPayload{TaskID: task.ID, DueDate: timePtr(baseTime.AddDate(0, 0, 1))}
	require.NoError(t, handlers.TaskReminder(context.Background(), jobFor(t, worker.JobTypeTaskReminder, stale)))

	input.Status = models.StatusDone
	_, err = tasks.UpdateTask(handlers.db, task.ID, input)
	require.NoError(t, err)
	current := TaskJobPayload{TaskID: task.ID, DueDate: input.DueDate}
	require.NoError(t, handlers.TaskReminder(context.Background(), jobFor(t, worker.JobTypeTaskReminder, current)))

	assert.Zero(t, logs.FilterMessage("task is due").Len())
	assert.Equal(t, 2, logs.FilterMessage("skipping stale reminder").Len())
}

func TestTaskReminder_SkipsDeletedTask(t *testing.T) {
	handlers, _, logs := newNotificationFixture(t)

	err := handlers.TaskReminder(context.Background(), jobFor(t, worker.JobTypeTaskReminder, TaskJobPayload{
		TaskID: uuid.Must(uuid.NewV4()),
	}))

	assert.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("skipping reminder for deleted task").Len())
}

func TestTaskCompleted_Logs(t *testing.T) {
	handlers, _, logs := newNotificationFixture(t)

	err := handlers.TaskCompleted(context.Background(), jobFor(t, worker.JobTypeTaskCompleted, TaskJobPayload{
		TaskID: uuid.Must(uuid.NewV4()), Title: "Done deal",
	}))

	require.NoError(t, err)
	entries := logs.FilterMessage("task completed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Done deal", entries[0].ContextMap()["title"])
}

func TestTaskReminder_BadPayload(t *testing.T) {
	handlers, _, _ := newNotificationFixture(t)

	err := handlers.TaskReminder(context.Background(), &worker.Job{Type: worker.JobTypeTaskReminder, Payload: []byte("{")})

	assert.Error(t, err)
}
