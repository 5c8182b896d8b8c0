package services

import (
	"context"

	"taskify/backend/internal/models"
	"taskify/backend/internal/worker"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationHandlers consumes the jobs TaskServiceImpl schedules.
// Notifications are emitted as structured log entries.
type NotificationHandlers struct {
	db     *gorm.DB
	tasks  TaskService
	logger *zap.Logger
}

func NewNotificationHandlers(db *gorm.DB, tasks TaskService, logger *zap.Logger) *NotificationHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandlers{db: db, tasks: tasks, logger: logger.Named("notifications")}
}

func (n *NotificationHandlers) Register(w *worker.Worker) {
	w.RegisterHandler(worker.JobTypeTaskReminder, n.TaskReminder)
	w.RegisterHandler(worker.JobTypeTaskCompleted, n.TaskCompleted)
}

// TaskReminder announces that a task reached its due date. Reminders for
// tasks that were deleted, finished or rescheduled since are dropped.
func (n *NotificationHandlers) TaskReminder(ctx context.Context, job *worker.Job) error {
	var payload TaskJobPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}

	task, err := n.tasks.GetTaskByID(n.db.WithContext(ctx), payload.TaskID)
	if IsNotFound(err) {
		n.logger.Debug("skipping reminder for deleted task", zap.String("task_id", payload.TaskID.String()))
		return nil
	}
	if err != nil {
		return err
	}

	if task.Status == models.StatusDone || !sameTime(task.DueDate, payload.DueDate) {
		n.logger.Debug("skipping stale reminder", zap.String("task_id", task.ID.String()))
		return nil
	}

	fields := []zap.Field{
		zap.String("task_id", task.ID.String()),
		zap.String("title", task.Title),
		zap.String("priority", string(task.Priority)),
	}
	if task.DueDate != nil {
		fields = append(fields, zap.Time("due_date", *task.DueDate))
	}
	if task.AssigneeID != nil {
		fields = append(fields, zap.Int64("assignee_id", *task.AssigneeID))
	}
	n.logger.Info("task is due", fields...)
	return nil
}

func (n *NotificationHandlers) TaskCompleted(_ context.Context, job *worker.Job) error {
	var payload TaskJobPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	n.logger.Info("task completed",
		zap.String("task_id", payload.TaskID.String()),
		zap.String("title", payload.Title))
	return nil
}
