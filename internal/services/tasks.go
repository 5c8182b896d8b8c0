package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskify/backend/internal/models"
	"taskify/backend/internal/query"
	"taskify/backend/internal/worker"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TaskService is the task store. Every call takes the *gorm.DB to run
// against, so callers control the request context and transactions.
type TaskService interface {
	ListTasks(db *gorm.DB) ([]models.Task, error)
	GetTaskByID(db *gorm.DB, id uuid.UUID) (models.Task, error)
	CreateTask(db *gorm.DB, input TaskInput) (models.Task, error)
	UpdateTask(db *gorm.DB, id uuid.UUID, input TaskInput) (models.Task, error)
	DeleteTask(db *gorm.DB, id uuid.UUID) error
	ListTasksByAssignee(db *gorm.DB, assigneeID int64) ([]models.Task, error)
	SearchTasks(db *gorm.DB, q TaskQuery) (TaskPage, error)
}

// TaskQuery is a listing request: which tasks, in what order, which page.
type TaskQuery struct {
	Query      query.Query
	AssigneeID *int64
	Page       query.Page
}

type TaskPage struct {
	Tasks []models.Task `json:"tasks"`
	Total int           `json:"total"`
}

// JobEnqueuer schedules background jobs. *worker.JobQueue satisfies it.
type JobEnqueuer interface {
	EnqueueAt(ctx context.Context, jobType worker.JobType, payload interface{}, processAt time.Time) (*worker.Job, error)
}

// TaskJobPayload is carried by task_reminder and task_completed jobs.
type TaskJobPayload struct {
	TaskID  uuid.UUID  `json:"task_id"`
	Title   string     `json:"title"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

type TaskServiceImpl struct {
	jobs   JobEnqueuer
	logger *zap.Logger
	now    func() time.Time
}

// NewTaskService returns the gorm backed store. jobs may be nil, which
// disables reminders and completion notifications.
func NewTaskService(jobs JobEnqueuer, logger *zap.Logger) *TaskServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskServiceImpl{jobs: jobs, logger: logger, now: time.Now}
}

func (s *TaskServiceImpl) ListTasks(db *gorm.DB) ([]models.Task, error) {
	tasks := []models.Task{}
	if err := db.Order("created_at ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskServiceImpl) ListTasksByAssignee(db *gorm.DB, assigneeID int64) ([]models.Task, error) {
	tasks := []models.Task{}
	err := db.Where("assignee_id = ?", assigneeID).
		Order("created_at ASC, id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks for assignee %d: %w", assigneeID, err)
	}
	return tasks, nil
}

func (s *TaskServiceImpl) GetTaskByID(db *gorm.DB, id uuid.UUID) (models.Task, error) {
	var task models.Task
	if err := db.First(&task, "id = ?", id).Error; err != nil {
		return models.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

func (s *TaskServiceImpl) CreateTask(db *gorm.DB, input TaskInput) (models.Task, error) {
	if err := ValidateTaskInput(input); err != nil {
		return models.Task{}, err
	}

	task := models.Task{}
	applyInput(&task, input)
	task.CompletedDate = completionDate(task.Status, nil, s.now())

	if err := db.Create(&task).Error; err != nil {
		return models.Task{}, fmt.Errorf("create task: %w", err)
	}

	s.scheduleJobs(db.Statement.Context, nil, task)
	return task, nil
}

// UpdateTask replaces every editable field of the task with input.
func (s *TaskServiceImpl) UpdateTask(db *gorm.DB, id uuid.UUID, input TaskInput) (models.Task, error) {
	if err := ValidateTaskInput(input); err != nil {
		return models.Task{}, err
	}

	var updated, previous models.Task
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&previous, "id = ?", id).Error; err != nil {
			return err
		}
		updated = previous
		applyInput(&updated, input)
		updated.CompletedDate = completionDate(updated.Status, previous.CompletedDate, s.now())
		return tx.Save(&updated).Error
	})
	if err != nil {
		return models.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}

	s.scheduleJobs(db.Statement.Context, &previous, updated)
	return updated, nil
}

func (s *TaskServiceImpl) DeleteTask(db *gorm.DB, id uuid.UUID) error {
	result := db.Delete(&models.Task{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete task %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("delete task %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *TaskServiceImpl) SearchTasks(db *gorm.DB, q TaskQuery) (TaskPage, error) {
	return searchTasks(s, db, q)
}

// searchTasks loads the candidate tasks through svc and runs the in-memory
// filter, sort and pagination over them.
func searchTasks(svc TaskService, db *gorm.DB, q TaskQuery) (TaskPage, error) {
	var (
		tasks []models.Task
		err   error
	)
	if q.AssigneeID != nil {
		tasks, err = svc.ListTasksByAssignee(db, *q.AssigneeID)
	} else {
		tasks, err = svc.ListTasks(db)
	}
	if err != nil {
		return TaskPage{}, err
	}

	page, total := query.Paginate(query.Apply(tasks, q.Query), q.Page)
	return TaskPage{Tasks: page, Total: total}, nil
}

func applyInput(task *models.Task, in TaskInput) {
	task.Title = in.Title
	task.Description = in.Description
	task.Status = in.Status
	task.Priority = in.Priority
	task.AssigneeID = in.AssigneeID
	if in.StartDate != nil {
		task.StartDate = *in.StartDate
	}
	task.DueDate = in.DueDate
}

// completionDate keeps the first completion time while a task stays done
// and clears it once the task leaves done.
func completionDate(status models.TaskStatus, previous *time.Time, now time.Time) *time.Time {
	if status != models.StatusDone {
		return nil
	}
	if previous != nil {
		return previous
	}
	return &now
}

func (s *TaskServiceImpl) scheduleJobs(ctx context.Context, previous *models.Task, task models.Task) {
	if s.jobs == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload := TaskJobPayload{TaskID: task.ID, Title: task.Title, DueDate: task.DueDate}
	log := s.logger.With(zap.String("task_id", task.ID.String()))

	dueChanged := previous == nil || !sameTime(previous.DueDate, task.DueDate)
	if task.DueDate != nil && task.Status != models.StatusDone && dueChanged {
		if _, err := s.jobs.EnqueueAt(ctx, worker.JobTypeTaskReminder, payload, *task.DueDate); err != nil {
			log.Warn("failed to schedule task reminder", zap.Error(err))
		}
	}

	becameDone := task.Status == models.StatusDone && (previous == nil || previous.Status != models.StatusDone)
	if becameDone {
		if _, err := s.jobs.EnqueueAt(ctx, worker.JobTypeTaskCompleted, payload, s.now()); err != nil {
			log.Warn("failed to enqueue completion notification", zap.Error(err))
		}
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// IsNotFound reports whether err means the requested record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
