package services

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"taskify/backend/internal/cache"
	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	allTasksKey     = "all_tasks"
	taskKeyFmt      = "task:%s"
	assigneeKeyFmt  = "assignee_tasks:%d"
	queryKeyPattern = "tasks_query:*"

	taskTTL     = 30 * time.Minute
	listTTL     = 10 * time.Minute
	assigneeTTL = 10 * time.Minute
	queryTTL    = 5 * time.Minute
)

// CachedTaskService memoizes a TaskService. Reads go through the cache;
// writes go to the wrapped service and then drop every entry they may have
// made stale.
type CachedTaskService struct {
	taskService TaskService
	cache       cache.Cache
	logger      *zap.Logger
}

var _ TaskService = (*CachedTaskService)(nil)

func NewCachedTaskService(taskService TaskService, c cache.Cache, logger *zap.Logger) *CachedTaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedTaskService{taskService: taskService, cache: c, logger: logger}
}

func ctxOf(db *gorm.DB) context.Context {
	if db != nil && db.Statement != nil && db.Statement.Context != nil {
		return db.Statement.Context
	}
	return context.Background()
}

func (s *CachedTaskService) remember(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func() (interface{}, error)) error {
	if err := s.cache.Get(ctx, key, dest); err == nil {
		return nil
	}

	value, err := load()
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("failed to cache value", zap.String("key", key), zap.Error(err))
	}
	return copyInto(value, dest)
}

func copyInto(value, dest interface{}) error {
	dv := reflect.ValueOf(dest)
	vv := reflect.ValueOf(value)
	if dv.Kind() != reflect.Pointer || dv.IsNil() || !vv.IsValid() || !vv.Type().AssignableTo(dv.Elem().Type()) {
		return fmt.Errorf("cannot assign %T to %T", value, dest)
	}
	dv.Elem().Set(vv)
	return nil
}

func (s *CachedTaskService) ListTasks(db *gorm.DB) ([]models.Task, error) {
	var tasks []models.Task
	err := s.remember(ctxOf(db), allTasksKey, &tasks, listTTL, func() (interface{}, error) {
		return s.taskService.ListTasks(db)
	})
	return tasks, err
}

func (s *CachedTaskService) ListTasksByAssignee(db *gorm.DB, assigneeID int64) ([]models.Task, error) {
	var tasks []models.Task
	key := fmt.Sprintf(assigneeKeyFmt, assigneeID)
	err := s.remember(ctxOf(db), key, &tasks, assigneeTTL, func() (interface{}, error) {
		return s.taskService.ListTasksByAssignee(db, assigneeID)
	})
	return tasks, err
}

func (s *CachedTaskService) GetTaskByID(db *gorm.DB, id uuid.UUID) (models.Task, error) {
	var task models.Task
	err := s.remember(ctxOf(db), fmt.Sprintf(taskKeyFmt, id), &task, taskTTL, func() (interface{}, error) {
		return s.taskService.GetTaskByID(db, id)
	})
	return task, err
}

// SearchTasks caches whole result pages keyed by assignee, query and page.
func (s *CachedTaskService) SearchTasks(db *gorm.DB, q TaskQuery) (TaskPage, error) {
	assignee := "all"
	if q.AssigneeID != nil {
		assignee = fmt.Sprintf("%d", *q.AssigneeID)
	}
	key := fmt.Sprintf("tasks_query:%s:%s:%d:%d", assignee, q.Query.CacheKey(), q.Page.Number, q.Page.Size)

	var page TaskPage
	err := s.remember(ctxOf(db), key, &page, queryTTL, func() (interface{}, error) {
		return searchTasks(s, db, q)
	})
	return page, err
}

func (s *CachedTaskService) CreateTask(db *gorm.DB, input TaskInput) (models.Task, error) {
	task, err := s.taskService.CreateTask(db, input)
	if err != nil {
		return task, err
	}

	ctx := ctxOf(db)
	s.invalidateLists(ctx, task.AssigneeID)
	if err := s.cache.Set(ctx, fmt.Sprintf(taskKeyFmt, task.ID), task, taskTTL); err != nil {
		s.logger.Warn("failed to cache created task", zap.Error(err))
	}
	return task, nil
}

func (s *CachedTaskService) UpdateTask(db *gorm.DB, id uuid.UUID, input TaskInput) (models.Task, error) {
	// The old assignee's list must be dropped too when the task moves.
	previous, prevErr := s.taskService.GetTaskByID(db, id)

	task, err := s.taskService.UpdateTask(db, id, input)
	if err != nil {
		return task, err
	}

	ctx := ctxOf(db)
	s.invalidate(ctx, fmt.Sprintf(taskKeyFmt, id))
	s.invalidateLists(ctx, task.AssigneeID)
	if prevErr == nil {
		s.invalidateLists(ctx, previous.AssigneeID)
	}
	return task, nil
}

func (s *CachedTaskService) DeleteTask(db *gorm.DB, id uuid.UUID) error {
	previous, prevErr := s.taskService.GetTaskByID(db, id)

	if err := s.taskService.DeleteTask(db, id); err != nil {
		return err
	}

	ctx := ctxOf(db)
	s.invalidate(ctx, fmt.Sprintf(taskKeyFmt, id))
	if prevErr == nil {
		s.invalidateLists(ctx, previous.AssigneeID)
	} else {
		s.invalidateLists(ctx, nil)
	}
	return nil
}

func (s *CachedTaskService) invalidateLists(ctx context.Context, assigneeID *int64) {
	keys := []string{allTasksKey}
	if assigneeID != nil {
		keys = append(keys, fmt.Sprintf(assigneeKeyFmt, *assigneeID))
	}
	s.invalidate(ctx, keys...)
	if err := s.cache.DeletePattern(ctx, queryKeyPattern); err != nil {
		s.logger.Warn("failed to invalidate query cache", zap.Error(err))
	}
}

func (s *CachedTaskService) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate cache keys", zap.Strings("keys", keys), zap.Error(err))
	}
}

// WarmupJobs lists the entries worth repopulating ahead of traffic.
func (s *CachedTaskService) WarmupJobs(db *gorm.DB) []cache.WarmupJob {
	return []cache.WarmupJob{
		{
			Key:      allTasksKey,
			TTL:      listTTL,
			Priority: 100,
			Load: func(ctx context.Context) (interface{}, error) {
				return s.taskService.ListTasks(db.WithContext(ctx))
			},
		},
	}
}

func (s *CachedTaskService) GetCacheStats() map[string]interface{} {
	return s.cache.Stats()
}
