package handlers

import (
	"net/http"
	"strconv"

	"taskify/backend/internal/query"
	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type TaskHandler struct {
	db          *gorm.DB
	taskService services.TaskService
	logger      *zap.Logger
}

func NewTaskHandler(db *gorm.DB, taskService services.TaskService, logger *zap.Logger) *TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{db: db, taskService: taskService, logger: logger}
}

func (h *TaskHandler) dbFor(c *gin.Context) *gorm.DB {
	if h.db == nil {
		return nil
	}
	return h.db.WithContext(c.Request.Context())
}

func parseTaskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil || id == uuid.Nil {
		badRequest(c, "invalid task id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func taskQueryFrom(c *gin.Context) services.TaskQuery {
	return services.TaskQuery{
		Query: query.FromValues(c.Request.URL.Query()),
		Page:  query.ParsePage(c.Query("page"), c.Query("pageSize")),
	}
}

// ListTasks serves GET /tasks?status=&priority=&sortBy=&order=&page=&pageSize=.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	page, err := h.taskService.SearchTasks(h.dbFor(c), taskQueryFrom(c))
	if err != nil {
		respondError(c, h.logger, "task", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *TaskHandler) ListTasksByAssignee(c *gin.Context) {
	assigneeID, err := strconv.ParseInt(c.Param("assignee_id"), 10, 64)
	if err != nil || assigneeID <= 0 {
		badRequest(c, "invalid assignee id", nil)
		return
	}
	h.listForAssignee(c, assigneeID)
}

// MyTasks lists the tasks assigned to the authenticated user.
func (h *TaskHandler) MyTasks(c *gin.Context) {
	value, exists := c.Get("assignee_id")
	assigneeID, ok := value.(int64)
	if !exists || !ok || assigneeID <= 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "no assignee linked to this account"})
		return
	}
	h.listForAssignee(c, assigneeID)
}

func (h *TaskHandler) listForAssignee(c *gin.Context, assigneeID int64) {
	q := taskQueryFrom(c)
	q.AssigneeID = &assigneeID

	page, err := h.taskService.SearchTasks(h.dbFor(c), q)
	if err != nil {
		respondError(c, h.logger, "task", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}
	task, err := h.taskService.GetTaskByID(h.dbFor(c), id)
	if err != nil {
		respondError(c, h.logger, "task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var input services.TaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	task, err := h.taskService.CreateTask(h.dbFor(c), input)
	if err != nil {
		respondError(c, h.logger, "task", err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// UpdateTask replaces the task with the submitted form.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}
	var input services.TaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	task, err := h.taskService.UpdateTask(h.dbFor(c), id, input)
	if err != nil {
		respondError(c, h.logger, "task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}
	if err := h.taskService.DeleteTask(h.dbFor(c), id); err != nil {
		respondError(c, h.logger, "task", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type cacheStatser interface {
	GetCacheStats() map[string]interface{}
}

func (h *TaskHandler) CacheStats(c *gin.Context) {
	cached, ok := h.taskService.(cacheStatser)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "stats": cached.GetCacheStats()})
}
