package services

import (
	"errors"
	"testing"
	"time"

	"taskify/backend/internal/models"
	"taskify/backend/internal/query"
	"taskify/backend/internal/worker"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type TaskServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	jobs    *recordingQueue
	service *TaskServiceImpl
	now     time.Time
}

func (suite *TaskServiceTestSuite) SetupTest() {
	suite.db = openTestDB(suite.T())
	suite.jobs = &recordingQueue{}
	suite.service = NewTaskService(suite.jobs, zap.NewNop())
	suite.now = baseTime.Add(2 * time.Hour)
	suite.service.now = func() time.Time { return suite.now }
}

func (suite *TaskServiceTestSuite) create(input TaskInput) models.Task {
	task, err := suite.service.CreateTask(suite.db, input)
	suite.Require().NoError(err)
	return task
}

func (suite *TaskServiceTestSuite) TestCreateTask() {
	input := validInput("Write report")
	input.Description = "quarterly numbers"
	input.AssigneeID = int64Ptr(7)

	task := suite.create(input)

	suite.True(task.HasID())
	suite.Equal("Write report", task.Title)
	suite.Equal(models.StatusToDo, task.Status)
	suite.Equal(int64(7), *task.AssigneeID)
	suite.Nil(task.CompletedDate)

	stored, err := suite.service.GetTaskByID(suite.db, task.ID)
	suite.Require().NoError(err)
	suite.Equal(task.ID, stored.ID)
	suite.Equal("quarterly numbers", stored.Description)
}

func (suite *TaskServiceTestSuite) TestCreateTaskRejectsInvalidInput() {
	input := validInput("ab")

	_, err := suite.service.CreateTask(suite.db, input)

	var verr *ValidationError
	suite.Require().True(errors.As(err, &verr))
	suite.Contains(verr.Fields, "title")

	tasks, err := suite.service.ListTasks(suite.db)
	suite.Require().NoError(err)
	suite.Empty(tasks)
}

func (suite *TaskServiceTestSuite) TestCreateDoneTaskSetsCompletedDate() {
	input := validInput("Ship it")
	input.Status = models.StatusDone

	task := suite.create(input)

	suite.Require().NotNil(task.CompletedDate)
	suite.True(task.CompletedDate.Equal(suite.now))
}

func (suite *TaskServiceTestSuite) TestUpdateCompletionRule() {
	task := suite.create(validInput("Ship it"))

	done := validInput("Ship it")
	done.Status = models.StatusDone
	updated, err := suite.service.UpdateTask(suite.db, task.ID, done)
	suite.Require().NoError(err)
	suite.Require().NotNil(updated.CompletedDate)
	firstCompletion := *updated.CompletedDate

	suite.now = suite.now.Add(24 * time.Hour)
	done.Title = "Ship it again"
	updated, err = suite.service.UpdateTask(suite.db, task.ID, done)
	suite.Require().NoError(err)
	suite.Require().NotNil(updated.CompletedDate)
	suite.True(updated.CompletedDate.Equal(firstCompletion))

	reopened := validInput("Ship it again")
	reopened.Status = models.StatusInProgress
	updated, err = suite.service.UpdateTask(suite.db, task.ID, reopened)
	suite.Require().NoError(err)
	suite.Nil(updated.CompletedDate)
}

func (suite *TaskServiceTestSuite) TestUpdateTaskIsFullReplace() {
	input := validInput("Original")
	input.Description = "keep me?"
	input.AssigneeID = int64Ptr(3)
	input.DueDate = timePtr(baseTime.AddDate(0, 0, 5))
	task := suite.create(input)

	replacement := validInput("Replaced")
	replacement.Priority = models.PriorityHigh
	updated, err := suite.service.UpdateTask(suite.db, task.ID, replacement)
	suite.Require().NoError(err)

	suite.Equal(task.ID, updated.ID)
	suite.Equal("Replaced", updated.Title)
	suite.Empty(updated.Description)
	suite.Nil(updated.AssigneeID)
	suite.Nil(updated.DueDate)
	suite.Equal(models.PriorityHigh, updated.Priority)

	stored, err := suite.service.GetTaskByID(suite.db, task.ID)
	suite.Require().NoError(err)
	suite.Nil(stored.AssigneeID)
	suite.Empty(stored.Description)
}

func (suite *TaskServiceTestSuite) TestUpdateMissingTask() {
	_, err := suite.service.UpdateTask(suite.db, uuid.Must(uuid.NewV4()), validInput("Anything"))

	suite.True(IsNotFound(err))
}

func (suite *TaskServiceTestSuite) TestGetMissingTask() {
	_, err := suite.service.GetTaskByID(suite.db, uuid.Must(uuid.NewV4()))

	suite.True(IsNotFound(err))
}

func (suite *TaskServiceTestSuite) TestDeleteTask() {
	task := suite.create(validInput("Disposable"))

	suite.Require().NoError(suite.service.DeleteTask(suite.db, task.ID))

	_, err := suite.service.GetTaskByID(suite.db, task.ID)
	suite.True(IsNotFound(err))
	suite.True(IsNotFound(suite.service.DeleteTask(suite.db, task.ID)))
}

func (suite *TaskServiceTestSuite) TestListTasksInInsertionOrder() {
	for _, title := range []string{"First", "Second", "Third"} {
		suite.create(validInput(title))
	}

	tasks, err := suite.service.ListTasks(suite.db)
	suite.Require().NoError(err)

	suite.Require().Len(tasks, 3)
	suite.Equal("First", tasks[0].Title)
	suite.Equal("Second", tasks[1].Title)
	suite.Equal("Third", tasks[2].Title)
}

func (suite *TaskServiceTestSuite) TestListTasksByAssignee() {
	mine := validInput("Mine")
	mine.AssigneeID = int64Ptr(1)
	theirs := validInput("Theirs")
	theirs.AssigneeID = int64Ptr(2)
	suite.create(mine)
	suite.create(theirs)
	suite.create(validInput("Nobody's"))

	tasks, err := suite.service.ListTasksByAssignee(suite.db, 1)
	suite.Require().NoError(err)

	suite.Require().Len(tasks, 1)
	suite.Equal("Mine", tasks[0].Title)
}

func (suite *TaskServiceTestSuite) TestSearchTasksFiltersThenSortsByTitle() {
	for _, tc := range []struct {
		title    string
		priority models.TaskPriority
	}{
		{"Medium task", models.PriorityMedium},
		{"Zebra", models.PriorityHigh},
		{"Low task", models.PriorityLow},
		{"apple", models.PriorityHigh},
	} {
		input := validInput(tc.title)
		input.Priority = tc.priority
		suite.create(input)
	}

	page, err := suite.service.SearchTasks(suite.db, TaskQuery{
		Query: query.Query{Filter: query.NewFilter("", "high"), SortBy: query.SortByTitle, Order: query.Asc},
	})
	suite.Require().NoError(err)

	suite.Equal(2, page.Total)
	suite.Require().Len(page.Tasks, 2)
	suite.Equal("apple", page.Tasks[0].Title)
	suite.Equal("Zebra", page.Tasks[1].Title)
}

func (suite *TaskServiceTestSuite) TestSearchTasksPaginatesForAssignee() {
	for _, title := range []string{"One", "Two", "Three"} {
		input := validInput(title)
		input.AssigneeID = int64Ptr(9)
		suite.create(input)
	}
	suite.create(validInput("Unassigned"))

	page, err := suite.service.SearchTasks(suite.db, TaskQuery{
		AssigneeID: int64Ptr(9),
		Page:       query.Page{Number: 2, Size: 2},
	})
	suite.Require().NoError(err)

	suite.Equal(3, page.Total)
	suite.Require().Len(page.Tasks, 1)
	suite.Equal("Three", page.Tasks[0].Title)
}

func (suite *TaskServiceTestSuite) TestReminderScheduledAtDueDate() {
	input := validInput("Due soon")
	input.DueDate = timePtr(baseTime.AddDate(0, 0, 3))

	task := suite.create(input)

	jobs := suite.jobs.Jobs()
	suite.Require().Len(jobs, 1)
	suite.Equal(worker.JobTypeTaskReminder, jobs[0].Type)
	suite.Equal(task.ID, jobs[0].Payload.TaskID)
	suite.True(jobs[0].ProcessAt.Equal(*input.DueDate))

	suite.jobs.Reset()
	input.Title = "Due soon, renamed"
	_, err := suite.service.UpdateTask(suite.db, task.ID, input)
	suite.Require().NoError(err)
	suite.Empty(suite.jobs.Jobs(), "unchanged due date must not schedule another reminder")
}

func (suite *TaskServiceTestSuite) TestCompletionNotificationOnTransitionOnly() {
	task := suite.create(validInput("Finish me"))
	suite.Empty(suite.jobs.Jobs())

	done := validInput("Finish me")
	done.Status = models.StatusDone
	_, err := suite.service.UpdateTask(suite.db, task.ID, done)
	suite.Require().NoError(err)

	jobs := suite.jobs.Jobs()
	suite.Require().Len(jobs, 1)
	suite.Equal(worker.JobTypeTaskCompleted, jobs[0].Type)

	suite.jobs.Reset()
	_, err = suite.service.UpdateTask(suite.db, task.ID, done)
	suite.Require().NoError(err)
	suite.Empty(suite.jobs.Jobs())
}

func (suite *TaskServiceTestSuite) TestQueueFailureDoesNotFailWrite() {
	suite.jobs.err = errors.New("redis down")
	input := validInput("Still saved")
	input.DueDate = timePtr(baseTime.AddDate(0, 0, 1))

	task, err := suite.service.CreateTask(suite.db, input)

	suite.NoError(err)
	suite.True(task.HasID())
}

func TestTaskServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TaskServiceTestSuite))
}

func TestCompletionDate(t *testing.T) {
	now := baseTime
	earlier := baseTime.Add(-time.Hour)

	if got := completionDate(models.StatusDone, nil, now); got == nil || !got.Equal(now) {
		t.Errorf("Expected completion at now, got %v", got)
	}
	if got := completionDate(models.StatusDone, &earlier, now); got == nil || !got.Equal(earlier) {
		t.Errorf("Expected earlier completion to be kept, got %v", got)
	}
	if got := completionDate(models.StatusInProgress, &earlier, now); got != nil {
		t.Errorf("Expected completion to be cleared, got %v", got)
	}
}
