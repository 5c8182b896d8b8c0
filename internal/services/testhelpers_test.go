package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"taskify/backend/internal/models"
	"taskify/backend/internal/worker"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type enqueuedJob struct {
	Type      worker.JobType
	Payload   TaskJobPayload
	ProcessAt time.Time
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []enqueuedJob
	err  error
}

func (q *recordingQueue) EnqueueAt(_ context.Context, jobType worker.JobType, payload interface{}, processAt time.Time) (*worker.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.jobs = append(q.jobs, enqueuedJob{Type: jobType, Payload: payload.(TaskJobPayload), ProcessAt: processAt})
	return &worker.Job{Type: jobType}, nil
}

func (q *recordingQueue) Jobs() []enqueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]enqueuedJob(nil), q.jobs...)
}

func (q *recordingQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = nil
}

func timePtr(t time.Time) *time.Time { return &t }
func int64Ptr(v int64) *int64        { return &v }

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func validInput(title string) TaskInput {
	return TaskInput{
		Title:     title,
		Status:    models.StatusToDo,
		Priority:  models.PriorityMedium,
		StartDate: timePtr(baseTime),
	}
}
