package backend_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskify/backend/internal/client"
	"taskify/backend/internal/config"
	"taskify/backend/internal/models"
	"taskify/backend/internal/server"
	"taskify/backend/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupEnv(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "taskify.db"))
	t.Setenv("REDIS_HOST", mr.Host())
	t.Setenv("REDIS_PORT", mr.Port())
	t.Setenv("WORKER_POLL_INTERVAL", "1s")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("JWT_SECRET", "integration-secret")
	t.Setenv("BCRYPT_COST", "4")
	return mr
}

func TestApplicationStartup(t *testing.T) {
	setupEnv(t)
	gin.SetMode(gin.TestMode)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, time.Second, cfg.Worker.PollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := server.OpenDatabase(ctx, cfg)
	require.NoError(t, err)
	auth := services.NewAuthService(services.AuthConfig{Secret: cfg.Auth.JWTSecret, BcryptCost: cfg.Auth.BCryptCost})
	_, err = auth.CreateUser(pool.DB, services.Credentials{Username: "alice", Password: "secret123"}, 7)
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	srv, err := server.Open(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	srv.Start(ctx)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		assert.NoError(t, srv.Shutdown())
	})

	c := client.New(client.Config{BaseURL: ts.URL, Timeout: 5 * time.Second})
	_, err = c.Login(ctx, "alice", "secret123")
	require.NoError(t, err)

	start := time.Now().UTC()
	assignee := int64(7)
	task, err := c.CreateTask(ctx, services.TaskInput{
		Title:      "Close the sprint",
		Status:     models.StatusDone,
		Priority:   models.PriorityHigh,
		AssigneeID: &assignee,
		StartDate:  &start,
	})
	require.NoError(t, err)
	require.NotNil(t, task.CompletedDate)

	page, err := c.MyTasks(ctx, nil)
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, task.ID, page.Tasks[0].ID)

	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(t, ts.URL+"/metrics"), "taskify_worker_jobs_processed_total 1")
	}, 5*time.Second, 100*time.Millisecond, "completion job processed by the worker")

	assert.Contains(t, scrape(t, ts.URL+"/health"), `"status":"healthy"`)
}

func TestCacheSurvivesRedisOutage(t *testing.T) {
	mr := setupEnv(t)
	t.Setenv("WORKER_ENABLED", "false")
	gin.SetMode(gin.TestMode)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	ctx := context.Background()
	pool, err := server.OpenDatabase(ctx, cfg)
	require.NoError(t, err)
	auth := services.NewAuthService(services.AuthConfig{Secret: cfg.Auth.JWTSecret, BcryptCost: cfg.Auth.BCryptCost})
	_, err = auth.CreateUser(pool.DB, services.Credentials{Username: "alice", Password: "secret123"}, 7)
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	srv, err := server.Open(ctx, cfg, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown()
	})

	c := client.New(client.Config{BaseURL: ts.URL, Timeout: 5 * time.Second})
	_, err = c.Login(ctx, "alice", "secret123")
	require.NoError(t, err)

	start := time.Now().UTC()
	_, err = c.CreateTask(ctx, services.TaskInput{Title: "Survive outage", Status: models.StatusToDo, Priority: models.PriorityLow, StartDate: &start})
	require.NoError(t, err)

	mr.Close()

	page, err := c.ListTasks(ctx, nil)
	require.NoError(t, err, "listing falls back to the database")
	assert.Equal(t, 1, page.Total)
}

func TestProductionRequiresSecrets(t *testing.T) {
	setupEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := config.LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret")
}

func scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}
