package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"CONFIG_FILE",
	"HOST", "PORT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT", "ENVIRONMENT", "ALLOWED_ORIGINS",
	"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE", "DB_PATH",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME", "DB_AUTO_MIGRATE",
	"REDIS_ENABLED", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_KEY_PREFIX", "REDIS_POOL_SIZE",
	"REDIS_MIN_IDLE_CONNS", "REDIS_MAX_RETRIES", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"CACHE_L1_TTL", "CACHE_L1_MAX_ENTRIES", "CACHE_WARM_INTERVAL",
	"WORKER_ENABLED", "WORKER_CONCURRENCY", "WORKER_POLL_INTERVAL", "WORKER_MAX_RETRIES", "WORKER_RETRY_BASE", "WORKER_JOB_TIMEOUT",
	"JWT_SECRET", "JWT_ISSUER", "ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL", "BCRYPT_COST",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "RATE_LIMIT_BURST", "RATE_LIMIT_CLEANUP",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT", "LOG_FILE",
	"METRICS_ENABLED", "METRICS_PATH",
}

// clearEnv blanks every variable the loader reads; t.Setenv restores them.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, "8080", config.Server.Port)
	assert.Equal(t, "development", config.Server.Environment)
	assert.Equal(t, "postgres", config.Database.Driver)
	assert.Equal(t, "taskify", config.Database.Name)
	assert.Equal(t, 25, config.Database.MaxOpenConns)
	assert.True(t, config.Redis.Enabled)
	assert.Equal(t, "localhost:6379", config.GetRedisAddr())
	assert.Equal(t, 10, config.Redis.PoolSize)
	assert.Equal(t, 4, config.Worker.Concurrency)
	assert.Equal(t, 3, config.Worker.MaxRetries)
	assert.Equal(t, time.Hour, config.Auth.AccessTokenTTL)
	assert.Equal(t, "taskify-backend", config.Auth.Issuer)
	assert.Equal(t, 10, config.Auth.BCryptCost)
	assert.True(t, config.RateLimit.Enabled)
	assert.Equal(t, 100, config.RateLimit.RequestsPerMin)
	assert.Equal(t, time.Minute, config.Cache.L1TTL)
	assert.Equal(t, 5, config.Cache.CircuitBreaker.MaxFailures)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, "/metrics", config.Metrics.Path)
	assert.False(t, config.IsProduction())
}

func TestLoadConfig_CustomEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "9000")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DB_HOST", "db.example.com")
	t.Setenv("DB_PASSWORD", "secure_password")
	t.Setenv("DB_MAX_OPEN_CONNS", "50")
	t.Setenv("REDIS_HOST", "redis.example.com")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "1")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("JWT_SECRET", "super-secret-key")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("READ_TIMEOUT", "45s")
	t.Setenv("ACCESS_TOKEN_TTL", "30m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", config.GetServerAddr())
	assert.True(t, config.IsProduction())
	assert.Equal(t, "db.example.com", config.Database.Host)
	assert.Equal(t, 50, config.Database.MaxOpenConns)
	assert.Equal(t, "redis.example.com:6380", config.GetRedisAddr())
	assert.Equal(t, 1, config.Redis.DB)
	assert.Equal(t, 8, config.Worker.Concurrency)
	assert.False(t, config.RateLimit.Enabled)
	assert.Equal(t, 45*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 30*time.Minute, config.Auth.AccessTokenTTL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, config.Server.AllowedOrigins)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("READ_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_ENABLED", "maybe")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 25, config.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
	assert.True(t, config.RateLimit.Enabled)
}

func TestLoadConfig_ProductionGuards(t *testing.T) {
	t.Run("missing database password", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("JWT_SECRET", "set")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database password")
	})

	t.Run("default jwt secret", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("DB_PASSWORD", "pw")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT secret")
	})

	t.Run("sqlite needs no password", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("JWT_SECRET", "set")
		t.Setenv("DB_DRIVER", "sqlite")

		_, err := LoadConfig()
		assert.NoError(t, err)
	})
}

func TestLoadConfig_RejectsUnknownDriverAndOrphanWorker(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "oracle")
	t.Setenv("REDIS_ENABLED", "false")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported database driver "oracle"`)
	assert.Contains(t, err.Error(), "worker requires redis")
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "taskify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
  shutdown_timeout: 5s
database:
  driver: sqlite
  path: /tmp/taskify-test.db
redis:
  enabled: false
worker:
  enabled: false
cache:
  l1_ttl: 90s
  circuit_breaker:
    max_failures: 2
    timeout: 10s
logging:
  level: debug
  format: console
`), 0o600))
	t.Setenv("PORT", "7001")

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7001", config.Server.Port, "env wins over the file")
	assert.Equal(t, 5*time.Second, config.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", config.Database.Driver)
	assert.Equal(t, "/tmp/taskify-test.db", config.GetDatabaseDSN())
	assert.False(t, config.Redis.Enabled)
	assert.Equal(t, 90*time.Second, config.Cache.L1TTL)
	assert.Equal(t, 2, config.Cache.CircuitBreaker.MaxFailures)
	assert.Equal(t, 10*time.Second, config.Cache.CircuitBreaker.Timeout)
	assert.Equal(t, 3, config.Cache.CircuitBreaker.HalfOpenMaxCalls, "unset keys keep defaults")
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "localhost", config.Server.Host)
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "taskify.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  host: 127.0.0.1\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	config, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
}

func TestLoad_BadFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestGetDatabaseDSN(t *testing.T) {
	config := Default()
	config.Database.Password = "pw"

	assert.Equal(t, "host=localhost port=5432 user=postgres password=pw dbname=taskify sslmode=disable", config.GetDatabaseDSN())
}

func TestRedisCacheConfig(t *testing.T) {
	config := Default()
	config.Redis.Port = "6390"

	rc := config.RedisCacheConfig()
	assert.Equal(t, "localhost:6390", rc.Addr)
	assert.Equal(t, "taskify:", rc.KeyPrefix)
	assert.Equal(t, 3*time.Second, rc.ReadTimeout)
}
