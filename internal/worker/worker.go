// Package worker runs background jobs queued in Redis.
//
// Jobs due now sit in a ready list consumed with BLPOP. Jobs scheduled for
// later, including retries, sit in a sorted set scored by their process time
// and are promoted to the ready list once due.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type JobType string

const (
	JobTypeTaskReminder  JobType = "task_reminder"
	JobTypeTaskCompleted JobType = "task_completed"
)

type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	MaxTries  int             `json:"max_tries"`
	CreatedAt time.Time       `json:"created_at"`
	ProcessAt time.Time       `json:"process_at"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Type, err)
	}
	return nil
}

type JobHandler func(ctx context.Context, job *Job) error

// ErrNoHandler is recorded on jobs whose type has no registered handler.
var ErrNoHandler = errors.New("no handler registered for job type")

type keys struct {
	ready     string
	scheduled string
	dead      string
}

func newKeys(prefix string) keys {
	if prefix == "" {
		prefix = "jobs:"
	}
	return keys{
		ready:     prefix + "ready",
		scheduled: prefix + "scheduled",
		dead:      prefix + "dead",
	}
}

// promoteScript moves due members of the schedule into the ready list atomically.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, job in ipairs(due) do
  redis.call('ZREM', KEYS[1], job)
  redis.call('RPUSH', KEYS[2], job)
end
return #due
`)

type JobQueue struct {
	client   *redis.Client
	keys     keys
	maxTries int
	now      func() time.Time
}

func NewJobQueue(client *redis.Client, prefix string, maxTries int) *JobQueue {
	if maxTries <= 0 {
		maxTries = 3
	}
	return &JobQueue{
		client:   client,
		keys:     newKeys(prefix),
		maxTries: maxTries,
		now:      time.Now,
	}
}

func (q *JobQueue) Enqueue(ctx context.Context, jobType JobType, payload interface{}) (*Job, error) {
	return q.EnqueueAt(ctx, jobType, payload, q.now())
}

// EnqueueAt schedules a job. A processAt not in the future makes the job
// ready immediately.
func (q *JobQueue) EnqueueAt(ctx context.Context, jobType JobType, payload interface{}, processAt time.Time) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate job id: %w", err)
	}

	now := q.now()
	job := &Job{
		ID:        id.String(),
		Type:      jobType,
		Payload:   data,
		MaxTries:  q.maxTries,
		CreatedAt: now,
		ProcessAt: processAt,
	}
	if err := q.push(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (q *JobQueue) push(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if job.ProcessAt.After(q.now()) {
		err = q.client.ZAdd(ctx, q.keys.scheduled, redis.Z{
			Score:  float64(job.ProcessAt.UnixMilli()),
			Member: data,
		}).Err()
	} else {
		err = q.client.RPush(ctx, q.keys.ready, data).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// PromoteDue moves up to limit due scheduled jobs to the ready list.
func (q *JobQueue) PromoteDue(ctx context.Context, limit int) (int, error) {
	n, err := promoteScript.Run(ctx, q.client,
		[]string{q.keys.scheduled, q.keys.ready},
		q.now().UnixMilli(), limit,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to promote scheduled jobs: %w", err)
	}
	return n, nil
}

type QueueSizes struct {
	Ready     int64 `json:"ready"`
	Scheduled int64 `json:"scheduled"`
	Dead      int64 `json:"dead"`
}

func (q *JobQueue) Sizes(ctx context.Context) (QueueSizes, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.keys.ready)
	scheduled := pipe.ZCard(ctx, q.keys.scheduled)
	dead := pipe.LLen(ctx, q.keys.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return QueueSizes{}, fmt.Errorf("failed to read queue sizes: %w", err)
	}
	return QueueSizes{Ready: ready.Val(), Scheduled: scheduled.Val(), Dead: dead.Val()}, nil
}

// DeadJob is a job that exhausted its retries.
type DeadJob struct {
	Job      Job       `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func (q *JobQueue) DeadJobs(ctx context.Context) ([]DeadJob, error) {
	raw, err := q.client.LRange(ctx, q.keys.dead, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead jobs: %w", err)
	}
	out := make([]DeadJob, 0, len(raw))
	for _, item := range raw {
		var dj DeadJob
		if err := json.Unmarshal([]byte(item), &dj); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead job: %w", err)
		}
		out = append(out, dj)
	}
	return out, nil
}

func (q *JobQueue) bury(ctx context.Context, job *Job, jobErr error) error {
	data, err := json.Marshal(DeadJob{Job: *job, Error: jobErr.Error(), FailedAt: q.now()})
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}
	return q.client.RPush(ctx, q.keys.dead, data).Err()
}

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	RetryBase    time.Duration
	JobTimeout   time.Duration
	Logger       *zap.Logger
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:  2,
		PollInterval: time.Second,
		RetryBase:    30 * time.Second,
		JobTimeout:   30 * time.Second,
	}
}

type Worker struct {
	queue    *JobQueue
	cfg      WorkerConfig
	logger   *zap.Logger
	handlers map[JobType]JobHandler
	mu       sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

func NewWorker(queue *JobQueue, cfg WorkerConfig) *Worker {
	defaults := DefaultWorkerConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaults.RetryBase
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaults.JobTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		cfg:      cfg,
		logger:   logger.Named("worker"),
		handlers: make(map[JobType]JobHandler),
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Start launches the scheduler loop and Concurrency consumers. They run
// until Stop is called or ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Info("starting worker", zap.Int("concurrency", w.cfg.Concurrency))

	w.wg.Add(1)
	go w.schedulerLoop(ctx)

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.consumerLoop(ctx, i)
	}
}

func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.logger.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) schedulerLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.queue.PromoteDue(ctx, 100); err != nil && ctx.Err() == nil {
			w.logger.Warn("promoting scheduled jobs failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) consumerLoop(ctx context.Context, id int) {
	defer w.wg.Done()

	for ctx.Err() == nil {
		if err := w.ProcessNext(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("error processing job", zap.Int("consumer", id), zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.PollInterval):
			}
		}
	}
}

// ProcessNext waits up to PollInterval for a ready job and runs it. It
// returns nil when no job arrived.
func (w *Worker) ProcessNext(ctx context.Context) error {
	result, err := w.queue.client.BLPop(ctx, w.cfg.PollInterval, w.queue.keys.ready).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}
	if len(result) < 2 {
		return errors.New("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return w.execute(ctx, &job)
}

func (w *Worker) execute(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	log := w.logger.With(zap.String("job_id", job.ID), zap.String("job_type", string(job.Type)))

	if !exists {
		w.failed.Add(1)
		log.Error("no handler for job")
		return w.queue.bury(ctx, job, fmt.Errorf("%w: %s", ErrNoHandler, job.Type))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	err := handler(jobCtx, job)
	if err == nil {
		w.processed.Add(1)
		log.Debug("job completed")
		return nil
	}

	job.Attempts++
	if job.Attempts < job.MaxTries {
		w.retried.Add(1)
		job.ProcessAt = w.queue.now().Add(w.cfg.RetryBase * time.Duration(1<<(job.Attempts-1)))
		log.Warn("job failed, retrying",
			zap.Int("attempt", job.Attempts), zap.Int("max_tries", job.MaxTries),
			zap.Time("retry_at", job.ProcessAt), zap.Error(err))
		return w.queue.push(ctx, job)
	}

	w.failed.Add(1)
	log.Error("job failed permanently", zap.Int("attempts", job.Attempts), zap.Error(err))
	return w.queue.bury(ctx, job, err)
}

type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
}

func (w *Worker) Stats() Stats {
	return Stats{
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
		Retried:   w.retried.Load(),
	}
}
