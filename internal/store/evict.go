package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"
)

// Evictor removes a finished job record once its retention has elapsed.
type Evictor interface {
	Schedule(ctx context.Context, jobID string) error
}

// TimerEvictor deletes records from a store with in-process timers. Pending
// timers do not survive a restart, which matches the memory backend.
type TimerEvictor struct {
	store     JobStore
	retention time.Duration
	logger    *log.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerEvictor(store JobStore, retention time.Duration, logger *log.Logger) *TimerEvictor {
	return &TimerEvictor{
		store:     store,
		retention: retention,
		logger:    logger,
		timers:    make(map[string]*time.Timer),
	}
}

func (e *TimerEvictor) Schedule(_ context.Context, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[jobID]; ok {
		t.Stop()
	}
	e.timers[jobID] = time.AfterFunc(e.retention, func() {
		e.mu.Lock()
		delete(e.timers, jobID)
		e.mu.Unlock()

		if err := e.store.Delete(context.Background(), jobID); err != nil {
			e.logger.Warn("failed to evict job", "job_id", jobID, "err", err)
			return
		}
		e.logger.Debug("job evicted", "job_id", jobID)
	})
	return nil
}

// Stop cancels all pending evictions.
func (e *TimerEvictor) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

// Pending returns the number of scheduled evictions.
func (e *TimerEvictor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// Task types
const (
	TypeJobEvict     = "job:evict"
	QueueMaintenance = "maintenance"
)

// EvictPayload is the asynq payload of an eviction task. It only names the
// job; nothing sensitive is ever enqueued.
type EvictPayload struct {
	JobID string `json:"job_id"`
}

// TaskEnqueuer is the subset of *asynq.Client used for scheduling.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqEvictor schedules eviction as a delayed asynq task so it survives
// restarts of the API process.
type AsynqEvictor struct {
	client    TaskEnqueuer
	retention time.Duration
}

func NewAsynqEvictor(client TaskEnqueuer, retention time.Duration) *AsynqEvictor {
	return &AsynqEvictor{client: client, retention: retention}
}

func (e *AsynqEvictor) Schedule(ctx context.Context, jobID string) error {
	task, err := NewEvictTask(jobID)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(e.retention),
		asynq.TaskID("evict:"+jobID),
		asynq.MaxRetry(3),
		asynq.Queue(QueueMaintenance),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue eviction: %w", err)
	}
	return nil
}

func NewEvictTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(EvictPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeJobEvict, payload), nil
}
