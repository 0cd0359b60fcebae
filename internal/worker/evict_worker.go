package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"

	"github.com/smartplaylist/api/internal/store"
)

// EvictWorker deletes expired job records on behalf of AsynqEvictor.
type EvictWorker struct {
	store  store.JobStore
	logger *log.Logger
}

func NewEvictWorker(jobs store.JobStore, logger *log.Logger) *EvictWorker {
	return &EvictWorker{store: jobs, logger: logger}
}

// ProcessTask handles store.TypeJobEvict tasks.
func (w *EvictWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload store.EvictPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal evict payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("evict payload without job id: %w", asynq.SkipRetry)
	}

	if err := w.store.Delete(ctx, payload.JobID); err != nil {
		return fmt.Errorf("failed to evict job %s: %w", payload.JobID, err)
	}
	w.logger.Debug("job evicted", "job_id", payload.JobID)
	return nil
}
