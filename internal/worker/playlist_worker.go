package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/smartplaylist/api/internal/metrics"
	"github.com/smartplaylist/api/internal/model"
	"github.com/smartplaylist/api/internal/service"
	"github.com/smartplaylist/api/internal/store"
	"github.com/smartplaylist/api/internal/websocket"
)

// PipelineRunner runs one playlist pipeline.
type PipelineRunner interface {
	Run(ctx context.Context, req model.PlaylistRequest, observe service.Observer) *model.PipelineResult
}

type Config struct {
	JobTimeout time.Duration
}

// PlaylistWorker runs each dispatched job in its own goroutine under the job
// deadline and records its progress in the registry.
type PlaylistWorker struct {
	pipeline PipelineRunner
	store    store.JobStore
	evictor  store.Evictor
	hub      *websocket.Hub
	metrics  *metrics.Metrics
	cfg      Config
	logger   *log.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewPlaylistWorker(
	pipeline PipelineRunner,
	jobs store.JobStore,
	evictor store.Evictor,
	hub *websocket.Hub,
	m *metrics.Metrics,
	cfg Config,
	logger *log.Logger,
) *PlaylistWorker {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PlaylistWorker{
		pipeline: pipeline,
		store:    jobs,
		evictor:  evictor,
		hub:      hub,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

var _ service.JobRunner = (*PlaylistWorker)(nil)

// Dispatch starts the job and returns immediately. The request, and with it
// the credential, lives only on this job's goroutine.
func (w *PlaylistWorker) Dispatch(jobID string, req model.PlaylistRequest) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.process(jobID, req)
	}()
}

// Shutdown waits for running jobs. When ctx expires first, the remaining
// jobs are cancelled and awaited.
func (w *PlaylistWorker) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return ctx.Err()
	}
}

func (w *PlaylistWorker) process(jobID string, req model.PlaylistRequest) {
	logger := w.logger.With("job_id", jobID)

	ctx, cancel := context.WithTimeout(w.baseCtx, w.cfg.JobTimeout)
	defer cancel()
	// Registry writes must still land after the deadline fires.
	storeCtx := context.WithoutCancel(ctx)

	w.metrics.JobStarted()
	logger.Info("starting playlist job")

	defer func() {
		if r := recover(); r != nil {
			logger.Error("playlist job panicked", "panic", r)
			w.finish(storeCtx, logger, jobID, model.JobStatusFailed, model.Failed(model.StageGeneration, "internal error"), "internal error")
		}
	}()

	now := time.Now().UTC()
	w.updateJob(storeCtx, logger, jobID, func(j *model.Job) error {
		j.Status = model.JobStatusRunning
		j.Stage = model.StageGeneration
		j.StartedAt = &now
		return nil
	})

	tracker := &stageTracker{metrics: w.metrics}
	result := w.pipeline.Run(ctx, req, func(ev model.ProgressEvent) {
		tracker.enter(ev.Stage)
		progress := progressFor(ev)
		w.updateJob(storeCtx, logger, jobID, func(j *model.Job) error {
			j.Stage = ev.Stage
			j.Progress = progress
			j.CurrentStep = ev.Message
			return nil
		})
		w.hub.BroadcastProgress(jobID, progress, model.JobStatusRunning, ev.Stage, ev.Message)
	})
	tracker.finish()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Warn("playlist job timed out", "timeout", w.cfg.JobTimeout)
		msg := fmt.Sprintf("job exceeded its %s deadline", w.cfg.JobTimeout)
		w.finish(storeCtx, logger, jobID, model.JobStatusTimedOut, nil, msg)
		return
	}

	if result.OK() {
		w.metrics.ObserveOutcome(result.Outcome)
		w.finish(storeCtx, logger, jobID, model.JobStatusSucceeded, result, "")
		return
	}

	if result == nil || result.Failure == nil {
		result = model.Failed(model.StageGeneration, "pipeline produced no result")
	}
	w.finish(storeCtx, logger, jobID, model.JobStatusFailed, result, result.Failure.Detail)
}

func (w *PlaylistWorker) finish(ctx context.Context, logger *log.Logger, jobID string, status model.JobStatus, result *model.PipelineResult, errMsg string) {
	completed := time.Now().UTC()
	w.updateJob(ctx, logger, jobID, func(j *model.Job) error {
		j.Status = status
		j.Result = result
		j.CompletedAt = &completed
		if status == model.JobStatusSucceeded {
			j.Progress = 100
			j.CurrentStep = "Playlist ready"
		}
		if errMsg != "" {
			e := errMsg
			j.Error = &e
		}
		if result != nil && result.Failure != nil {
			j.Stage = result.Failure.Stage
		}
		return nil
	})

	switch status {
	case model.JobStatusSucceeded:
		w.hub.BroadcastComplete(jobID, result)
		logger.Info("playlist job succeeded", "playlist_id", result.Outcome.PlaylistID, "added", len(result.Outcome.AddedURIs))
	case model.JobStatusTimedOut:
		w.hub.BroadcastError(jobID, "JOB_TIMED_OUT", errMsg)
	default:
		w.hub.BroadcastComplete(jobID, result)
		w.hub.BroadcastError(jobID, "JOB_FAILED", errMsg)
		logger.Warn("playlist job failed", "detail", errMsg)
	}

	w.metrics.JobFinished(status)

	if w.evictor != nil {
		if err := w.evictor.Schedule(ctx, jobID); err != nil {
			logger.Error("failed to schedule job eviction", "err", err)
		}
	}
}

func (w *PlaylistWorker) updateJob(ctx context.Context, logger *log.Logger, jobID string, fn func(*model.Job) error) {
	if _, err := w.store.Update(ctx, jobID, fn); err != nil {
		logger.Error("failed to update job", "err", err)
	}
}

// progressFor maps a pipeline event onto 0-100: generation up to 10,
// resolution 10-85, assembly 85-99. 100 is reserved for the final record.
func progressFor(ev model.ProgressEvent) int {
	switch ev.Stage {
	case model.StageGeneration:
		return 5
	case model.StageResolution:
		if ev.Total == 0 {
			return 10
		}
		return 10 + 75*ev.Step/ev.Total
	case model.StageAssembly:
		if ev.Total == 0 || ev.Step == 0 {
			return 85
		}
		return 85 + 14*ev.Step/ev.Total
	}
	return 0
}

// stageTracker records how long each pipeline stage took.
type stageTracker struct {
	metrics *metrics.Metrics
	stage   model.Stage
	since   time.Time
}

func (t *stageTracker) enter(stage model.Stage) {
	if stage == t.stage {
		return
	}
	t.finish()
	t.stage = stage
	t.since = time.Now()
}

func (t *stageTracker) finish() {
	if t.stage == "" {
		return
	}
	t.metrics.ObserveStage(t.stage, time.Since(t.since))
	t.stage = ""
}
