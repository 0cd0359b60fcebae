package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/smartplaylist/api/internal/model"
	"github.com/smartplaylist/api/internal/store"
)

var (
	ErrJobNotFinished = errors.New("job not finished")
	ErrJobTimedOut    = errors.New("job timed out")
)

// JobRunner executes a registered job in the background.
type JobRunner interface {
	Dispatch(jobID string, req model.PlaylistRequest)
}

// PlaylistService owns job submission and lookup. The pipeline itself runs
// inside the JobRunner.
type PlaylistService struct {
	store  store.JobStore
	runner JobRunner
	logger *log.Logger
}

func NewPlaylistService(jobs store.JobStore, runner JobRunner, logger *log.Logger) *PlaylistService {
	return &PlaylistService{store: jobs, runner: runner, logger: logger}
}

// Submit registers a queued job and hands it to the runner. The credential
// goes to the runner only and is never written to the registry.
func (s *PlaylistService) Submit(ctx context.Context, req *model.CreatePlaylistRequest) (*model.JobAcceptedResponse, error) {
	job := &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusQueued,
		Prompt:    req.UserPrompt,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to register job: %w", err)
	}

	s.runner.Dispatch(job.ID, req.ToPlaylistRequest())
	s.logger.Info("playlist job submitted", "job_id", job.ID)

	return &model.JobAcceptedResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

func (s *PlaylistService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	resp := model.NewJobStatusResponse(job)
	return &resp, nil
}

// GetResult returns the pipeline result of a finished job. Queued and
// running jobs give ErrJobNotFinished; expired ones give ErrJobTimedOut.
func (s *PlaylistService) GetResult(ctx context.Context, jobID string) (*model.PipelineResult, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case model.JobStatusSucceeded, model.JobStatusFailed:
		if job.Result == nil {
			return nil, fmt.Errorf("job %s finished without a result", jobID)
		}
		return job.Result, nil
	case model.JobStatusTimedOut:
		return nil, ErrJobTimedOut
	default:
		return nil, ErrJobNotFinished
	}
}
