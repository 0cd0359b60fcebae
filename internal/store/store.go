package store

import (
	"context"
	"errors"

	"github.com/smartplaylist/api/internal/model"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

// JobStore is the registry of job records keyed by job id. Implementations
// hand out copies; callers mutate records only through Update.
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	// Update applies fn to the current record and stores the result.
	Update(ctx context.Context, id string, fn func(job *model.Job) error) (*model.Job, error)
	Delete(ctx context.Context, id string) error
}

func cloneJob(j *model.Job) *model.Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Result != nil {
		c.Result = cloneResult(j.Result)
	}
	return &c
}

func cloneResult(r *model.PipelineResult) *model.PipelineResult {
	c := &model.PipelineResult{}
	if r.Failure != nil {
		f := *r.Failure
		c.Failure = &f
	}
	if r.Outcome != nil {
		o := *r.Outcome
		// Empty sequences must stay empty, not nil: they serialize as [].
		if r.Outcome.AddedURIs != nil {
			o.AddedURIs = make([]string, len(r.Outcome.AddedURIs))
			copy(o.AddedURIs, r.Outcome.AddedURIs)
		}
		if r.Outcome.Skipped != nil {
			o.Skipped = make([]model.UnresolvedCandidate, len(r.Outcome.Skipped))
			copy(o.Skipped, r.Outcome.Skipped)
		}
		c.Outcome = &o
	}
	return c
}
