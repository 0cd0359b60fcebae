package model

import "time"

// CreatePlaylistRequest is the body of POST /api/playlists.
type CreatePlaylistRequest struct {
	UserPrompt            string `json:"user_prompt" validate:"required,min=3,max=1000"`
	AccessCredential      string `json:"access_credential" validate:"required"`
	TargetCount           *int   `json:"target_count,omitempty" validate:"omitempty,min=1"`
	TargetDurationMinutes *int   `json:"target_duration_minutes,omitempty" validate:"omitempty,min=1,max=600"`
	Name                  string `json:"name,omitempty" validate:"max=100"`
	Description           string `json:"description,omitempty" validate:"max=300"`
	Public                *bool  `json:"public,omitempty"`
}

// ToPlaylistRequest converts the body into the pipeline input.
func (r *CreatePlaylistRequest) ToPlaylistRequest() PlaylistRequest {
	return PlaylistRequest{
		UserPrompt:            r.UserPrompt,
		AccessCredential:      AccessCredential(r.AccessCredential),
		TargetCount:           r.TargetCount,
		TargetDurationMinutes: r.TargetDurationMinutes,
		Name:                  r.Name,
		Description:           r.Description,
		Public:                r.Public,
	}
}

type JobAcceptedResponse struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type JobStatusResponse struct {
	JobID       string     `json:"job_id"`
	Status      JobStatus  `json:"status"`
	Stage       Stage      `json:"stage,omitempty"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"current_step,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func NewJobStatusResponse(job *Job) JobStatusResponse {
	return JobStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Stage:       job.Stage,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}
