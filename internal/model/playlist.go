package model

// PlaylistRequest is built once per job from the submit body.
type PlaylistRequest struct {
	UserPrompt            string
	AccessCredential      AccessCredential
	TargetCount           *int
	TargetDurationMinutes *int
	Name                  string
	Description           string
	Public                *bool
}

// SongCandidate is a (title, artist) pair proposed by the generator.
type SongCandidate struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

type ResolvedTrack struct {
	Candidate SongCandidate `json:"candidate"`
	TrackURI  string        `json:"track_uri"`
	PublicURL string        `json:"public_url"`
}

// SkipReason explains why a candidate did not make it into the playlist.
type SkipReason string

const (
	SkipNotFound                  SkipReason = "NotFound"
	SkipAmbiguousNoConfidentMatch SkipReason = "AmbiguousNoConfidentMatch"
	SkipUpstreamError             SkipReason = "UpstreamError"
)

type UnresolvedCandidate struct {
	Candidate SongCandidate `json:"candidate"`
	Reason    SkipReason    `json:"reason"`
}

type PlaylistOutcome struct {
	PlaylistID  string                `json:"playlist_id"`
	PlaylistURL string                `json:"playlist_url"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	AddedURIs   []string              `json:"added_uris"`
	Skipped     []UnresolvedCandidate `json:"skipped"`
}

// Stage tags the pipeline stage a failure originated in.
type Stage string

const (
	StageGeneration Stage = "Generation"
	StageResolution Stage = "Resolution"
	StageAssembly   Stage = "Assembly"
)

type PipelineFailure struct {
	Stage  Stage  `json:"stage"`
	Detail string `json:"detail"`
}

// PipelineResult carries exactly one of Outcome or Failure.
type PipelineResult struct {
	Outcome *PlaylistOutcome `json:"outcome,omitempty"`
	Failure *PipelineFailure `json:"failure,omitempty"`
}

func Succeeded(o *PlaylistOutcome) *PipelineResult {
	return &PipelineResult{Outcome: o}
}

func Failed(stage Stage, detail string) *PipelineResult {
	return &PipelineResult{Failure: &PipelineFailure{Stage: stage, Detail: detail}}
}

func (r *PipelineResult) OK() bool {
	return r != nil && r.Outcome != nil && r.Failure == nil
}
