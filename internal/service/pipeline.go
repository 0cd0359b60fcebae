package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/smartplaylist/api/internal/model"
)

// Observer receives progress events from a pipeline run. Calls are
// sequential and must not block for long.
type Observer func(model.ProgressEvent)

type PipelineConfig struct {
	// Public is the visibility used when a request does not set one.
	Public bool
}

// Pipeline sequences generation, resolution and assembly for one request.
// It holds no per-run state, so one Pipeline serves concurrent jobs.
type Pipeline struct {
	generator *SongListGenerator
	resolver  *TrackResolver
	assembler *PlaylistAssembler
	cfg       PipelineConfig
	logger    *log.Logger
}

func NewPipeline(generator *SongListGenerator, resolver *TrackResolver, assembler *PlaylistAssembler, cfg PipelineConfig, logger *log.Logger) *Pipeline {
	return &Pipeline{
		generator: generator,
		resolver:  resolver,
		assembler: assembler,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes the pipeline to completion or to its first terminal failure.
// The returned result carries exactly one of outcome or failure.
func (p *Pipeline) Run(ctx context.Context, req model.PlaylistRequest, observe Observer) *model.PipelineResult {
	emit := func(ev model.ProgressEvent) {
		if observe != nil {
			observe(ev)
		}
	}

	// Generating
	emit(model.ProgressEvent{Stage: model.StageGeneration, Message: "Generating song list"})
	candidates, err := p.generator.Generate(ctx, req.UserPrompt, req.TargetCount, req.TargetDurationMinutes)
	if err != nil {
		p.logger.Warn("generation failed", "err", err)
		return model.Failed(model.StageGeneration, err.Error())
	}
	if len(candidates) == 0 {
		return model.Failed(model.StageGeneration, "no candidates produced")
	}
	p.logger.Info("song list generated", "candidates", len(candidates))

	// Resolving
	total := len(candidates)
	emit(model.ProgressEvent{Stage: model.StageResolution, Total: total, Message: fmt.Sprintf("Searching catalog for %d songs", total)})
	resolved, unresolved, err := p.resolver.Resolve(ctx, candidates, req.AccessCredential, func(done, total int) {
		emit(model.ProgressEvent{Stage: model.StageResolution, Step: done, Total: total, Message: fmt.Sprintf("Resolved %d/%d songs", done, total)})
	})
	if err != nil {
		return model.Failed(model.StageResolution, err.Error())
	}
	if len(resolved) == 0 {
		return model.Failed(model.StageResolution, describeMisses(unresolved))
	}
	p.logger.Info("tracks resolved", "resolved", len(resolved), "skipped", len(unresolved))

	// Assembling
	uris := make([]string, len(resolved))
	for i, t := range resolved {
		uris[i] = t.TrackURI
	}
	public := p.cfg.Public
	if req.Public != nil {
		public = *req.Public
	}

	emit(model.ProgressEvent{Stage: model.StageAssembly, Total: len(uris), Message: "Creating playlist"})
	outcome, err := p.assembler.Assemble(ctx, AssembleInput{
		Name:        PlaylistName(req.UserPrompt, req.Name),
		Description: PlaylistDescription(req.UserPrompt, req.Description),
		Public:      public,
		URIs:        uris,
	}, req.AccessCredential)
	if outcome == nil {
		if err == nil {
			err = errors.New("assembler returned no outcome")
		}
		p.logger.Warn("assembly failed", "err", err)
		return model.Failed(model.StageAssembly, err.Error())
	}
	if err != nil {
		// The playlist exists; a short add is reported through added_uris.
		p.logger.Warn("playlist partially populated", "playlist_id", outcome.PlaylistID, "err", err)
	}

	if unresolved == nil {
		unresolved = []model.UnresolvedCandidate{}
	}
	outcome.Skipped = unresolved

	emit(model.ProgressEvent{Stage: model.StageAssembly, Step: len(outcome.AddedURIs), Total: len(uris), Message: "Playlist ready"})
	p.logger.Info("playlist created", "playlist_id", outcome.PlaylistID, "added", len(outcome.AddedURIs), "skipped", len(outcome.Skipped))
	return model.Succeeded(outcome)
}

func describeMisses(unresolved []model.UnresolvedCandidate) string {
	counts := map[model.SkipReason]int{}
	for _, u := range unresolved {
		counts[u.Reason]++
	}
	return fmt.Sprintf("no candidates resolved (%d %s, %d %s, %d %s)",
		counts[model.SkipNotFound], model.SkipNotFound,
		counts[model.SkipAmbiguousNoConfidentMatch], model.SkipAmbiguousNoConfidentMatch,
		counts[model.SkipUpstreamError], model.SkipUpstreamError)
}
