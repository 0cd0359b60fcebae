package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/smartplaylist/api/internal/client"
	"github.com/smartplaylist/api/internal/model"
)

const punkResponse = `- "Basket Case" by Green Day
- "Self Esteem" by The Offspring
- "All the Small Things" by blink-182
- "Ruby Soho" by Rancid
- "The Middle" by Jimmy Eat World`

const punkPrompt = "Create a playlist with 5 punk rock songs from the 90s and 2000s"

func newPipeline(llm TextGenerator, cat *stubCatalog) *Pipeline {
	return NewPipeline(
		newGenerator(llm),
		newResolver(cat, 4),
		newAssembler(cat, 100),
		PipelineConfig{},
		testLogger(),
	)
}

func catalogResolvingAll(raw string) *stubCatalog {
	cat := newStubCatalog()
	for i, c := range ParseSongList(raw) {
		cat.found(c, "spotify:track:"+string(rune('a'+i)))
	}
	return cat
}

func request() model.PlaylistRequest {
	return model.PlaylistRequest{UserPrompt: punkPrompt, AccessCredential: "BQD-secret-token"}
}

func TestPipeline_AllResolved(t *testing.T) {
	cat := catalogResolvingAll(punkResponse)

	res := newPipeline(&stubLLM{response: punkResponse}, cat).Run(context.Background(), request(), nil)
	if !res.OK() {
		t.Fatalf("expected outcome, got failure %+v", res.Failure)
	}
	if len(res.Outcome.AddedURIs) != 5 {
		t.Errorf("expected 5 added, got %d", len(res.Outcome.AddedURIs))
	}
	if len(res.Outcome.Skipped) != 0 {
		t.Errorf("expected nothing skipped, got %+v", res.Outcome.Skipped)
	}
	if res.Outcome.AddedURIs[0] != "spotify:track:a" || res.Outcome.AddedURIs[4] != "spotify:track:e" {
		t.Errorf("added uris out of order: %v", res.Outcome.AddedURIs)
	}
	if cat.lastPublic {
		t.Error("playlists default to private")
	}
}

func TestPipeline_TwoNotFound(t *testing.T) {
	cat := catalogResolvingAll(punkResponse)
	cands := ParseSongList(punkResponse)
	delete(cat.tracks, SearchQueryFor(cands[1]))
	delete(cat.tracks, SearchQueryFor(cands[3]))

	res := newPipeline(&stubLLM{response: punkResponse}, cat).Run(context.Background(), request(), nil)
	if !res.OK() {
		t.Fatalf("expected outcome, got failure %+v", res.Failure)
	}
	if len(res.Outcome.AddedURIs) != 3 {
		t.Errorf("expected 3 added, got %d", len(res.Outcome.AddedURIs))
	}
	if len(res.Outcome.Skipped) != 2 {
		t.Fatalf("expected 2 skipped, got %d", len(res.Outcome.Skipped))
	}
	for _, s := range res.Outcome.Skipped {
		if s.Reason != model.SkipNotFound {
			t.Errorf("expected NotFound, got %s", s.Reason)
		}
	}
	if res.Outcome.Skipped[0].Candidate != cands[1] || res.Outcome.Skipped[1].Candidate != cands[3] {
		t.Errorf("skipped out of order: %+v", res.Outcome.Skipped)
	}
}

func TestPipeline_NoParsableLines(t *testing.T) {
	cat := newStubCatalog()

	res := newPipeline(&stubLLM{response: "Sorry, I can't help with that."}, cat).Run(context.Background(), request(), nil)
	if res.Failure == nil || res.Failure.Stage != model.StageGeneration {
		t.Fatalf("expected Generation failure, got %+v", res)
	}
	if res.Outcome != nil {
		t.Error("failure must not carry an outcome")
	}
	if len(cat.searches) != 0 {
		t.Error("resolver must not run after a generation failure")
	}
}

func TestPipeline_EmptyGeneration(t *testing.T) {
	cat := newStubCatalog()

	res := newPipeline(&stubLLM{response: ""}, cat).Run(context.Background(), request(), nil)
	if res.Failure == nil || res.Failure.Stage != model.StageGeneration || res.Failure.Detail != "no candidates produced" {
		t.Fatalf("unexpected result %+v", res.Failure)
	}
	if len(cat.searches) != 0 {
		t.Error("resolver must not run without candidates")
	}
}

func TestPipeline_GenerationUpstreamError(t *testing.T) {
	res := newPipeline(&stubLLM{err: errStub}, newStubCatalog()).Run(context.Background(), request(), nil)
	if res.Failure == nil || res.Failure.Stage != model.StageGeneration {
		t.Fatalf("expected Generation failure, got %+v", res)
	}
}

func TestPipeline_NothingResolved(t *testing.T) {
	cat := newStubCatalog()

	res := newPipeline(&stubLLM{response: punkResponse}, cat).Run(context.Background(), request(), nil)
	if res.Failure == nil || res.Failure.Stage != model.StageResolution {
		t.Fatalf("expected Resolution failure, got %+v", res)
	}
	if cat.creates != 0 {
		t.Error("an empty playlist must never be created")
	}
}

func TestPipeline_CreateFailed(t *testing.T) {
	cat := catalogResolvingAll(punkResponse)
	cat.createErr = &client.UpstreamError{Op: "create playlist", StatusCode: 403}

	res := newPipeline(&stubLLM{response: punkResponse}, cat).Run(context.Background(), request(), nil)
	if res.Failure == nil || res.Failure.Stage != model.StageAssembly {
		t.Fatalf("expected Assembly failure, got %+v", res)
	}
	if !strings.Contains(res.Failure.Detail, "CreateFailed") {
		t.Errorf("detail should mention CreateFailed: %q", res.Failure.Detail)
	}
	if res.Outcome != nil {
		t.Error("no outcome when create fails")
	}
}

func TestPipeline_AddFailedStillReturnsOutcome(t *testing.T) {
	cat := catalogResolvingAll(punkResponse)
	cat.addErrFrom = 1

	res := newPipeline(&stubLLM{response: punkResponse}, cat).Run(context.Background(), request(), nil)
	if !res.OK() {
		t.Fatalf("expected outcome, got failure %+v", res.Failure)
	}
	if res.Outcome.PlaylistURL == "" {
		t.Error("playlist_url should be set")
	}
	if len(res.Outcome.AddedURIs) != 0 {
		t.Errorf("expected empty added_uris, got %v", res.Outcome.AddedURIs)
	}
}

func TestPipeline_NameAndOverrides(t *testing.T) {
	cat := catalogResolvingAll(punkResponse)
	req := request()
	req.Name = "Road Trip"
	public := true
	req.Public = &public

	res := newPipeline(&stubLLM{response: punkResponse}, cat).Run(context.Background(), req, nil)
	if res.Outcome.Name != "Road Trip" || cat.lastName != "Road Trip" {
		t.Errorf("expected name override, got %q", res.Outcome.Name)
	}
	if !cat.lastPublic {
		t.Error("expected public override")
	}
	if !strings.Contains(res.Outcome.Description, punkPrompt) {
		t.Errorf("description should derive from prompt: %q", res.Outcome.Description)
	}
}

func TestPipeline_CredentialNeverInResult(t *testing.T) {
	cat := catalogResolvingAll(punkResponse)
	cat.createErr = &client.UpstreamError{Op: "create playlist", StatusCode: 401, Body: "bad token"}

	for _, res := range []*model.PipelineResult{
		newPipeline(&stubLLM{response: punkResponse}, catalogResolvingAll(punkResponse)).Run(context.Background(), request(), nil),
		newPipeline(&stubLLM{response: punkResponse}, cat).Run(context.Background(), request(), nil),
	} {
		data, _ := json.Marshal(res)
		if strings.Contains(string(data), "BQD-secret-token") {
			t.Errorf("credential leaked into result: %s", data)
		}
	}
}

func TestPipeline_EmitsStageEvents(t *testing.T) {
	cat := catalogResolvingAll(punkResponse)

	var stages []model.Stage
	newPipeline(&stubLLM{response: punkResponse}, cat).Run(context.Background(), request(), func(ev model.ProgressEvent) {
		if len(stages) == 0 || stages[len(stages)-1] != ev.Stage {
			stages = append(stages, ev.Stage)
		}
	})

	want := []model.Stage{model.StageGeneration, model.StageResolution, model.StageAssembly}
	if len(stages) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d: expected %s, got %s", i, want[i], stages[i])
		}
	}
}
