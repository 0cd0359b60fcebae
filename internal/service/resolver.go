package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/smartplaylist/api/internal/client"
	"github.com/smartplaylist/api/internal/model"
)

// TrackSearcher is the catalog search capability.
type TrackSearcher interface {
	SearchTracks(ctx context.Context, cred model.AccessCredential, q client.SearchQuery) ([]client.Track, error)
}

type ResolverConfig struct {
	Market      string
	Limit       int
	Concurrency int
	// RequestsPerSecond throttles lookups within one call; zero disables it.
	RequestsPerSecond float64
}

// TrackResolver maps candidates to catalog tracks. A failing lookup only
// affects its own candidate.
type TrackResolver struct {
	catalog TrackSearcher
	cfg     ResolverConfig
	logger  *log.Logger
}

func NewTrackResolver(catalog TrackSearcher, cfg ResolverConfig, logger *log.Logger) *TrackResolver {
	if cfg.Market == "" {
		cfg.Market = "US"
	}
	if cfg.Limit <= 0 || cfg.Limit > 5 {
		cfg.Limit = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &TrackResolver{catalog: catalog, cfg: cfg, logger: logger}
}

// ResolveFunc is called once per candidate as its lookup finishes.
type ResolveFunc func(done, total int)

type lookup struct {
	resolved *model.ResolvedTrack
	reason   model.SkipReason
}

// Resolve looks up every candidate and returns resolved and unresolved
// entries, each in input order. It only fails when ctx is done.
func (r *TrackResolver) Resolve(ctx context.Context, candidates []model.SongCandidate, cred model.AccessCredential, onEach ResolveFunc) ([]model.ResolvedTrack, []model.UnresolvedCandidate, error) {
	results := make([]lookup, len(candidates))

	var limiter *rate.Limiter
	if r.cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), 1)
	}

	done := make(chan struct{}, len(candidates))
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		n := 0
		for range done {
			n++
			if onEach != nil {
				onEach(n, len(candidates))
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i, c := range candidates {
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					// The next token lands past the deadline; the lookup
					// could not finish in time either.
					r.logger.Warn("track lookup throttled out", "title", c.Title, "artist", c.Artist, "err", err)
					results[i] = lookup{reason: model.SkipUpstreamError}
					done <- struct{}{}
					return nil
				}
			}
			results[i] = r.resolveOne(gctx, c, cred)
			done <- struct{}{}
			return nil
		})
	}

	err := g.Wait()
	close(done)
	<-progressDone
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var resolved []model.ResolvedTrack
	var unresolved []model.UnresolvedCandidate
	for i, res := range results {
		if res.resolved != nil {
			resolved = append(resolved, *res.resolved)
			continue
		}
		unresolved = append(unresolved, model.UnresolvedCandidate{Candidate: candidates[i], Reason: res.reason})
	}
	return resolved, unresolved, nil
}

func (r *TrackResolver) resolveOne(ctx context.Context, c model.SongCandidate, cred model.AccessCredential) lookup {
	items, err := r.catalog.SearchTracks(ctx, cred, client.SearchQuery{
		Query:  SearchQueryFor(c),
		Market: r.cfg.Market,
		Limit:  r.cfg.Limit,
	})
	if err != nil {
		r.logger.Warn("track lookup failed", "title", c.Title, "artist", c.Artist, "err", lookupErrorDetail(err))
		return lookup{reason: model.SkipUpstreamError}
	}
	if len(items) == 0 {
		r.logger.Debug("track not found", "title", c.Title, "artist", c.Artist)
		return lookup{reason: model.SkipNotFound}
	}

	best := items[0]
	if best.URI == "" {
		return lookup{reason: model.SkipAmbiguousNoConfidentMatch}
	}
	return lookup{resolved: &model.ResolvedTrack{
		Candidate: c,
		TrackURI:  best.URI,
		PublicURL: best.ExternalURLs.Spotify,
	}}
}

// SearchQueryFor builds the field-qualified catalog query for c.
func SearchQueryFor(c model.SongCandidate) string {
	return fmt.Sprintf("track:%s artist:%s", c.Title, c.Artist)
}

func lookupErrorDetail(err error) string {
	var ue *client.UpstreamError
	if errors.As(err, &ue) && ue.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d", ue.Op, ue.StatusCode)
	}
	return err.Error()
}
