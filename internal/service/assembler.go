package service

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/smartplaylist/api/internal/client"
	"github.com/smartplaylist/api/internal/model"
)

// PlaylistWriter is the catalog identity and playlist mutation capability.
type PlaylistWriter interface {
	CurrentUser(ctx context.Context, cred model.AccessCredential) (*client.User, error)
	CreatePlaylist(ctx context.Context, cred model.AccessCredential, userID, name, description string, public bool) (*client.Playlist, error)
	AddTracks(ctx context.Context, cred model.AccessCredential, playlistID string, uris []string, position int) (string, error)
}

type AssemblerConfig struct {
	// BatchSize is the add-tracks ceiling per call.
	BatchSize int
}

// PlaylistAssembler creates a playlist and fills it in ordered batches.
type PlaylistAssembler struct {
	catalog PlaylistWriter
	cfg     AssemblerConfig
	logger  *log.Logger
}

func NewPlaylistAssembler(catalog PlaylistWriter, cfg AssemblerConfig, logger *log.Logger) *PlaylistAssembler {
	if cfg.BatchSize <= 0 || cfg.BatchSize > 100 {
		cfg.BatchSize = 100
	}
	return &PlaylistAssembler{catalog: catalog, cfg: cfg, logger: logger}
}

// AssembleInput describes the playlist to build. UserID may be empty, in
// which case the identity is looked up with the credential.
type AssembleInput struct {
	UserID      string
	Name        string
	Description string
	Public      bool
	URIs        []string
}

// Assemble creates the playlist and adds the URIs.
//
// If the playlist cannot be created the outcome is nil and the error is an
// *AssemblyError with stage CreateFailed. Once the playlist exists, an add
// failure stops further batches and the returned outcome lists only the
// URIs actually added, alongside an *AssemblyError with stage AddFailed.
// A non-nil outcome is always usable.
func (a *PlaylistAssembler) Assemble(ctx context.Context, in AssembleInput, cred model.AccessCredential) (*model.PlaylistOutcome, error) {
	userID := in.UserID
	if userID == "" {
		user, err := a.catalog.CurrentUser(ctx, cred)
		if err != nil {
			return nil, &AssemblyError{Stage: AssemblyCreateFailed, Detail: "could not resolve current user", Err: err}
		}
		if user.ID == "" {
			return nil, &AssemblyError{Stage: AssemblyCreateFailed, Detail: "current user has no id"}
		}
		a.logger.Debug("resolved catalog identity", "display_name", user.DisplayName, "profile", user.ExternalURLs.Spotify)
		userID = user.ID
	}

	pl, err := a.catalog.CreatePlaylist(ctx, cred, userID, in.Name, in.Description, in.Public)
	if err != nil {
		return nil, &AssemblyError{Stage: AssemblyCreateFailed, Detail: "create playlist failed", Err: err}
	}

	outcome := &model.PlaylistOutcome{
		PlaylistID:  pl.ID,
		PlaylistURL: pl.ExternalURLs.Spotify,
		Name:        firstNonEmpty(pl.Name, in.Name),
		Description: firstNonEmpty(pl.Description, in.Description),
		AddedURIs:   []string{},
		Skipped:     []model.UnresolvedCandidate{},
	}

	for start := 0; start < len(in.URIs); start += a.cfg.BatchSize {
		end := min(start+a.cfg.BatchSize, len(in.URIs))
		batch := in.URIs[start:end]

		if _, err := a.catalog.AddTracks(ctx, cred, pl.ID, batch, len(outcome.AddedURIs)); err != nil {
			a.logger.Warn("add tracks failed", "playlist_id", pl.ID, "added", len(outcome.AddedURIs), "requested", len(in.URIs))
			return outcome, &AssemblyError{
				Stage:  AssemblyAddFailed,
				Detail: fmt.Sprintf("added %d of %d tracks", len(outcome.AddedURIs), len(in.URIs)),
				Err:    err,
			}
		}
		outcome.AddedURIs = append(outcome.AddedURIs, batch...)
	}

	return outcome, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
