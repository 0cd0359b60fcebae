package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/smartplaylist/api/internal/client"
	"github.com/smartplaylist/api/internal/model"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

type stubLLM struct {
	response string
	err      error

	mu      sync.Mutex
	prompts []string
}

func (s *stubLLM) ChatCompletion(_ context.Context, _, user string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, user)
	s.mu.Unlock()
	return s.response, s.err
}

// stubCatalog answers searches from a table keyed by query and records
// every mutation call.
type stubCatalog struct {
	mu sync.Mutex

	tracks    map[string][]client.Track
	searchErr map[string]error

	user       *client.User
	userErr    error
	createErr  error
	addErrFrom int // 1-based add call that starts failing; 0 never fails

	searches    []string
	creates     int
	lastPublic  bool
	lastName    string
	addCalls    [][]string
	addPosition []int
	credentials []model.AccessCredential
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		tracks:    map[string][]client.Track{},
		searchErr: map[string]error{},
		user:      &client.User{ID: "alice", DisplayName: "Alice"},
	}
}

func (s *stubCatalog) found(c model.SongCandidate, uri string) {
	s.tracks[SearchQueryFor(c)] = []client.Track{{
		URI:          uri,
		Name:         c.Title,
		ExternalURLs: client.ExternalURLs{Spotify: "https://open.spotify.com/track/" + uri},
	}}
}

func (s *stubCatalog) SearchTracks(_ context.Context, cred model.AccessCredential, q client.SearchQuery) ([]client.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches = append(s.searches, q.Query)
	s.credentials = append(s.credentials, cred)
	if err, ok := s.searchErr[q.Query]; ok {
		return nil, err
	}
	return s.tracks[q.Query], nil
}

func (s *stubCatalog) CurrentUser(_ context.Context, _ model.AccessCredential) (*client.User, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	return s.user, nil
}

func (s *stubCatalog) CreatePlaylist(_ context.Context, _ model.AccessCredential, userID, name, description string, public bool) (*client.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	s.lastPublic = public
	s.lastName = name
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &client.Playlist{
		ID:           "pl1",
		Name:         name,
		Description:  description,
		ExternalURLs: client.ExternalURLs{Spotify: "https://open.spotify.com/playlist/pl1"},
	}, nil
}

func (s *stubCatalog) AddTracks(_ context.Context, _ model.AccessCredential, _ string, uris []string, position int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalls = append(s.addCalls, append([]string(nil), uris...))
	s.addPosition = append(s.addPosition, position)
	if s.addErrFrom > 0 && len(s.addCalls) >= s.addErrFrom {
		return "", &client.UpstreamError{Op: "add tracks", StatusCode: 502}
	}
	return "snap", nil
}

var errStub = errors.New("stub failure")
