package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/smartplaylist/api/internal/config"
	"github.com/smartplaylist/api/internal/model"
)

// CatalogClient maps the catalog search and playlist endpoints. It holds no
// credentials: every call takes the caller's token as a parameter.
type CatalogClient struct {
	httpClient *http.Client
	baseURL    string
}

type ExternalURLs struct {
	Spotify string `json:"spotify"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Track struct {
	ID           string       `json:"id"`
	URI          string       `json:"uri"`
	Name         string       `json:"name"`
	Artists      []Artist     `json:"artists"`
	ExternalURLs ExternalURLs `json:"external_urls"`
}

type SearchResponse struct {
	Tracks struct {
		Items []Track `json:"items"`
		Total int     `json:"total"`
	} `json:"tracks"`
}

type User struct {
	ID           string       `json:"id"`
	DisplayName  string       `json:"display_name"`
	ExternalURLs ExternalURLs `json:"external_urls"`
}

type Playlist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	ExternalURLs ExternalURLs `json:"external_urls"`
}

type createPlaylistBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

type addTracksBody struct {
	URIs     []string `json:"uris"`
	Position int      `json:"position"`
}

type snapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// SearchQuery is one track lookup.
type SearchQuery struct {
	Query  string
	Market string
	Limit  int
	Offset int
}

func NewCatalogClient(cfg *config.CatalogConfig) *CatalogClient {
	return &CatalogClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
	}
}

// SearchTracks returns the ranked track items for q.
func (c *CatalogClient) SearchTracks(ctx context.Context, cred model.AccessCredential, q SearchQuery) ([]Track, error) {
	params := url.Values{}
	params.Set("q", q.Query)
	params.Set("type", "track")
	params.Set("market", q.Market)
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))

	var out SearchResponse
	if err := c.do(ctx, cred, "search", http.MethodGet, "/search?"+params.Encode(), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Tracks.Items, nil
}

// CurrentUser resolves the identity owning cred.
func (c *CatalogClient) CurrentUser(ctx context.Context, cred model.AccessCredential) (*User, error) {
	var out User
	if err := c.do(ctx, cred, "get current user", http.MethodGet, "/me", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePlaylist creates an empty playlist. Anything but 201 is an error.
func (c *CatalogClient) CreatePlaylist(ctx context.Context, cred model.AccessCredential, userID, name, description string, public bool) (*Playlist, error) {
	body := createPlaylistBody{Name: name, Description: description, Public: public}
	path := "/users/" + url.PathEscape(userID) + "/playlists"

	var out Playlist
	if err := c.do(ctx, cred, "create playlist", http.MethodPost, path, body, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddTracks inserts uris at position and returns the new snapshot id.
// Anything but 201 is an error.
func (c *CatalogClient) AddTracks(ctx context.Context, cred model.AccessCredential, playlistID string, uris []string, position int) (string, error) {
	body := addTracksBody{URIs: uris, Position: position}
	path := "/playlists/" + url.PathEscape(playlistID) + "/tracks"

	var out snapshotResponse
	if err := c.do(ctx, cred, "add tracks", http.MethodPost, path, body, http.StatusCreated, &out); err != nil {
		return "", err
	}
	return out.SnapshotID, nil
}

func (c *CatalogClient) do(ctx context.Context, cred model.AccessCredential, op, method, path string, body interface{}, wantStatus int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	(&oauth2.Token{AccessToken: cred.Reveal(), TokenType: "Bearer"}).SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error carries the URL only, never headers.
		return &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UpstreamError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != wantStatus {
		return statusError(op, resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &UpstreamError{Op: op, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	return nil
}
