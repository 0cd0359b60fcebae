package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/smartplaylist/api/internal/client"
	"github.com/smartplaylist/api/internal/config"
	"github.com/smartplaylist/api/internal/handler"
	"github.com/smartplaylist/api/internal/logger"
	"github.com/smartplaylist/api/internal/metrics"
	"github.com/smartplaylist/api/internal/middleware"
	"github.com/smartplaylist/api/internal/router"
	"github.com/smartplaylist/api/internal/service"
	"github.com/smartplaylist/api/internal/store"
	"github.com/smartplaylist/api/internal/websocket"
	"github.com/smartplaylist/api/internal/worker"
)

const (
	testJWTSecret  = "test-secret-for-e2e"
	testCredential = "BQD-e2e-catalog-token"
)

const defaultSongList = `1. "Clair de Lune" by Claude Debussy
2. "Gymnopedie No.1" by Erik Satie
3. "Unknown Demo Tape" by Nobody In Particular
4. "Nuvole Bianche" by Ludovico Einaudi`

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	jobs    *store.MemoryStore
	catalog *fakeCatalog
	llm     *fakeLLM
}

type appOptions struct {
	songList   string
	blockLLM   bool
	jobTimeout time.Duration
	maxCount   int
}

type option func(*appOptions)

func withSongList(s string) option { return func(o *appOptions) { o.songList = s } }

// withBlockingLLM makes the text endpoint hang until the request is cancelled
// or the test ends.
func withBlockingLLM() option { return func(o *appOptions) { o.blockLLM = true } }

func withJobTimeout(d time.Duration) option { return func(o *appOptions) { o.jobTimeout = d } }

func withMaxCount(n int) option { return func(o *appOptions) { o.maxCount = n } }

// setupApp creates the same Fiber app as main.go, backed by fake text and
// catalog servers and the in-memory job registry.
func setupApp(t *testing.T, opts ...option) *testApp {
	t.Helper()

	o := appOptions{songList: defaultSongList, jobTimeout: 10 * time.Second, maxCount: 50}
	for _, fn := range opts {
		fn(&o)
	}

	llm := newFakeLLM(t, o.songList, o.blockLLM)
	catalog := newFakeCatalog(t)
	log := logger.Discard()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	jobs := store.NewMemoryStore()
	evictor := store.NewTimerEvictor(jobs, time.Hour, log)
	t.Cleanup(evictor.Stop)

	m := metrics.New()
	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	chatClient := client.NewChatClient(&config.LLMConfig{
		APIKey:  "test-llm-key",
		BaseURL: llm.server.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
	catalogClient := client.NewCatalogClient(&config.CatalogConfig{
		BaseURL: catalog.server.URL,
		Timeout: 5 * time.Second,
	})

	pipeline := service.NewPipeline(
		service.NewSongListGenerator(chatClient, service.GeneratorConfig{DefaultCount: 10, MaxCount: o.maxCount, MinutesPerSong: 4}, log),
		service.NewTrackResolver(catalogClient, service.ResolverConfig{Market: "US", Limit: 5, Concurrency: 4}, log),
		service.NewPlaylistAssembler(catalogClient, service.AssemblerConfig{BatchSize: 100}, log),
		service.PipelineConfig{},
		log,
	)

	playlistWorker := worker.NewPlaylistWorker(pipeline, jobs, evictor, hub, m, worker.Config{JobTimeout: o.jobTimeout}, log)
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		playlistWorker.Shutdown(shutdownCtx)
	})

	playlistService := service.NewPlaylistService(jobs, playlistWorker, log)

	app := router.New(router.Deps{
		Playlists:   handler.NewPlaylistHandler(playlistService, handler.NewValidator(), o.maxCount),
		Auth:        middleware.NewAuthMiddleware(testJWTSecret),
		RateLimiter: middleware.NewRateLimiter(nil, log),
		// Very high rate limit so tests don't get blocked
		PlaylistsPerHour: 10000,
		Hub:              hub,
		Metrics:          m,
		Logger:           log,
		LogLevel:         "info",
		Health: func() map[string]bool {
			return map[string]bool{"llm": chatClient.IsConfigured(), "redis": false, "auth": true}
		},
	})

	return &testApp{app: app, jobs: jobs, catalog: catalog, llm: llm}
}

// fakeLLM serves an OpenAI-compatible chat completion with a fixed reply.
type fakeLLM struct {
	server  *httptest.Server
	gate    chan struct{}
	release func()
}

func newFakeLLM(t *testing.T, reply string, block bool) *fakeLLM {
	t.Helper()
	f := &fakeLLM{gate: make(chan struct{})}
	var once sync.Once
	f.release = func() { once.Do(func() { close(f.gate) }) }
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if block {
			select {
			case <-f.gate:
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "chatcmpl-e2e",
			"model": "test-model",
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": reply}, "finish_reason": "stop"},
			},
		})
	}))
	// Cleanups run last-in first-out: release blocked handlers before Close.
	t.Cleanup(f.server.Close)
	t.Cleanup(f.release)
	return f
}

// fakeCatalog implements the search, identity and playlist endpoints.
// Any query mentioning "Unknown" returns no items.
type fakeCatalog struct {
	server *httptest.Server

	mu          sync.Mutex
	authHeaders []string
	added       []string
	playlists   int
}

func newFakeCatalog(t *testing.T) *fakeCatalog {
	t.Helper()
	f := &fakeCatalog{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		q := r.URL.Query().Get("q")
		items := []map[string]interface{}{}
		if !strings.Contains(q, "Unknown") {
			id := strings.NewReplacer(" ", "", ":", "", ".", "").Replace(q)
			items = append(items, map[string]interface{}{
				"id":            id,
				"uri":           "spotify:track:" + id,
				"name":          q,
				"external_urls": map[string]string{"spotify": "https://open.spotify.com/track/" + id},
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": map[string]interface{}{"items": items, "total": len(items)}})
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "listener-1", "display_name": "Listener"})
	})
	mux.HandleFunc("POST /users/{userID}/playlists", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.playlists++
		id := fmt.Sprintf("pl%d", f.playlists)
		f.mu.Unlock()

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id":            id,
			"name":          body.Name,
			"description":   body.Description,
			"external_urls": map[string]string{"spotify": "https://open.spotify.com/playlist/" + id},
		})
	})
	mux.HandleFunc("POST /playlists/{playlistID}/tracks", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body struct {
			URIs []string `json:"uris"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.added = append(f.added, body.URIs...)
		f.mu.Unlock()

		writeJSON(w, http.StatusCreated, map[string]string{"snapshot_id": "snap-1"})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCatalog) record(r *http.Request) {
	f.mu.Lock()
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	f.mu.Unlock()
}

func (f *fakeCatalog) seenAuthHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authHeaders...)
}

func (f *fakeCatalog) createdPlaylists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playlists
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// generateToken creates an HMAC JWT for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	token, err := middleware.NewAuthMiddleware(testJWTSecret).GenerateToken("test-user-123", "test@example.com")
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// submitPlaylist posts body and returns the accepted job ID.
func submitPlaylist(t *testing.T, app *fiber.App, body string) string {
	t.Helper()
	resp, err := doAuthRequest(t, app, http.MethodPost, "/api/playlists", body)
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	result := parseJSON(t, resp)
	jobID, _ := result["job_id"].(string)
	if jobID == "" {
		t.Fatalf("expected 'job_id' in response, got %v", result)
	}
	return jobID
}

// waitForStatus polls the status endpoint until the job reaches a finished
// state and returns the last status body.
func waitForStatus(t *testing.T, app *fiber.App, jobID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := doAuthRequest(t, app, http.MethodGet, "/api/playlists/"+jobID+"/status", "")
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		body := parseJSON(t, resp)
		switch body["status"] {
		case "succeeded", "failed", "timed_out":
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s did not finish, last status %v", jobID, body)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func playlistBody(prompt string) string {
	return fmt.Sprintf(`{"user_prompt": %q, "access_credential": %q, "target_count": 4}`, prompt, testCredential)
}
