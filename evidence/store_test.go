package evidence

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/replayrig/replayrig/gh"
)

func TestLocal_Publish(t *testing.T) {
	ref, err := Local{}.Publish(context.Background(), "/tmp/x.png", "screenshot")
	require.NoError(t, err)
	require.Equal(t, Ref{Kind: "screenshot", Path: "/tmp/x.png"}, ref)
	require.Equal(t, "/tmp/x.png", ref.Location())
}

type fakeReleaseAPI struct {
	exists   bool
	gets     atomic.Int32
	creates  atomic.Int32
	uploads  atomic.Int32
	lastName string
	lastType string
	lastBody string
}

func (f *fakeReleaseAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/game/releases/tags/evidence-r1", func(w http.ResponseWriter, r *http.Request) {
		f.gets.Add(1)
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 7, "tag_name": "evidence-r1"})
	})
	mux.HandleFunc("POST /repos/octo/game/releases", func(w http.ResponseWriter, r *http.Request) {
		f.creates.Add(1)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "evidence-r1", body["tag_name"])
		require.Equal(t, true, body["prerelease"])
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 7, "tag_name": "evidence-r1"})
	})
	mux.HandleFunc("POST /repos/octo/game/releases/7/assets", func(w http.ResponseWriter, r *http.Request) {
		f.uploads.Add(1)
		data, _ := io.ReadAll(r.Body)
		f.lastName = r.URL.Query().Get("name")
		f.lastType = r.Header.Get("Content-Type")
		f.lastBody = string(data)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                   1,
			"browser_download_url": "https://example.test/download/" + f.lastName,
		})
	})
	return mux
}

func newReleaseStore(t *testing.T, api *fakeReleaseAPI) *GitHubRelease {
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	client, err := gh.NewClient("tok", gh.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return NewGitHubRelease(zerolog.Nop(), client, gh.Repo{Owner: "octo", Name: "game"}, "r1")
}

func TestGitHubRelease_CreatesReleaseOnceAndUploads(t *testing.T) {
	api := &fakeReleaseAPI{}
	store := newReleaseStore(t, api)

	dir := t.TempDir()
	shot := filepath.Join(dir, "bug.png")
	state := filepath.Join(dir, "bug-state.json")
	require.NoError(t, os.WriteFile(shot, []byte("png-bytes"), 0644))
	require.NoError(t, os.WriteFile(state, []byte(`{}`), 0644))

	ctx := context.Background()
	ref, err := store.Publish(ctx, shot, "screenshot")
	require.NoError(t, err)
	require.Equal(t, Ref{Kind: "screenshot", Path: shot, URL: "https://example.test/download/bug.png"}, ref)
	require.Equal(t, "image/png", api.lastType)
	require.Equal(t, "png-bytes", api.lastBody)

	ref, err = store.Publish(ctx, state, "state")
	require.NoError(t, err)
	require.Equal(t, "https://example.test/download/bug-state.json", ref.Location())
	require.Equal(t, "application/json", api.lastType)

	require.Equal(t, int32(1), api.gets.Load())
	require.Equal(t, int32(1), api.creates.Load())
	require.Equal(t, int32(2), api.uploads.Load())
	require.Equal(t, "evidence-r1", store.Tag())
}

func TestGitHubRelease_ReusesExistingRelease(t *testing.T) {
	api := &fakeReleaseAPI{exists: true}
	store := newReleaseStore(t, api)

	shot := filepath.Join(t.TempDir(), "bug.png")
	require.NoError(t, os.WriteFile(shot, []byte("png"), 0644))

	_, err := store.Publish(context.Background(), shot, "screenshot")
	require.NoError(t, err)
	require.Equal(t, int32(0), api.creates.Load())
}

func TestGitHubRelease_MissingFile(t *testing.T) {
	api := &fakeReleaseAPI{exists: true}
	store := newReleaseStore(t, api)

	_, err := store.Publish(context.Background(), filepath.Join(t.TempDir(), "missing.png"), "screenshot")
	require.Error(t, err)
	require.Equal(t, int32(0), api.uploads.Load())
}

func TestGuessContentType(t *testing.T) {
	tests := map[string]string{
		"a.png":           "image/png",
		"a.JPG":           "image/jpeg",
		"a.jpeg":          "image/jpeg",
		"session.mjpeg":   "video/x-motion-jpeg",
		"a.mp4":           "video/mp4",
		"a.webm":          "video/webm",
		"a.json":          "application/json",
		"placeholder.txt": "text/plain",
		"a.bin":           "application/octet-stream",
		"noext":           "application/octet-stream",
	}
	for path, want := range tests {
		t.Run(path, func(t *testing.T) {
			require.Equal(t, want, GuessContentType(path))
		})
	}
}
