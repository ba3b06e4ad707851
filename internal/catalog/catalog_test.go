package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/httpclient"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, string(BirdSounds))
	writeFile(t, filepath.Join(dir, "old.json"), `{"title":"old","dts":100}`)
	writeFile(t, filepath.Join(dir, "new.json"), `{"title":"new","dts":300}`)
	writeFile(t, filepath.Join(dir, "mid.json"), `{"title":"mid","dts":200}`)
	writeFile(t, filepath.Join(dir, "nodts.json"), `{"title":"nodts"}`)
	writeFile(t, filepath.Join(dir, "broken.json"), `{"title":`)
	writeFile(t, filepath.Join(dir, assetsDir, "new-EN.mp3"), "ID3")
	return NewStore(root, ttl)
}

func titles(t *testing.T, entries []Entry) []string {
	t.Helper()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(e.Raw, &doc))
		out = append(out, doc["title"].(string))
	}
	return out
}

func TestListSortsByDTSAndSkipsBroken(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 0)

	entries, err := store.List(BirdSounds, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid", "old", "nodts"}, titles(t, entries))

	limited, err := store.List(BirdSounds, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid"}, titles(t, limited))
}

func TestListEmptyCollection(t *testing.T) {
	t.Parallel()
	store := NewStore(t.TempDir(), 0)

	entries, err := store.List(BirdMaps, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListUnknownCollection(t *testing.T) {
	t.Parallel()
	store := NewStore(t.TempDir(), 0)

	_, err := store.List(Collection("podcasts"), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCollection)
}

func TestListIsCachedUntilInvalidated(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, time.Minute)

	first, err := store.List(BirdSounds, 0)
	require.NoError(t, err)
	require.Len(t, first, 4)

	writeFile(t, filepath.Join(store.Root(), string(BirdSounds), "newest.json"), `{"title":"newest","dts":400}`)

	cached, err := store.List(BirdSounds, 0)
	require.NoError(t, err)
	assert.Len(t, cached, 4)

	store.Invalidate()
	fresh, err := store.List(BirdSounds, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"newest"}, titles(t, fresh))
}

func TestGet(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 0)

	entry, err := store.Get(BirdSounds, "mid")
	require.NoError(t, err)
	assert.Equal(t, "mid", entry.ID)
	assert.InDelta(t, 200.0, entry.DTS, 1e-9)

	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"mid","dts":200}`, string(raw))

	for _, id := range []string{"missing", "../bird_sounds/mid", "", ".."} {
		_, err := store.Get(BirdSounds, id)
		require.Error(t, err, id)
		assert.True(t, errors.IsNotFound(err), id)
	}
}

func TestAssetPath(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 0)

	path, err := store.AssetPath(BirdSounds, "new-EN.mp3")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), "bird_sounds", "assets", "new-EN.mp3"), path)

	for _, name := range []string{"../new.json", "..", "missing.mp3", `..\new.json`} {
		_, err := store.AssetPath(BirdSounds, name)
		require.Error(t, err, name)
		assert.True(t, errors.IsNotFound(err), name)
	}
}

func newMockedHTTPClient(t *testing.T) *httpclient.Client {
	t.Helper()
	hc := httpclient.New(nil)
	httpmock.ActivateNonDefault(hc.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return hc
}

func TestMirrorSyncHTTP(t *testing.T) {
	hc := newMockedHTTPClient(t)
	root := t.TempDir()

	const bucket = "https://storage.test/birdwatching_app"
	httpmock.RegisterResponder(http.MethodGet, bucket+"/bird_maps/a.json",
		httpmock.NewStringResponder(http.StatusOK, `{"dts":1}`))
	httpmock.RegisterResponder(http.MethodGet, bucket+"/bird_maps/assets/a.jpg",
		httpmock.NewStringResponder(http.StatusOK, "JPEG"))
	httpmock.RegisterResponder(http.MethodGet, bucket+"/bird_maps/gone.json",
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))

	writeFile(t, filepath.Join(root, "bird_maps", "existing.json"), `{"dts":2}`)

	files := []string{
		"bird_maps/a.json",
		"bird_maps/assets/a.jpg",
		"bird_maps/gone.json",
		"bird_maps/existing.json",
		"../escape.json",
	}
	mirror := NewMirror(root, files, NewHTTPFetcher(bucket+"/", hc))

	report, err := mirror.Sync(t.Context())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"bird_maps/a.json", "bird_maps/assets/a.jpg"}, report.Downloaded)
	assert.ElementsMatch(t, []string{"bird_maps/existing.json"}, report.Skipped)
	assert.ElementsMatch(t, []string{"bird_maps/gone.json", "../escape.json"}, report.Failed)

	data, err := os.ReadFile(filepath.Join(root, "bird_maps", "assets", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "JPEG", string(data))
	assert.NoFileExists(t, filepath.Join(root, "bird_maps", "gone.json"))

	// a second sync downloads nothing
	report, err = mirror.Sync(t.Context())
	require.NoError(t, err)
	assert.Empty(t, report.Downloaded)
	assert.Len(t, report.Skipped, 3)
}

func TestMirrorSyncCancelled(t *testing.T) {
	hc := newMockedHTTPClient(t)
	httpmock.RegisterNoResponder(httpmock.NewStringResponder(http.StatusOK, "{}"))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	mirror := NewMirror(t.TempDir(), []string{"bird_maps/a.json"}, NewHTTPFetcher("https://storage.test/b", hc))
	_, err := mirror.Sync(ctx)
	assert.Error(t, err)
}

func TestGCSFetcher(t *testing.T) {
	hc := newMockedHTTPClient(t)

	httpmock.RegisterResponder(http.MethodGet, `=~^http://gcs\.test/`,
		func(req *http.Request) (*http.Response, error) {
			path, err := url.PathUnescape(req.URL.EscapedPath())
			require.NoError(t, err)
			if strings.HasSuffix(path, "/b/birdwatching_app/o/bird_sounds/x.json") {
				return httpmock.NewStringResponse(http.StatusOK, `{"dts":5}`), nil
			}
			return httpmock.NewStringResponse(http.StatusNotFound, `{"error":{"code":404,"message":"No such object"}}`), nil
		})

	fetcher, err := NewGCSFetcher(t.Context(), "birdwatching_app", hc, option.WithEndpoint("http://gcs.test/storage/v1/"))
	require.NoError(t, err)

	root := t.TempDir()
	mirror := NewMirror(root, []string{"bird_sounds/x.json", "bird_sounds/y.json"}, fetcher)
	report, err := mirror.Sync(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"bird_sounds/x.json"}, report.Downloaded)
	assert.Equal(t, []string{"bird_sounds/y.json"}, report.Failed)
	assert.FileExists(t, filepath.Join(root, "bird_sounds", "x.json"))
}
